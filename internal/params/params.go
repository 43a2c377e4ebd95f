package params

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// URL: /transactions?limit=20&offset=40   (or ?limit=20&page=3)
// → ParsePagination() → Pagination{Limit:20, Offset:40}
// → store returns page + total count
// → ComputeMeta(total) → fills HasMore
// Pagination holds pagination info and computed metadata.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// ParsePagination parses ?limit=&offset= (or page) safely. Keys are case sensitive.
func ParsePagination(q url.Values) Pagination {
	p := Pagination{Limit: DefaultLimit}

	if limitStr := strings.TrimSpace(q.Get("limit")); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			switch {
			case limit <= 0:
				p.Limit = DefaultLimit
			case limit > MaxLimit:
				p.Limit = MaxLimit
			default:
				p.Limit = limit
			}
		}
	}

	if offStr := strings.TrimSpace(q.Get("offset")); offStr != "" {
		if off, err := strconv.Atoi(offStr); err == nil && off > 0 {
			p.Offset = off
		}
	} else if pageStr := strings.TrimSpace(q.Get("page")); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 1 {
			p.Offset = (page - 1) * p.Limit
		}
	}
	return p
}

// ComputeMeta updates pagination after fetching total count.
func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	p.HasMore = total > p.Offset+p.Limit
}
