package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Limit: 10}},
		{"limit=20&offset=40", Pagination{Limit: 20, Offset: 40}},
		{"limit=0", Pagination{Limit: 10}},
		{"limit=500", Pagination{Limit: 100}},
		{"limit=abc&offset=-3", Pagination{Limit: 10}},
		{"limit=20&page=3", Pagination{Limit: 20, Offset: 40}},
		{"offset=5&page=3", Pagination{Limit: 10, Offset: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, ParsePagination(q))
		})
	}
}

func TestComputeMeta(t *testing.T) {
	p := Pagination{Limit: 10, Offset: 10}
	p.ComputeMeta(25)
	assert.True(t, p.HasMore)
	p.ComputeMeta(20)
	assert.False(t, p.HasMore)
}
