package goldprice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goldvault/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var ErrNoPrice = errors.New("no gold price available")

// Price is one published gold quote, per gram.
type Price struct {
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Unit      string          `json:"unit"`
	Timestamp time.Time       `json:"timestamp"`
}

// Source returns the latest quote. Fetching and storing quotes belongs to the
// market-price job; the payment core only reads.
type Source interface {
	GetCurrentPrice(ctx context.Context) (*Price, error)
}

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) GetCurrentPrice(ctx context.Context) (*Price, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var p Price
	err := r.q.QueryRow(ctx, `
		SELECT price, currency, unit, created_at
		FROM gold_prices
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&p.Price, &p.Currency, &p.Unit, &p.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPrice
		}
		return nil, fmt.Errorf("current gold price: %w", err)
	}
	return &p, nil
}
