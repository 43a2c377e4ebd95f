package users

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("user not found")
	QueryTimeoutDuration = time.Second * 5
)

type User struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	GoldBalance decimal.Decimal `json:"gold_balance"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Directory is the read side of the user service the payment core consumes.
type Directory interface {
	FindByID(ctx context.Context, id string) (*User, error)
}

// Balances moves gold in and out of a user's holding. Implementations used
// inside a ledger unit of work must join that unit's transaction.
type Balances interface {
	CreditGold(ctx context.Context, userID string, qty decimal.Decimal) error
	// DeductGold never drives the balance below zero; the part of qty that
	// could not be taken is returned as shortfall.
	DeductGold(ctx context.Context, userID string, qty decimal.Decimal) (shortfall decimal.Decimal, err error)
}
