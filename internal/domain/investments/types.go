package investments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goldvault/internal/domain/transactions"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("investment not found")

// Investment is the immutable record of a completed gold purchase. At most one
// exists per originating transaction.
type Investment struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	GoldQuantity  decimal.Decimal `json:"gold_quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"` // per unit
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FromTransaction derives the investment a completed INVESTMENT transaction
// produces. Purchase price is amount / quantity, rounded to 2 dp.
func FromTransaction(t *transactions.Transaction) (*Investment, error) {
	if t.Kind != transactions.KindInvestment || !t.HasGold() {
		return nil, fmt.Errorf("transaction %s does not purchase gold", t.TransactionID)
	}
	qty := t.GoldQuantity.Decimal
	return &Investment{
		ID:            uuid.NewString(),
		UserID:        t.UserID,
		TransactionID: t.TransactionID,
		GoldQuantity:  qty,
		PurchasePrice: t.Amount.DivRound(qty, 2),
		TotalAmount:   t.Amount,
		Currency:      t.Currency,
	}, nil
}

type Store interface {
	// CreateIfAbsent inserts inv unless an investment already references the
	// same transaction; created reports which happened.
	CreateIfAbsent(ctx context.Context, inv *Investment) (out *Investment, created bool, err error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Investment, error)
	ListByUser(ctx context.Context, userID string) ([]*Investment, error)
}
