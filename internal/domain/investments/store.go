package investments

import (
	"context"
	"errors"
	"fmt"

	"goldvault/internal/domain/transactions"
	"goldvault/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) CreateIfAbsent(ctx context.Context, inv *Investment) (*Investment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, transactions.QueryTimeoutDuration)
	defer cancel()

	// transaction_id carries a UNIQUE constraint; the conflict clause turns a
	// second attempt into a no-op instead of an error.
	err := r.q.QueryRow(ctx, `
		INSERT INTO investments (id, user_id, transaction_id, gold_quantity, purchase_price, total_amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'INR'))
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING created_at
	`, inv.ID, inv.UserID, inv.TransactionID, inv.GoldQuantity, inv.PurchasePrice, inv.TotalAmount, inv.Currency).
		Scan(&inv.CreatedAt)
	if err == nil {
		return inv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create investment: %w", err)
	}

	existing, err := r.GetByTransactionID(ctx, inv.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *Repository) GetByTransactionID(ctx context.Context, transactionID string) (*Investment, error) {
	var inv Investment
	err := r.q.QueryRow(ctx, `
		SELECT id, user_id, transaction_id, gold_quantity, purchase_price, total_amount, currency, created_at
		FROM investments
		WHERE transaction_id = $1
	`, transactionID).Scan(
		&inv.ID, &inv.UserID, &inv.TransactionID, &inv.GoldQuantity,
		&inv.PurchasePrice, &inv.TotalAmount, &inv.Currency, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get investment: %w", err)
	}
	return &inv, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*Investment, error) {
	ctx, cancel := context.WithTimeout(ctx, transactions.QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, transaction_id, gold_quantity, purchase_price, total_amount, currency, created_at
		FROM investments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	defer rows.Close()

	var out []*Investment
	for rows.Next() {
		var inv Investment
		if err := rows.Scan(
			&inv.ID, &inv.UserID, &inv.TransactionID, &inv.GoldQuantity,
			&inv.PurchasePrice, &inv.TotalAmount, &inv.Currency, &inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}
