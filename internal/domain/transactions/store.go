package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"goldvault/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const selectColumns = `
	transaction_id, user_id, kind, amount, currency, gold_quantity, price_per_unit,
	status, gateway, gateway_transaction_id, payment_url, gateway_response,
	failure_reason, original_transaction_id, metadata, completed_at, created_at, updated_at`

func scanTransaction(row pgx.Row, extra ...any) (*Transaction, error) {
	var t Transaction
	dest := []any{
		&t.TransactionID, &t.UserID, &t.Kind, &t.Amount, &t.Currency, &t.GoldQuantity, &t.PricePerUnit,
		&t.Status, &t.Gateway, &t.GatewayTransactionID, &t.PaymentURL, &t.GatewayResponse,
		&t.FailureReason, &t.OriginalTransactionID, &t.Metadata, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) Create(ctx context.Context, t *Transaction) (*Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Status == "" {
		t.Status = StatusPending
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	out, err := scanTransaction(r.q.QueryRow(ctx, `
		INSERT INTO transactions (
			transaction_id, user_id, kind, amount, currency, gold_quantity, price_per_unit,
			status, gateway, original_transaction_id, failure_reason, metadata
		)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'INR'), $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+selectColumns,
		t.TransactionID, t.UserID, t.Kind, t.Amount, t.Currency, t.GoldQuantity, t.PricePerUnit,
		t.Status, t.Gateway, t.OriginalTransactionID, t.FailureReason, jsonOrNil(t.Metadata),
	))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, t.TransactionID)
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return out, nil
}

func (r *Repository) GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	t, err := scanTransaction(r.q.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM transactions
		WHERE transaction_id = $1
	`, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// GetForUpdate reads the row and locks it until the surrounding transaction
// ends. Only meaningful inside WithLedgerTx.
func (r *Repository) GetForUpdate(ctx context.Context, transactionID string) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	t, err := scanTransaction(r.q.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM transactions
		WHERE transaction_id = $1
		FOR UPDATE
	`, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock transaction: %w", err)
	}
	return t, nil
}

// UpdateStatus is a single conditional UPDATE. The WHERE clause on the current
// status is the only synchronisation between the webhook and the poll path.
func (r *Repository) UpdateStatus(ctx context.Context, transactionID string, to Status, upd StatusUpdate) (*Transaction, bool, error) {
	from := AllowedFrom(to)
	if len(from) == 0 {
		return nil, false, &ValidationError{Field: "status", Reason: fmt.Sprintf("%s is not a transition target", to)}
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	t, err := scanTransaction(r.q.QueryRow(ctx, `
		UPDATE transactions
		   SET status = $2,
		       gateway_transaction_id = COALESCE($3, gateway_transaction_id),
		       gateway_response = COALESCE($4::jsonb, gateway_response),
		       failure_reason = COALESCE($5, failure_reason),
		       completed_at = COALESCE($6, completed_at),
		       metadata = COALESCE(metadata, '{}'::jsonb) || COALESCE($7::jsonb, '{}'::jsonb),
		       updated_at = now()
		 WHERE transaction_id = $1
		   AND status = ANY($8)
		RETURNING `+selectColumns,
		transactionID, to, upd.GatewayTransactionID, rawOrNil(upd.GatewayResponse), upd.FailureReason,
		upd.CompletedAt, jsonOrNil(upd.Metadata), allowed,
	))
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("update transaction status: %w", err)
	}

	// Either the row does not exist or the guard rejected the move.
	cur, err := r.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}

func (r *Repository) SetGatewayRef(ctx context.Context, transactionID, gatewayTxID, paymentURL string, raw json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE transactions
		   SET gateway_transaction_id = NULLIF($2, ''),
		       payment_url = NULLIF($3, ''),
		       gateway_response = COALESCE($4::jsonb, gateway_response),
		       updated_at = now()
		 WHERE transaction_id = $1
	`, transactionID, gatewayTxID, paymentURL, rawOrNil(raw))
	if err != nil {
		return fmt.Errorf("set gateway ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns a page of the user's transactions, newest first, and the
// total count for pagination.
func (r *Repository) ListByUser(ctx context.Context, userID string, f ListFilter) ([]*Transaction, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT `+selectColumns+`,
		       COUNT(*) OVER() AS total_count
		FROM transactions
		WHERE user_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR kind = $3)
		ORDER BY created_at DESC, transaction_id DESC
		LIMIT $4 OFFSET $5
	`, userID, string(f.Status), string(f.Kind), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Transaction
		total int
	)
	for rows.Next() {
		var n int
		t, err := scanTransaction(rows, &n)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		total = n
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}

// SumRefunds totals the REFUND transactions pointing at originalTransactionID
// whose status is one of statuses.
func (r *Repository) SumRefunds(ctx context.Context, originalTransactionID string, statuses ...Status) (decimal.Decimal, error) {
	in := make([]string, 0, len(statuses))
	for _, s := range statuses {
		in = append(in, string(s))
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var sum decimal.Decimal
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE original_transaction_id = $1
		  AND kind = 'REFUND'
		  AND status = ANY($2)
	`, originalTransactionID, in).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum refunds: %w", err)
	}
	return sum, nil
}

func jsonOrNil(m map[string]any) []byte {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
