package users

import (
	"context"
	"errors"
	"fmt"

	"goldvault/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	u := &User{}
	err := r.q.QueryRow(ctx, `
		SELECT id, name, email, COALESCE(phone, ''), gold_balance, is_active, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.GoldBalance, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *Repository) CreditGold(ctx context.Context, userID string, qty decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE users SET gold_balance = gold_balance + $2, updated_at = now() WHERE id = $1
	`, userID, qty)
	if err != nil {
		return fmt.Errorf("credit gold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeductGold(ctx context.Context, userID string, qty decimal.Decimal) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	// Lock the row so the balance read and the write see the same value.
	var before decimal.Decimal
	err := r.q.QueryRow(ctx, `SELECT gold_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&before)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("read gold balance: %w", err)
	}

	take := decimal.Min(before, qty)
	if _, err := r.q.Exec(ctx, `
		UPDATE users SET gold_balance = gold_balance - $2, updated_at = now() WHERE id = $1
	`, userID, take); err != nil {
		return decimal.Zero, fmt.Errorf("deduct gold: %w", err)
	}
	return qty.Sub(take), nil
}
