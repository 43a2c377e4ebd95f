package storage

import (
	"context"
	"fmt"

	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/investments"
	"goldvault/internal/domain/pushtokens"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"
	"goldvault/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Container is the postgres-backed Ledger plus the collaborators that live in
// the same database.
type Container struct {
	pool       *pgxpool.Pool // IMPORTANT: set the pool so WithLedgerTx works
	Users      *users.Repository
	GoldPrices *goldprice.Repository
	PushTokens *pushtokens.Repository
	ledger     LedgerRepos
}

func NewContainer(db *pgxpool.Pool) *Container {
	u := users.NewRepository(db)
	return &Container{
		pool:       db,
		Users:      u,
		GoldPrices: goldprice.NewRepository(db),
		PushTokens: pushtokens.NewRepository(db),
		ledger:     reposFor(db),
	}
}

func reposFor(q dbx.Querier) LedgerRepos {
	return LedgerRepos{
		Transactions: transactions.NewRepository(q),
		Investments:  investments.NewRepository(q),
		Balances:     users.NewRepository(q),
		Events:       transactions.NewLogsRepository(q),
	}
}

func (c *Container) Repos() LedgerRepos { return c.ledger }

// WithLedgerTx runs a ledger unit-of-work atomically.
func (c *Container) WithLedgerTx(ctx context.Context, fn func(r LedgerRepos) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil (did you forget to set pool in NewContainer?)")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // safe even if already committed
	}()

	if err := fn(reposFor(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
