package storage

import (
	"context"

	"goldvault/internal/domain/investments"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"
)

// LedgerRepos is the set of repositories one ledger operation needs. Inside
// WithLedgerTx every member is bound to the same underlying transaction.
type LedgerRepos struct {
	Transactions transactions.Store
	Investments  investments.Store
	Balances     users.Balances
	Events       transactions.EventLog
}

// Ledger is the persistence boundary of the payment core. Any backend must
// make WithLedgerTx all-or-nothing and make Transactions.UpdateStatus a
// compare-and-set on the status column.
type Ledger interface {
	Repos() LedgerRepos
	WithLedgerTx(ctx context.Context, fn func(r LedgerRepos) error) error
}
