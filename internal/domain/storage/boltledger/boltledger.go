// Package boltledger is an embedded, single-file Ledger. All data lives in one
// BoltDB file, so local development and tests need no database process.
//
// Bolt admits one writer at a time; every conditional write runs inside
// db.Update, which is what makes UpdateStatus a compare-and-set and
// WithLedgerTx all-or-nothing.
package boltledger

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"

	bolt "github.com/boltdb/bolt"
)

var (
	bucketTransactions = []byte("transactions")
	bucketInvestments  = []byte("investments")
	bucketUsers        = []byte("users")
	bucketGoldPrices   = []byte("gold_prices")
	bucketLogs         = []byte("transaction_logs")
)

var allBuckets = [][]byte{bucketTransactions, bucketInvestments, bucketUsers, bucketGoldPrices, bucketLogs}

// Store implements storage.Ledger, users.Directory and goldprice.Source.
type Store struct {
	db    *bolt.DB
	repos storage.LedgerRepos
}

var _ storage.Ledger = (*Store)(nil)

// Open opens (or creates) the database at path and ensures every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	s.repos = reposFor(dbRunner{db: db})
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Repos() storage.LedgerRepos { return s.repos }

// WithLedgerTx runs fn inside a single bolt write transaction. Repositories
// handed to fn join that transaction instead of opening their own.
func (s *Store) WithLedgerTx(ctx context.Context, fn func(r storage.LedgerRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(reposFor(boundRunner{tx: tx}))
	})
}

func reposFor(r runner) storage.LedgerRepos {
	return storage.LedgerRepos{
		Transactions: &transactionRepo{r: r},
		Investments:  &investmentRepo{r: r},
		Balances:     &balanceRepo{r: r},
		Events:       &logRepo{r: r},
	}
}

// runner abstracts "open a transaction" from "already inside one".
type runner interface {
	view(fn func(tx *bolt.Tx) error) error
	update(fn func(tx *bolt.Tx) error) error
}

type dbRunner struct{ db *bolt.DB }

func (r dbRunner) view(fn func(tx *bolt.Tx) error) error   { return r.db.View(fn) }
func (r dbRunner) update(fn func(tx *bolt.Tx) error) error { return r.db.Update(fn) }

type boundRunner struct{ tx *bolt.Tx }

func (r boundRunner) view(fn func(tx *bolt.Tx) error) error   { return fn(r.tx) }
func (r boundRunner) update(fn func(tx *bolt.Tx) error) error { return fn(r.tx) }

func getJSON(b *bolt.Bucket, key string, v any) (bool, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// FindByID implements users.Directory.
func (s *Store) FindByID(ctx context.Context, id string) (*users.User, error) {
	var u users.User
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketUsers), id, &u)
		if err != nil {
			return err
		}
		if !ok {
			return users.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PutUser creates or replaces a user record.
func (s *Store) PutUser(u *users.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketUsers), u.ID, u)
	})
}

// PutGoldPrice appends a quote. Keys are fixed-width UTC timestamps so the
// last key is always the newest quote.
func (s *Store) PutGoldPrice(p *goldprice.Price) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	key := p.Timestamp.UTC().Format("20060102T150405.000000000")
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketGoldPrices), key, p)
	})
}

// GetCurrentPrice implements goldprice.Source.
func (s *Store) GetCurrentPrice(ctx context.Context) (*goldprice.Price, error) {
	var p goldprice.Price
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(bucketGoldPrices).Cursor().Last()
		if v == nil {
			return goldprice.ErrNoPrice
		}
		return json.Unmarshal(v, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Logs returns the event log of one transaction in append order.
func (s *Store) Logs(transactionID string) ([]transactions.LogEntry, error) {
	var out []transactions.LogEntry
	prefix := []byte(transactionID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLogs).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e transactions.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

