package boltledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"goldvault/internal/domain/investments"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"

	bolt "github.com/boltdb/bolt"
	"github.com/shopspring/decimal"
)

type transactionRepo struct{ r runner }

func (t *transactionRepo) Create(ctx context.Context, in *transactions.Transaction) (*transactions.Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	out := *in
	if out.Status == "" {
		out.Status = transactions.StatusPending
	}
	if out.Currency == "" {
		out.Currency = "INR"
	}

	err := t.r.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		if b.Get([]byte(out.TransactionID)) != nil {
			return fmt.Errorf("%w: %s", transactions.ErrDuplicateID, out.TransactionID)
		}
		now := time.Now().UTC()
		out.CreatedAt = now
		out.UpdatedAt = now
		return putJSON(b, out.TransactionID, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *transactionRepo) GetByTransactionID(ctx context.Context, transactionID string) (*transactions.Transaction, error) {
	var out transactions.Transaction
	err := t.r.view(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketTransactions), transactionID, &out)
		if err != nil {
			return err
		}
		if !ok {
			return transactions.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate is GetByTransactionID: bolt allows one writer at a time, so
// a read inside WithLedgerTx is already exclusive.
func (t *transactionRepo) GetForUpdate(ctx context.Context, transactionID string) (*transactions.Transaction, error) {
	return t.GetByTransactionID(ctx, transactionID)
}

func (t *transactionRepo) UpdateStatus(ctx context.Context, transactionID string, to transactions.Status, upd transactions.StatusUpdate) (*transactions.Transaction, bool, error) {
	if len(transactions.AllowedFrom(to)) == 0 {
		return nil, false, &transactions.ValidationError{Field: "status", Reason: fmt.Sprintf("%s is not a transition target", to)}
	}

	var (
		cur     transactions.Transaction
		applied bool
	)
	err := t.r.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		ok, err := getJSON(b, transactionID, &cur)
		if err != nil {
			return err
		}
		if !ok {
			return transactions.ErrNotFound
		}
		if !transactions.CanTransition(cur.Status, to) {
			return nil
		}

		cur.Status = to
		if upd.GatewayTransactionID != nil {
			cur.GatewayTransactionID = upd.GatewayTransactionID
		}
		if len(upd.GatewayResponse) > 0 {
			cur.GatewayResponse = upd.GatewayResponse
		}
		if upd.FailureReason != nil {
			cur.FailureReason = upd.FailureReason
		}
		if upd.CompletedAt != nil {
			cur.CompletedAt = upd.CompletedAt
		}
		if len(upd.Metadata) > 0 {
			if cur.Metadata == nil {
				cur.Metadata = map[string]any{}
			}
			for k, v := range upd.Metadata {
				cur.Metadata[k] = v
			}
		}
		cur.UpdatedAt = time.Now().UTC()
		applied = true
		return putJSON(b, transactionID, &cur)
	})
	if err != nil {
		return nil, false, err
	}
	return &cur, applied, nil
}

func (t *transactionRepo) SetGatewayRef(ctx context.Context, transactionID, gatewayTxID, paymentURL string, raw json.RawMessage) error {
	return t.r.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		var cur transactions.Transaction
		ok, err := getJSON(b, transactionID, &cur)
		if err != nil {
			return err
		}
		if !ok {
			return transactions.ErrNotFound
		}
		cur.GatewayTransactionID = nilIfEmpty(gatewayTxID)
		cur.PaymentURL = nilIfEmpty(paymentURL)
		if len(raw) > 0 {
			cur.GatewayResponse = raw
		}
		cur.UpdatedAt = time.Now().UTC()
		return putJSON(b, transactionID, &cur)
	})
}

func (t *transactionRepo) ListByUser(ctx context.Context, userID string, f transactions.ListFilter) ([]*transactions.Transaction, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var all []*transactions.Transaction
	err := t.r.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransactions).ForEach(func(k, v []byte) error {
			var cur transactions.Transaction
			if err := json.Unmarshal(v, &cur); err != nil {
				return err
			}
			if cur.UserID != userID {
				return nil
			}
			if f.Status != "" && cur.Status != f.Status {
				return nil
			}
			if f.Kind != "" && cur.Kind != f.Kind {
				return nil
			}
			all = append(all, &cur)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].TransactionID > all[j].TransactionID
	})

	total := len(all)
	if f.Offset >= total {
		return []*transactions.Transaction{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return all[f.Offset:end], total, nil
}

func (t *transactionRepo) SumRefunds(ctx context.Context, originalTransactionID string, statuses ...transactions.Status) (decimal.Decimal, error) {
	want := make(map[transactions.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	sum := decimal.Zero
	err := t.r.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTransactions).ForEach(func(k, v []byte) error {
			var cur transactions.Transaction
			if err := json.Unmarshal(v, &cur); err != nil {
				return err
			}
			if cur.Kind != transactions.KindRefund || cur.OriginalTransactionID == nil {
				return nil
			}
			if *cur.OriginalTransactionID == originalTransactionID && want[cur.Status] {
				sum = sum.Add(cur.Amount)
			}
			return nil
		})
	})
	return sum, err
}

type investmentRepo struct{ r runner }

func (i *investmentRepo) CreateIfAbsent(ctx context.Context, inv *investments.Investment) (*investments.Investment, bool, error) {
	var (
		out     investments.Investment
		created bool
	)
	err := i.r.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvestments)
		ok, err := getJSON(b, inv.TransactionID, &out)
		if err != nil || ok {
			return err
		}
		out = *inv
		out.CreatedAt = time.Now().UTC()
		created = true
		return putJSON(b, out.TransactionID, &out)
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (i *investmentRepo) GetByTransactionID(ctx context.Context, transactionID string) (*investments.Investment, error) {
	var out investments.Investment
	err := i.r.view(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketInvestments), transactionID, &out)
		if err != nil {
			return err
		}
		if !ok {
			return investments.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (i *investmentRepo) ListByUser(ctx context.Context, userID string) ([]*investments.Investment, error) {
	out := []*investments.Investment{}
	err := i.r.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvestments).ForEach(func(k, v []byte) error {
			var inv investments.Investment
			if err := json.Unmarshal(v, &inv); err != nil {
				return err
			}
			if inv.UserID == userID {
				out = append(out, &inv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

type balanceRepo struct{ r runner }

func (b *balanceRepo) CreditGold(ctx context.Context, userID string, qty decimal.Decimal) error {
	return b.r.update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUsers)
		var u users.User
		ok, err := getJSON(bk, userID, &u)
		if err != nil {
			return err
		}
		if !ok {
			return users.ErrNotFound
		}
		u.GoldBalance = u.GoldBalance.Add(qty)
		return putJSON(bk, userID, &u)
	})
}

func (b *balanceRepo) DeductGold(ctx context.Context, userID string, qty decimal.Decimal) (decimal.Decimal, error) {
	shortfall := decimal.Zero
	err := b.r.update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketUsers)
		var u users.User
		ok, err := getJSON(bk, userID, &u)
		if err != nil {
			return err
		}
		if !ok {
			return users.ErrNotFound
		}
		take := decimal.Min(u.GoldBalance, qty)
		shortfall = qty.Sub(take)
		u.GoldBalance = u.GoldBalance.Sub(take)
		return putJSON(bk, userID, &u)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return shortfall, nil
}

type logRepo struct{ r runner }

func (l *logRepo) Append(ctx context.Context, transactionID, logType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	return l.r.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		e := transactions.LogEntry{
			ID:            int64(seq),
			TransactionID: transactionID,
			LogType:       logType,
			Payload:       raw,
			CreatedAt:     time.Now().UTC(),
		}
		return putJSON(b, fmt.Sprintf("%s/%020d", transactionID, seq), &e)
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
