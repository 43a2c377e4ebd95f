package boltledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/investments"
	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func pendingInvestment(id string) *transactions.Transaction {
	return &transactions.Transaction{
		TransactionID: id,
		UserID:        "user-1",
		Kind:          transactions.KindInvestment,
		Amount:        decimal.RequireFromString("1000"),
		GoldQuantity:  decimal.NewNullDecimal(decimal.RequireFromString("0.5")),
		Status:        transactions.StatusPending,
		Gateway:       "PHONEPE",
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Repos().Transactions

	first, err := repo.Create(ctx, pendingInvestment("TXN_1"))
	require.NoError(t, err)
	assert.Equal(t, "INR", first.Currency)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = repo.Create(ctx, pendingInvestment("TXN_1"))
	assert.ErrorIs(t, err, transactions.ErrDuplicateID)
}

func TestCreateValidates(t *testing.T) {
	s := newTestStore(t)
	txn := pendingInvestment("TXN_2")
	txn.Kind = transactions.KindDeposit

	_, err := s.Repos().Transactions.Create(context.Background(), txn)
	var verr *transactions.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "gold_quantity", verr.Field)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Repos().Transactions.GetByTransactionID(context.Background(), "missing")
	assert.ErrorIs(t, err, transactions.ErrNotFound)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Repos().Transactions
	_, err := repo.Create(ctx, pendingInvestment("TXN_3"))
	require.NoError(t, err)

	now := time.Now().UTC()
	gw := "PP123"
	out, applied, err := repo.UpdateStatus(ctx, "TXN_3", transactions.StatusCompleted, transactions.StatusUpdate{
		GatewayTransactionID: &gw,
		CompletedAt:          &now,
		Metadata:             map[string]any{"source": "webhook"},
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, transactions.StatusCompleted, out.Status)
	require.NotNil(t, out.GatewayTransactionID)
	assert.Equal(t, "PP123", *out.GatewayTransactionID)

	reason := "late failure"
	out, applied, err = repo.UpdateStatus(ctx, "TXN_3", transactions.StatusFailed, transactions.StatusUpdate{FailureReason: &reason})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, transactions.StatusCompleted, out.Status)
	assert.Nil(t, out.FailureReason)

	_, _, err = repo.UpdateStatus(ctx, "TXN_3", transactions.StatusPending, transactions.StatusUpdate{})
	var verr *transactions.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestUpdateStatusSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Repos().Transactions
	_, err := repo.Create(ctx, pendingInvestment("TXN_4"))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, applied, err := repo.UpdateStatus(ctx, "TXN_4", transactions.StatusCompleted, transactions.StatusUpdate{})
			assert.NoError(t, err)
			if applied {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestGetForUpdateInsideLedgerTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Repos().Transactions.Create(ctx, pendingInvestment("TXN_L"))
	require.NoError(t, err)

	err = s.WithLedgerTx(ctx, func(r storage.LedgerRepos) error {
		got, err := r.Transactions.GetForUpdate(ctx, "TXN_L")
		require.NoError(t, err)
		assert.Equal(t, transactions.StatusPending, got.Status)

		_, err = r.Transactions.GetForUpdate(ctx, "missing")
		assert.ErrorIs(t, err, transactions.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestWithLedgerTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutUser(&users.User{ID: "user-1", Name: "Asha"}))
	_, err := s.Repos().Transactions.Create(ctx, pendingInvestment("TXN_5"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithLedgerTx(ctx, func(r storage.LedgerRepos) error {
		if _, _, err := r.Transactions.UpdateStatus(ctx, "TXN_5", transactions.StatusCompleted, transactions.StatusUpdate{}); err != nil {
			return err
		}
		if err := r.Balances.CreditGold(ctx, "user-1", decimal.RequireFromString("0.5")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Repos().Transactions.GetByTransactionID(ctx, "TXN_5")
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusPending, got.Status)

	u, err := s.FindByID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, u.GoldBalance.IsZero())
}

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Repos().Investments

	inv, err := investments.FromTransaction(pendingInvestment("TXN_6"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2000").Equal(inv.PurchasePrice))

	first, created, err := repo.CreateIfAbsent(ctx, inv)
	require.NoError(t, err)
	assert.True(t, created)

	again, _ := investments.FromTransaction(pendingInvestment("TXN_6"))
	second, created, err := repo.CreateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeductGoldClampsAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutUser(&users.User{ID: "user-1", GoldBalance: decimal.RequireFromString("0.3")}))

	shortfall, err := s.Repos().Balances.DeductGold(ctx, "user-1", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.2").Equal(shortfall), shortfall.String())

	u, err := s.FindByID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, u.GoldBalance.IsZero())

	_, err = s.Repos().Balances.DeductGold(ctx, "nobody", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestListByUserPaginatesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Repos().Transactions
	for _, id := range []string{"TXN_a", "TXN_b", "TXN_c"} {
		_, err := repo.Create(ctx, pendingInvestment(id))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	page, total, err := repo.ListByUser(ctx, "user-1", transactions.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "TXN_c", page[0].TransactionID)
	assert.Equal(t, "TXN_b", page[1].TransactionID)

	page, _, err = repo.ListByUser(ctx, "user-1", transactions.ListFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "TXN_a", page[0].TransactionID)

	page, total, err = repo.ListByUser(ctx, "user-1", transactions.ListFilter{Status: transactions.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, page)
}

func TestSumRefunds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Repos().Transactions
	orig := "TXN_orig"

	for i, st := range []transactions.Status{transactions.StatusPending, transactions.StatusCompleted, transactions.StatusFailed} {
		_, err := repo.Create(ctx, &transactions.Transaction{
			TransactionID:         "REFUND_" + string(rune('a'+i)),
			UserID:                "user-1",
			Kind:                  transactions.KindRefund,
			Amount:                decimal.NewFromInt(100),
			Status:                st,
			OriginalTransactionID: &orig,
		})
		require.NoError(t, err)
	}

	sum, err := repo.SumRefunds(ctx, orig, transactions.StatusPending, transactions.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(sum), sum.String())
}

func TestGoldPriceLatestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetCurrentPrice(ctx)
	assert.ErrorIs(t, err, goldprice.ErrNoPrice)

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutGoldPrice(&goldprice.Price{Price: decimal.NewFromInt(6000), Currency: "INR", Unit: "gram", Timestamp: base.Add(time.Hour)}))
	require.NoError(t, s.PutGoldPrice(&goldprice.Price{Price: decimal.NewFromInt(5900), Currency: "INR", Unit: "gram", Timestamp: base}))

	p, err := s.GetCurrentPrice(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(6000).Equal(p.Price))
}

func TestEventLogAppendOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev := s.Repos().Events

	require.NoError(t, ev.Append(ctx, "TXN_7", transactions.LogRequest, map[string]any{"amount": 100}))
	require.NoError(t, ev.Append(ctx, "TXN_7", transactions.LogResponse, nil))
	require.NoError(t, ev.Append(ctx, "TXN_70", transactions.LogWebhook, nil))

	logs, err := s.Logs("TXN_7")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, transactions.LogRequest, logs[0].LogType)
	assert.Equal(t, transactions.LogResponse, logs[1].LogType)
	assert.JSONEq(t, `{"amount":100}`, string(logs[0].Payload))
}
