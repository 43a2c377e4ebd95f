package reconcile_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"goldvault/internal/domain/storage/boltledger"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"
	"goldvault/internal/payments"
	"goldvault/internal/payments/mocks"
	"goldvault/internal/reconcile"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu   sync.Mutex
	seen []string
	// gate, when set, holds every notification until it is closed
	gate chan struct{}
}

func (n *recordingNotifier) TransactionResolved(ctx context.Context, t *transactions.Transaction) {
	if n.gate != nil {
		<-n.gate
	}
	entry := t.TransactionID + ":" + string(t.Status)
	if ctx.Err() != nil {
		entry += ":" + ctx.Err().Error()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, entry)
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.seen...)
}

func (n *recordingNotifier) eventually(t *testing.T, want ...string) {
	t.Helper()
	assert.Eventually(t, func() bool { return len(n.snapshot()) >= len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, n.snapshot())
}

type fixture struct {
	engine   *reconcile.Engine
	store    *boltledger.Store
	gw       *mocks.MockGateway
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	gw := mocks.NewMockGateway(ctrl)
	gw.EXPECT().Name().Return(payments.PhonePeName).AnyTimes()
	m := payments.NewManager()
	m.Register(gw)

	store, err := boltledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.PutUser(&users.User{ID: "user-1", Name: "Asha", IsActive: true}))

	n := &recordingNotifier{}
	return &fixture{
		engine:   reconcile.NewEngine(store, m, n, zap.NewNop().Sugar()),
		store:    store,
		gw:       gw,
		notifier: n,
	}
}

func (f *fixture) createInvestment(t *testing.T, id, amount, gold string) {
	t.Helper()
	_, err := f.store.Repos().Transactions.Create(context.Background(), &transactions.Transaction{
		TransactionID: id,
		UserID:        "user-1",
		Kind:          transactions.KindInvestment,
		Amount:        decimal.RequireFromString(amount),
		GoldQuantity:  decimal.NewNullDecimal(decimal.RequireFromString(gold)),
		Status:        transactions.StatusPending,
		Gateway:       payments.PhonePeName,
	})
	require.NoError(t, err)
}

func (f *fixture) expectWebhook(id string, success bool) {
	f.gw.EXPECT().VerifyWebhookSignature(gomock.Any(), "sig").Return(true)
	state := payments.StateCompleted
	if !success {
		state = payments.StateFailed
	}
	f.gw.EXPECT().DecodeCallback(gomock.Any()).Return(payments.Callback{
		TransactionID:        id,
		GatewayTransactionID: "T" + id,
		Success:              success,
		State:                state,
		Code:                 "PAYMENT_SUCCESS",
		Raw:                  json.RawMessage(`{"success":true}`),
	}, nil)
}

func (f *fixture) status(t *testing.T, id string) transactions.Status {
	t.Helper()
	got, err := f.store.Repos().Transactions.GetByTransactionID(context.Background(), id)
	require.NoError(t, err)
	return got.Status
}

func (f *fixture) gold(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := f.store.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	return u.GoldBalance
}

func (f *fixture) investments(t *testing.T) int {
	t.Helper()
	list, err := f.store.Repos().Investments.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	return len(list)
}

func TestWebhookSuccessCreatesOneInvestment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createInvestment(t, "TXN_A", "100.00", "0.015")

	f.expectWebhook("TXN_A", true)
	out, err := f.engine.HandleWebhook(ctx, "phonepe", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	require.NotNil(t, out.Investment)
	assert.True(t, decimal.RequireFromString("0.015").Equal(out.Investment.GoldQuantity))
	assert.Equal(t, transactions.StatusCompleted, out.Transaction.Status)
	assert.NotNil(t, out.Transaction.CompletedAt)
	require.NotNil(t, out.Transaction.GatewayTransactionID)
	assert.Equal(t, "TTXN_A", *out.Transaction.GatewayTransactionID)

	assert.Equal(t, 1, f.investments(t))
	assert.True(t, decimal.RequireFromString("0.015").Equal(f.gold(t)))
	f.notifier.eventually(t, "TXN_A:COMPLETED")

	logs, err := f.store.Logs("TXN_A")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, transactions.LogWebhook, logs[0].LogType)
}

func TestNotificationRunsAfterWebhookReturns(t *testing.T) {
	f := newFixture(t)
	f.notifier.gate = make(chan struct{})
	f.createInvestment(t, "TXN_N", "100.00", "0.015")

	ctx, cancel := context.WithCancel(context.Background())
	f.expectWebhook("TXN_N", true)
	out, err := f.engine.HandleWebhook(ctx, "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, out.Applied)

	// the request is over before the push is delivered
	cancel()
	assert.Empty(t, f.notifier.snapshot())

	close(f.notifier.gate)
	f.notifier.eventually(t, "TXN_N:COMPLETED")
}

func TestDuplicateWebhookIsBenign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createInvestment(t, "TXN_B", "100.00", "0.015")

	f.expectWebhook("TXN_B", true)
	_, err := f.engine.HandleWebhook(ctx, "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)

	f.expectWebhook("TXN_B", true)
	out, err := f.engine.HandleWebhook(ctx, "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Nil(t, out.Investment)

	assert.Equal(t, 1, f.investments(t))
	assert.True(t, decimal.RequireFromString("0.015").Equal(f.gold(t)))
	f.notifier.eventually(t, "TXN_B:COMPLETED")
}

func TestLateSuccessAfterDeclineStaysFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createInvestment(t, "TXN_C", "100.00", "0.015")

	f.gw.EXPECT().CheckStatus(gomock.Any(), "TXN_C").Return(payments.Result{
		State:        payments.StateDeclined,
		Code:         "PAYMENT_DECLINED",
		ErrorMessage: "Payment declined by bank",
	}, nil)
	out, err := f.engine.CheckStatus(ctx, "TXN_C")
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, payments.StateDeclined, out.GatewayState)
	require.NotNil(t, out.Transaction.FailureReason)
	assert.Equal(t, "Payment declined by bank", *out.Transaction.FailureReason)

	f.expectWebhook("TXN_C", true)
	out, err = f.engine.HandleWebhook(ctx, "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.False(t, out.Applied)

	assert.Equal(t, transactions.StatusFailed, f.status(t, "TXN_C"))
	assert.Equal(t, 0, f.investments(t))
	assert.True(t, f.gold(t).IsZero())
}

func TestBadSignatureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.createInvestment(t, "TXN_D", "100.00", "0.015")

	f.gw.EXPECT().VerifyWebhookSignature(gomock.Any(), "forged").Return(false)
	_, err := f.engine.HandleWebhook(context.Background(), "PHONEPE", []byte(`{}`), "forged")
	assert.ErrorIs(t, err, reconcile.ErrSignatureInvalid)
	assert.Equal(t, transactions.StatusPending, f.status(t, "TXN_D"))
}

func TestUnknownTransactionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.expectWebhook("TXN_GHOST", true)

	out, err := f.engine.HandleWebhook(context.Background(), "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, out.Discarded)
	assert.False(t, out.Applied)
}

func TestMalformedVerifiedWebhookIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.gw.EXPECT().VerifyWebhookSignature(gomock.Any(), "sig").Return(true)
	f.gw.EXPECT().DecodeCallback(gomock.Any()).Return(payments.Callback{}, errors.New("bad base64"))

	out, err := f.engine.HandleWebhook(context.Background(), "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, out.Discarded)
}

func TestPendingWebhookChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.createInvestment(t, "TXN_P", "100.00", "0.015")
	f.gw.EXPECT().VerifyWebhookSignature(gomock.Any(), "sig").Return(true)
	f.gw.EXPECT().DecodeCallback(gomock.Any()).Return(payments.Callback{
		TransactionID: "TXN_P",
		State:         payments.StatePending,
		Code:          "PAYMENT_PENDING",
	}, nil)

	out, err := f.engine.HandleWebhook(context.Background(), "PHONEPE", []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, transactions.StatusPending, f.status(t, "TXN_P"))
}

func TestPollNonFinalStatesChangeNothing(t *testing.T) {
	for _, state := range []payments.State{payments.StatePending, payments.StateUnknown} {
		t.Run(string(state), func(t *testing.T) {
			f := newFixture(t)
			f.createInvestment(t, "TXN_E", "100.00", "0.015")
			f.gw.EXPECT().CheckStatus(gomock.Any(), "TXN_E").Return(payments.Result{State: state}, nil)

			out, err := f.engine.CheckStatus(context.Background(), "TXN_E")
			require.NoError(t, err)
			assert.False(t, out.Applied)
			assert.Equal(t, state, out.GatewayState)
			assert.Equal(t, transactions.StatusPending, f.status(t, "TXN_E"))
		})
	}
}

func TestPollGatewayErrorLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.createInvestment(t, "TXN_F", "100.00", "0.015")
	f.gw.EXPECT().CheckStatus(gomock.Any(), "TXN_F").
		Return(payments.Result{}, &payments.GatewayError{Kind: payments.Timeout, Op: "status"})

	_, err := f.engine.CheckStatus(context.Background(), "TXN_F")
	assert.ErrorIs(t, err, payments.ErrGatewayTimeout)
	assert.Equal(t, transactions.StatusPending, f.status(t, "TXN_F"))

	logs, err := f.store.Logs("TXN_F")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, transactions.LogError, logs[0].LogType)
}

func TestPollTerminalSkipsGateway(t *testing.T) {
	f := newFixture(t)
	f.createInvestment(t, "TXN_G", "100.00", "0.015")
	_, err := f.engine.Apply(context.Background(), reconcile.Transition{
		TransactionID: "TXN_G", Target: transactions.StatusFailed, Source: reconcile.SourcePoll,
	})
	require.NoError(t, err)

	// no CheckStatus expectation: a gateway call fails the test
	out, err := f.engine.CheckStatus(context.Background(), "TXN_G")
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusFailed, out.Transaction.Status)
	require.NotNil(t, out.Transaction.FailureReason)
	assert.Equal(t, "Payment failed", *out.Transaction.FailureReason)
}

func TestPollUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CheckStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, transactions.ErrNotFound)
}

func TestConcurrentPollAndWebhookCreditOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createInvestment(t, "TXN_H", "250.00", "0.04")

	f.gw.EXPECT().VerifyWebhookSignature(gomock.Any(), "sig").Return(true).AnyTimes()
	f.gw.EXPECT().DecodeCallback(gomock.Any()).Return(payments.Callback{TransactionID: "TXN_H", Success: true, State: payments.StateCompleted}, nil).AnyTimes()
	f.gw.EXPECT().CheckStatus(gomock.Any(), "TXN_H").Return(payments.Result{Success: true, State: payments.StateCompleted}, nil).AnyTimes()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var (
				out *reconcile.Outcome
				err error
			)
			if i%2 == 0 {
				out, err = f.engine.HandleWebhook(ctx, "PHONEPE", []byte(`{}`), "sig")
			} else {
				out, err = f.engine.CheckStatus(ctx, "TXN_H")
			}
			if !assert.NoError(t, err) {
				return
			}
			if out.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, transactions.StatusCompleted, f.status(t, "TXN_H"))
	assert.Equal(t, 1, f.investments(t))
	assert.True(t, decimal.RequireFromString("0.04").Equal(f.gold(t)), f.gold(t).String())
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.createInvestment(t, "TXN_I", "100.00", "0.015")

	for i := 0; i < 5; i++ {
		_, err := f.engine.Apply(context.Background(), reconcile.Transition{
			TransactionID: "TXN_I", Target: transactions.StatusCompleted, Source: reconcile.SourceWebhook,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.investments(t))

	// no sequence leaves a terminal state
	for _, target := range []transactions.Status{transactions.StatusFailed, transactions.StatusCancelled} {
		out, err := f.engine.Apply(context.Background(), reconcile.Transition{TransactionID: "TXN_I", Target: target})
		require.NoError(t, err)
		assert.False(t, out.Applied)
	}
	assert.Equal(t, transactions.StatusCompleted, f.status(t, "TXN_I"))
}

func (f *fixture) createRefund(t *testing.T, id, original, amount string) {
	t.Helper()
	_, err := f.store.Repos().Transactions.Create(context.Background(), &transactions.Transaction{
		TransactionID:         id,
		UserID:                "user-1",
		Kind:                  transactions.KindRefund,
		Amount:                decimal.RequireFromString(amount),
		Status:                transactions.StatusPending,
		Gateway:               payments.PhonePeName,
		OriginalTransactionID: &original,
	})
	require.NoError(t, err)
}

func TestRefundSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createInvestment(t, "TXN_R", "100.00", "0.015")
	_, err := f.engine.Apply(ctx, reconcile.Transition{TransactionID: "TXN_R", Target: transactions.StatusCompleted})
	require.NoError(t, err)

	f.createRefund(t, "REFUND_1", "TXN_R", "40")
	_, err = f.engine.Apply(ctx, reconcile.Transition{TransactionID: "REFUND_1", Target: transactions.StatusCompleted, Source: reconcile.SourceWebhook})
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusCompleted, f.status(t, "TXN_R"))
	assert.True(t, decimal.RequireFromString("0.009").Equal(f.gold(t)), f.gold(t).String())

	f.createRefund(t, "REFUND_2", "TXN_R", "60")
	_, err = f.engine.Apply(ctx, reconcile.Transition{TransactionID: "REFUND_2", Target: transactions.StatusCompleted, Source: reconcile.SourcePoll})
	require.NoError(t, err)
	assert.Equal(t, transactions.StatusRefunded, f.status(t, "TXN_R"))
	assert.True(t, f.gold(t).IsZero(), f.gold(t).String())

	// a duplicate refund callback deducts nothing further
	out, err := f.engine.Apply(ctx, reconcile.Transition{TransactionID: "REFUND_2", Target: transactions.StatusCompleted})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.True(t, f.gold(t).IsZero())
}

func TestWebhookWithPhonePeClient(t *testing.T) {
	client, err := payments.NewPhonePeClient(payments.PhonePeConfig{MerchantID: "MERCHANTUAT", APIKey: "salt-key"})
	require.NoError(t, err)
	m := payments.NewManager()
	m.Register(client)

	store, err := boltledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.PutUser(&users.User{ID: "user-1"}))
	_, err = store.Repos().Transactions.Create(context.Background(), &transactions.Transaction{
		TransactionID: "TXN_X",
		UserID:        "user-1",
		Kind:          transactions.KindDeposit,
		Amount:        decimal.NewFromInt(500),
		Gateway:       payments.PhonePeName,
	})
	require.NoError(t, err)

	engine := reconcile.NewEngine(store, m, nil, zap.NewNop().Sugar())

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"success":false,"code":"PAYMENT_ERROR","message":"Card expired","data":{"merchantTransactionId":"TXN_X","transactionId":"T1","state":"FAILED"}}`))
	body := []byte(`{"response":"` + encoded + `"}`)

	_, err = engine.HandleWebhook(context.Background(), "PHONEPE", body, "deadbeef###1")
	require.ErrorIs(t, err, reconcile.ErrSignatureInvalid)

	out, err := engine.HandleWebhook(context.Background(), "PHONEPE", body, payments.Checksum(encoded, "salt-key", "1"))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, transactions.StatusFailed, out.Transaction.Status)
	require.NotNil(t, out.Transaction.FailureReason)
	assert.Equal(t, "Card expired", *out.Transaction.FailureReason)
}
