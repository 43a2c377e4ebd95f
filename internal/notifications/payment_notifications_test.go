package notifications

import (
	"context"
	"errors"
	"testing"

	"goldvault/internal/domain/transactions"

	"github.com/9ssi7/exponent"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePush struct {
	sent []*exponent.Message
	err  error
}

func (f *fakePush) Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error) {
	f.sent = append(f.sent, msgs...)
	return nil, f.err
}

func (f *fakePush) PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error) {
	return f.Publish(ctx, []*exponent.Message{msg})
}

type fakeTokens map[string][]string

func (f fakeTokens) TokensForUser(ctx context.Context, userID string) ([]string, error) {
	return f[userID], nil
}

func TestSendPaymentNotification(t *testing.T) {
	push := &fakePush{}
	txn := &transactions.Transaction{
		TransactionID: "TXN_1",
		UserID:        "user-1",
		Kind:          transactions.KindInvestment,
		Amount:        decimal.NewFromInt(100),
		GoldQuantity:  decimal.NewNullDecimal(decimal.RequireFromString("0.015")),
		Status:        transactions.StatusCompleted,
	}

	err := SendPaymentNotification(context.Background(), push, fakeTokens{"user-1": {"ExponentPushToken[a]", "ExponentPushToken[b]"}}, txn)
	require.NoError(t, err)
	require.Len(t, push.sent, 2)
	assert.Equal(t, "Gold Purchased", push.sent[0].Title)
	assert.Equal(t, "TXN_1", push.sent[0].Data["transactionId"])

	err = SendPaymentNotification(context.Background(), push, fakeTokens{}, txn)
	assert.ErrorIs(t, err, ErrNoPushTokens)
}

func TestPaymentMessage(t *testing.T) {
	tests := []struct {
		kind   transactions.Kind
		status transactions.Status
		title  string
	}{
		{transactions.KindDeposit, transactions.StatusCompleted, "Payment Successful"},
		{transactions.KindDeposit, transactions.StatusFailed, "Payment Failed"},
		{transactions.KindRefund, transactions.StatusCompleted, "Refund Processed"},
		{transactions.KindRefund, transactions.StatusFailed, "Refund Failed"},
		{transactions.KindInvestment, transactions.StatusRefunded, "Payment Update"},
	}
	for _, tt := range tests {
		title, _ := paymentMessage(&transactions.Transaction{Kind: tt.kind, Status: tt.status, Amount: decimal.NewFromInt(5)})
		assert.Equal(t, tt.title, title, "%s/%s", tt.kind, tt.status)
	}
}

func TestPushNotifierSwallowsErrors(t *testing.T) {
	push := &fakePush{err: errors.New("expo down")}
	n := NewPushNotifier(push, fakeTokens{"u": {"tok"}}, zapNop())
	n.TransactionResolved(context.Background(), &transactions.Transaction{UserID: "u", Status: transactions.StatusFailed})
	assert.Len(t, push.sent, 1)
}

func zapNop() *zap.SugaredLogger { return zap.NewNop().Sugar() }
