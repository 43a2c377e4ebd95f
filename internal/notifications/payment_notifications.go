package notifications

import (
	"context"
	"errors"
	"fmt"

	"goldvault/internal/domain/transactions"

	"github.com/9ssi7/exponent"
	"go.uber.org/zap"
)

// Notifier is told about every committed terminal transition. Delivery is
// best effort: implementations log failures and never block the ledger.
type Notifier interface {
	TransactionResolved(ctx context.Context, t *transactions.Transaction)
}

type Nop struct{}

func (Nop) TransactionResolved(context.Context, *transactions.Transaction) {}

// TokenSource resolves the Expo push tokens registered for a user.
type TokenSource interface {
	TokensForUser(ctx context.Context, userID string) ([]string, error)
}

var ErrNoPushTokens = errors.New("no push tokens")

type PushNotifier struct {
	push   PushSender
	tokens TokenSource
	logger *zap.SugaredLogger
}

func NewPushNotifier(push PushSender, tokens TokenSource, logger *zap.SugaredLogger) *PushNotifier {
	return &PushNotifier{push: push, tokens: tokens, logger: logger}
}

func (n *PushNotifier) TransactionResolved(ctx context.Context, t *transactions.Transaction) {
	if err := SendPaymentNotification(ctx, n.push, n.tokens, t); err != nil && !errors.Is(err, ErrNoPushTokens) {
		n.logger.Warnw("payment notification failed", "transaction_id", t.TransactionID, "error", err)
	}
}

// SendPaymentNotification pushes one message per registered device of the
// transaction's owner.
func SendPaymentNotification(ctx context.Context, push PushSender, tokens TokenSource, t *transactions.Transaction) error {
	list, err := tokens.TokensForUser(ctx, t.UserID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return ErrNoPushTokens
	}

	title, body := paymentMessage(t)

	msgs := make([]*exponent.Message, 0, len(list))
	for _, tk := range list {
		token := exponent.Token(tk)
		msgs = append(msgs, &exponent.Message{
			To:    []*exponent.Token{&token},
			Title: title,
			Body:  body,
			// drives deep linking when tapped
			Data: map[string]string{
				"type":          "payment",
				"status":        string(t.Status),
				"transactionId": t.TransactionID,
				"screen":        "transaction-details-screen",
			},
		})
	}

	_, err = push.Publish(ctx, msgs)
	return err
}

func paymentMessage(t *transactions.Transaction) (string, string) {
	amount := t.Amount.StringFixed(2)
	switch {
	case t.Kind == transactions.KindRefund && t.Status == transactions.StatusCompleted:
		return "Refund Processed", fmt.Sprintf("Your refund of ₹%s has been processed.", amount)
	case t.Kind == transactions.KindRefund:
		return "Refund Failed", fmt.Sprintf("Your refund of ₹%s could not be processed.", amount)
	case t.Status == transactions.StatusCompleted && t.HasGold():
		return "Gold Purchased", fmt.Sprintf("%sg of gold has been added to your vault.", t.GoldQuantity.Decimal.String())
	case t.Status == transactions.StatusCompleted:
		return "Payment Successful", fmt.Sprintf("Your payment of ₹%s was successful.", amount)
	case t.Status == transactions.StatusFailed:
		return "Payment Failed", fmt.Sprintf("Your payment of ₹%s failed. No money was taken.", amount)
	default:
		return "Payment Update", fmt.Sprintf("Your payment %s is now %s.", t.TransactionID, t.Status)
	}
}
