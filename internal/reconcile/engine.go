// Package reconcile applies gateway outcomes to the ledger. The poll path and
// the webhook path both end in Apply, and the ledger's conditional status
// update decides which caller performs the side effects.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goldvault/internal/domain/investments"
	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/notifications"
	"goldvault/internal/payments"

	"go.uber.org/zap"
)

var ErrSignatureInvalid = errors.New("webhook signature invalid")

type Source string

const (
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
)

// Transition is one gateway-determined move for a transaction.
type Transition struct {
	TransactionID        string
	Target               transactions.Status
	Source               Source
	GatewayTransactionID string
	Raw                  json.RawMessage
	FailureReason        string
}

// Outcome reports what Apply did. Applied is false for benign duplicates and
// for discarded transitions.
type Outcome struct {
	Transaction  *transactions.Transaction
	Applied      bool
	Discarded    bool
	GatewayState payments.State
	Investment   *investments.Investment
}

type Engine struct {
	ledger   storage.Ledger
	gateways *payments.Manager
	notifier notifications.Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewEngine(ledger storage.Ledger, gateways *payments.Manager, notifier notifications.Notifier, logger *zap.SugaredLogger) *Engine {
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	return &Engine{
		ledger:   ledger,
		gateways: gateways,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckStatus is the poll path. Terminal transactions are returned as stored
// without asking the gateway.
func (e *Engine) CheckStatus(ctx context.Context, transactionID string) (*Outcome, error) {
	t, err := e.ledger.Repos().Transactions.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return &Outcome{Transaction: t}, nil
	}

	gw, err := e.gateways.Get(gatewayName(t))
	if err != nil {
		return nil, err
	}

	res, err := gw.CheckStatus(ctx, transactionID)
	if err != nil {
		e.record(ctx, transactionID, transactions.LogError, map[string]any{"op": "status", "error": err.Error()})
		return nil, fmt.Errorf("check status %s: %w", transactionID, err)
	}
	e.record(ctx, transactionID, transactions.LogStatus, res.Raw)

	target, ok := targetForState(res.State)
	if !ok {
		e.logger.Infow("gateway reports no final outcome yet",
			"transaction_id", transactionID, "gateway", gw.Name(), "state", res.State, "code", res.Code)
		return &Outcome{Transaction: t, GatewayState: res.State}, nil
	}

	out, err := e.Apply(ctx, Transition{
		TransactionID:        transactionID,
		Target:               target,
		Source:               SourcePoll,
		GatewayTransactionID: res.GatewayTransactionID,
		Raw:                  res.Raw,
		FailureReason:        failureReason(res.ErrorMessage, res.Code),
	})
	if err != nil {
		return nil, err
	}
	out.GatewayState = res.State
	return out, nil
}

// HandleWebhook is the webhook path. A bad signature is rejected before the
// body is even decoded; a verified but undecodable body is discarded.
func (e *Engine) HandleWebhook(ctx context.Context, gateway string, body []byte, signature string) (*Outcome, error) {
	gw, err := e.gateways.Get(gateway)
	if err != nil {
		return nil, err
	}
	if !gw.VerifyWebhookSignature(body, signature) {
		e.logger.Warnw("webhook signature rejected", "gateway", gw.Name())
		return nil, ErrSignatureInvalid
	}

	cb, err := gw.DecodeCallback(body)
	if err != nil {
		e.logger.Warnw("discarding malformed webhook", "gateway", gw.Name(), "error", err)
		return &Outcome{Discarded: true}, nil
	}
	e.record(ctx, cb.TransactionID, transactions.LogWebhook, cb.Raw)

	target := transactions.StatusCompleted
	if !cb.Success {
		if cb.State == payments.StatePending {
			e.logger.Infow("webhook reports pending payment", "transaction_id", cb.TransactionID, "gateway", gw.Name(), "code", cb.Code)
			return &Outcome{GatewayState: cb.State}, nil
		}
		target = transactions.StatusFailed
	}

	out, err := e.Apply(ctx, Transition{
		TransactionID:        cb.TransactionID,
		Target:               target,
		Source:               SourceWebhook,
		GatewayTransactionID: cb.GatewayTransactionID,
		Raw:                  cb.Raw,
		FailureReason:        failureReason(cb.Message, cb.Code),
	})
	if err != nil {
		return nil, err
	}
	out.GatewayState = cb.State
	return out, nil
}

// Apply moves a transaction to tr.Target and, if this call is the one that
// moved it, performs the completion side effects in the same ledger unit of
// work. Unknown transactions are discarded and losing the race is a no-op.
func (e *Engine) Apply(ctx context.Context, tr Transition) (*Outcome, error) {
	log := e.logger.With("transaction_id", tr.TransactionID, "to", tr.Target, "source", tr.Source)

	cur, err := e.ledger.Repos().Transactions.GetByTransactionID(ctx, tr.TransactionID)
	if errors.Is(err, transactions.ErrNotFound) {
		log.Warnw("discarding transition for unknown transaction")
		return &Outcome{Discarded: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if !transactions.CanTransition(cur.Status, tr.Target) {
		log.Infow("transition already applied", "from", cur.Status)
		return &Outcome{Transaction: cur}, nil
	}

	now := e.now().UTC()
	upd := transactions.StatusUpdate{
		GatewayResponse: tr.Raw,
		Metadata:        map[string]any{"resolvedBy": string(tr.Source), "resolvedAt": now.Format(time.RFC3339)},
	}
	if tr.GatewayTransactionID != "" {
		upd.GatewayTransactionID = &tr.GatewayTransactionID
	}
	switch tr.Target {
	case transactions.StatusCompleted:
		upd.CompletedAt = &now
	case transactions.StatusFailed:
		reason := tr.FailureReason
		if reason == "" {
			reason = "Payment failed"
		}
		upd.FailureReason = &reason
	}

	out := &Outcome{}
	err = e.ledger.WithLedgerTx(ctx, func(r storage.LedgerRepos) error {
		t, applied, err := r.Transactions.UpdateStatus(ctx, tr.TransactionID, tr.Target, upd)
		if err != nil {
			return err
		}
		out.Transaction, out.Applied = t, applied
		if !applied || tr.Target != transactions.StatusCompleted {
			return nil
		}

		switch {
		case t.Kind == transactions.KindInvestment && t.HasGold():
			inv, err := e.createInvestment(ctx, r, t)
			if err != nil {
				return err
			}
			out.Investment = inv
		case t.Kind == transactions.KindRefund:
			return e.settleRefund(ctx, r, t)
		}
		return nil
	})
	if errors.Is(err, transactions.ErrNotFound) {
		log.Warnw("discarding transition for unknown transaction")
		return &Outcome{Discarded: true}, nil
	}
	if err != nil {
		log.Errorw("apply transition failed", "error", err)
		return nil, fmt.Errorf("apply %s -> %s: %w", tr.TransactionID, tr.Target, err)
	}

	if !out.Applied {
		log.Infow("transition already applied", "from", out.Transaction.Status)
		return out, nil
	}

	log.Infow("transition applied", "from", cur.Status, "gateway", out.Transaction.Gateway)
	resolved := *out.Transaction
	notifications.CallAsync(ctx, e.logger, "TransactionResolved", func(ctx context.Context) error {
		e.notifier.TransactionResolved(ctx, &resolved)
		return nil
	})
	return out, nil
}

// createInvestment runs only for the caller whose status update applied.
func (e *Engine) createInvestment(ctx context.Context, r storage.LedgerRepos, t *transactions.Transaction) (*investments.Investment, error) {
	inv, err := investments.FromTransaction(t)
	if err != nil {
		return nil, err
	}
	inv, created, err := r.Investments.CreateIfAbsent(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create investment: %w", err)
	}
	if !created {
		e.logger.Warnw("investment already linked to transaction", "transaction_id", t.TransactionID, "investment_id", inv.ID)
		return inv, nil
	}
	if err := r.Balances.CreditGold(ctx, t.UserID, inv.GoldQuantity); err != nil {
		return nil, fmt.Errorf("credit gold: %w", err)
	}
	return inv, nil
}

// settleRefund takes back the refunded share of gold and marks the original
// REFUNDED once completed refunds cover its full amount.
func (e *Engine) settleRefund(ctx context.Context, r storage.LedgerRepos, refund *transactions.Transaction) error {
	if refund.OriginalTransactionID == nil {
		return nil
	}
	origID := *refund.OriginalTransactionID
	log := e.logger.With("transaction_id", refund.TransactionID, "original_transaction_id", origID)

	orig, err := r.Transactions.GetByTransactionID(ctx, origID)
	if errors.Is(err, transactions.ErrNotFound) {
		log.Warnw("refund references unknown original")
		return nil
	}
	if err != nil {
		return err
	}

	if orig.HasGold() && orig.Amount.IsPositive() {
		qty := orig.GoldQuantity.Decimal.Mul(refund.Amount).DivRound(orig.Amount, 4)
		shortfall, err := r.Balances.DeductGold(ctx, orig.UserID, qty)
		if err != nil {
			return fmt.Errorf("deduct gold: %w", err)
		}
		if shortfall.IsPositive() {
			log.Warnw("gold balance below refunded quantity", "requested", qty.String(), "shortfall", shortfall.String())
		}
	}

	settled, err := r.Transactions.SumRefunds(ctx, origID, transactions.StatusCompleted)
	if err != nil {
		return err
	}
	if settled.LessThan(orig.Amount) {
		return nil
	}
	_, applied, err := r.Transactions.UpdateStatus(ctx, origID, transactions.StatusRefunded, transactions.StatusUpdate{
		Metadata: map[string]any{"refundedBy": refund.TransactionID},
	})
	if err != nil {
		return err
	}
	if applied {
		log.Infow("original fully refunded")
	}
	return nil
}

// record appends to the event log. Audit rows never fail the caller.
func (e *Engine) record(ctx context.Context, transactionID, logType string, payload any) {
	if raw, ok := payload.(json.RawMessage); ok && len(raw) == 0 {
		payload = nil
	}
	if err := e.ledger.Repos().Events.Append(ctx, transactionID, logType, payload); err != nil {
		e.logger.Warnw("append transaction log failed", "transaction_id", transactionID, "log_type", logType, "error", err)
	}
}

// targetForState maps a polled gateway state to a ledger status. PENDING and
// UNKNOWN mean no change.
func targetForState(s payments.State) (transactions.Status, bool) {
	switch s {
	case payments.StateCompleted:
		return transactions.StatusCompleted, true
	case payments.StateFailed, payments.StateDeclined:
		return transactions.StatusFailed, true
	}
	return "", false
}

func gatewayName(t *transactions.Transaction) string {
	if t.Gateway == "" {
		return payments.PhonePeName
	}
	return t.Gateway
}

func failureReason(message, code string) string {
	if message != "" {
		return message
	}
	return code
}
