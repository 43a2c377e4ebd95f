package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/payments"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrAmountExceedsOriginal = errors.New("refund amount exceeds original transaction amount")

type Request struct {
	OriginalTransactionID string
	Amount                decimal.NullDecimal // defaults to the full original amount
	Reason                string
	// RequestedBy, when set, must own the original transaction.
	RequestedBy string
}

type Result struct {
	Refund  *transactions.Transaction
	Gateway payments.Result
}

type Orchestrator struct {
	ledger   storage.Ledger
	gateways *payments.Manager
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewOrchestrator(ledger storage.Ledger, gateways *payments.Manager, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{ledger: ledger, gateways: gateways, logger: logger, now: time.Now}
}

// Refund records a PENDING REFUND transaction and asks the gateway to refund
// it. The original transaction is never touched here; reconciliation of the
// refund moves it to REFUNDED.
//
// On a gateway error the Result is still returned: the refund is FAILED when
// the gateway rejected it and stays PENDING when the outcome is ambiguous.
func (o *Orchestrator) Refund(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.OriginalTransactionID) == "" {
		return nil, &transactions.ValidationError{Field: "transaction_id", Reason: "must not be empty"}
	}
	if req.Amount.Valid && !req.Amount.Decimal.IsPositive() {
		return nil, &transactions.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if req.Amount.Valid && !req.Amount.Decimal.Equal(req.Amount.Decimal.Round(2)) {
		return nil, &transactions.ValidationError{Field: "amount", Reason: "must have at most 2 decimal places"}
	}

	var refund *transactions.Transaction
	err := o.ledger.WithLedgerTx(ctx, func(r storage.LedgerRepos) error {
		// The lock on the original serializes concurrent refunds against it
		// until this unit of work commits.
		orig, err := r.Transactions.GetForUpdate(ctx, req.OriginalTransactionID)
		if err != nil {
			return err
		}
		if req.RequestedBy != "" && orig.UserID != req.RequestedBy {
			return transactions.ErrNotFound
		}
		if orig.Kind == transactions.KindRefund {
			return &transactions.ValidationError{Field: "transaction_id", Reason: "a refund cannot be refunded"}
		}
		if orig.Status != transactions.StatusCompleted {
			return transactions.StateError(orig.TransactionID, orig.Status, transactions.StatusCompleted)
		}

		amount := orig.Amount
		if req.Amount.Valid {
			amount = req.Amount.Decimal
		}
		if amount.GreaterThan(orig.Amount) {
			return fmt.Errorf("%w: %s > %s", ErrAmountExceedsOriginal, amount, orig.Amount)
		}
		open, err := r.Transactions.SumRefunds(ctx, orig.TransactionID, transactions.StatusPending, transactions.StatusCompleted)
		if err != nil {
			return err
		}
		if open.Add(amount).GreaterThan(orig.Amount) {
			return fmt.Errorf("%w: %s already refunded or in flight, %s remaining",
				ErrAmountExceedsOriginal, open, orig.Amount.Sub(open))
		}

		origID := orig.TransactionID
		refund, err = r.Transactions.Create(ctx, &transactions.Transaction{
			TransactionID:         transactions.NewRefundID(),
			UserID:                orig.UserID,
			Kind:                  transactions.KindRefund,
			Amount:                amount,
			Currency:              orig.Currency,
			Status:                transactions.StatusPending,
			Gateway:               orig.Gateway,
			OriginalTransactionID: &origID,
			Metadata: map[string]any{
				"reason":      req.Reason,
				"requestedBy": req.RequestedBy,
				"initiatedAt": o.now().UTC().Format(time.RFC3339),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log := o.logger.With("transaction_id", refund.TransactionID, "original_transaction_id", req.OriginalTransactionID, "source", "refund")

	gw, err := o.gateways.Get(gatewayName(refund))
	if err != nil {
		return o.fail(ctx, refund, err.Error(), err)
	}

	gwReq := payments.RefundRequest{
		OriginalTransactionID: req.OriginalTransactionID,
		RefundTransactionID:   refund.TransactionID,
		Amount:                refund.Amount,
	}
	o.record(ctx, refund.TransactionID, transactions.LogRequest, map[string]any{
		"op": "refund", "originalTransactionId": gwReq.OriginalTransactionID, "amount": gwReq.Amount.String(),
	})

	res, err := gw.InitiateRefund(ctx, gwReq)
	if len(res.Raw) > 0 {
		o.record(ctx, refund.TransactionID, transactions.LogResponse, res.Raw)
	}
	switch {
	case err == nil:
	case payments.Ambiguous(err):
		log.Warnw("refund outcome unknown, left pending", "error", err)
		o.record(ctx, refund.TransactionID, transactions.LogError, map[string]any{"op": "refund", "error": err.Error()})
		return &Result{Refund: refund, Gateway: res}, err
	default:
		log.Warnw("refund rejected by gateway", "error", err)
		reason := res.ErrorMessage
		if reason == "" {
			reason = "Refund initiation failed"
		}
		out, ferr := o.fail(ctx, refund, reason, err)
		if out != nil {
			out.Gateway = res
		}
		return out, ferr
	}

	if err := o.ledger.Repos().Transactions.SetGatewayRef(ctx, refund.TransactionID, res.GatewayTransactionID, "", res.Raw); err != nil {
		return nil, fmt.Errorf("record refund gateway ref: %w", err)
	}
	refund.GatewayTransactionID = nilIfEmpty(res.GatewayTransactionID)
	refund.GatewayResponse = res.Raw

	log.Infow("refund initiated", "amount", refund.Amount.String(), "gateway", gw.Name())
	return &Result{Refund: refund, Gateway: res}, nil
}

// fail moves the refund to FAILED and returns cause alongside the result.
func (o *Orchestrator) fail(ctx context.Context, refund *transactions.Transaction, reason string, cause error) (*Result, error) {
	t, _, err := o.ledger.Repos().Transactions.UpdateStatus(ctx, refund.TransactionID, transactions.StatusFailed, transactions.StatusUpdate{
		FailureReason: &reason,
	})
	if err != nil {
		return nil, errors.Join(cause, fmt.Errorf("mark refund failed: %w", err))
	}
	return &Result{Refund: t}, cause
}

func (o *Orchestrator) record(ctx context.Context, transactionID, logType string, payload any) {
	if err := o.ledger.Repos().Events.Append(ctx, transactionID, logType, payload); err != nil {
		o.logger.Warnw("append transaction log failed", "transaction_id", transactionID, "log_type", logType, "error", err)
	}
}

func gatewayName(t *transactions.Transaction) string {
	if t.Gateway == "" {
		return payments.PhonePeName
	}
	return t.Gateway
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
