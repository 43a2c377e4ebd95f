// Package checkout starts payments: it records the PENDING transaction and
// opens a gateway pay-page session for it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/transactions"
	"goldvault/internal/domain/users"
	"goldvault/internal/payments"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const goldPlaces = 4

type Request struct {
	UserID       string
	Amount       decimal.Decimal
	Type         string // canonical kind or legacy alias; empty means buy
	GoldQuantity decimal.NullDecimal
	Gateway      string
	Phone        string // overrides the profile phone on the pay page
}

type Result struct {
	Transaction *transactions.Transaction
	PaymentURL  string
}

type Service struct {
	ledger   storage.Ledger
	users    users.Directory
	prices   goldprice.Source
	gateways *payments.Manager
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewService(ledger storage.Ledger, dir users.Directory, prices goldprice.Source, gateways *payments.Manager, logger *zap.SugaredLogger) *Service {
	return &Service{
		ledger:   ledger,
		users:    dir,
		prices:   prices,
		gateways: gateways,
		logger:   logger,
		now:      time.Now,
	}
}

// Initiate validates the request, records a PENDING transaction and calls the
// gateway. An explicit rejection fails the transaction; a network error or
// timeout leaves it PENDING for the poll path. In both cases the Result is
// returned together with the gateway error.
func (s *Service) Initiate(ctx context.Context, req Request) (*Result, error) {
	kind, err := parseKind(req.Type)
	if err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, &transactions.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, &transactions.ValidationError{Field: "amount", Reason: "must have at most 2 decimal places"}
	}
	if req.GoldQuantity.Valid && kind != transactions.KindInvestment {
		return nil, &transactions.ValidationError{Field: "gold_quantity", Reason: "only gold purchases carry a quantity"}
	}
	if req.GoldQuantity.Valid && !req.GoldQuantity.Decimal.IsPositive() {
		return nil, &transactions.ValidationError{Field: "gold_quantity", Reason: "must be greater than zero"}
	}
	if req.GoldQuantity.Valid && !req.GoldQuantity.Decimal.Equal(req.GoldQuantity.Decimal.Round(goldPlaces)) {
		return nil, &transactions.ValidationError{Field: "gold_quantity", Reason: fmt.Sprintf("must have at most %d decimal places", goldPlaces)}
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	name := req.Gateway
	if name == "" {
		name = payments.PhonePeName
	}
	gw, err := s.gateways.Get(name)
	if err != nil {
		return nil, err
	}

	txn := &transactions.Transaction{
		TransactionID: transactions.NewTransactionID(),
		UserID:        user.ID,
		Kind:          kind,
		Amount:        req.Amount,
		Currency:      "INR",
		Status:        transactions.StatusPending,
		Gateway:       gw.Name(),
		Metadata: map[string]any{
			"initiatedAt": s.now().UTC().Format(time.RFC3339),
			"userEmail":   user.Email,
			"userName":    user.Name,
		},
	}
	if kind == transactions.KindInvestment {
		if err := s.priceGold(ctx, txn, req.GoldQuantity); err != nil {
			return nil, err
		}
	}

	repos := s.ledger.Repos()
	txn, err = repos.Transactions.Create(ctx, txn)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("transaction_id", txn.TransactionID, "gateway", gw.Name(), "source", "initiate")

	gwReq := payments.InitiateRequest{
		TransactionID: txn.TransactionID,
		UserID:        user.ID,
		Amount:        txn.Amount,
		Phone:         user.Phone,
	}
	if req.Phone != "" {
		gwReq.Phone = req.Phone
	}
	s.record(ctx, txn.TransactionID, transactions.LogRequest, map[string]any{
		"op": "initiate", "amount": gwReq.Amount.String(), "userId": gwReq.UserID,
	})

	res, err := gw.Initiate(ctx, gwReq)
	if len(res.Raw) > 0 {
		s.record(ctx, txn.TransactionID, transactions.LogResponse, res.Raw)
	}
	if err != nil {
		s.record(ctx, txn.TransactionID, transactions.LogError, map[string]any{"op": "initiate", "error": err.Error()})
		if payments.Ambiguous(err) {
			log.Warnw("initiate outcome unknown, left pending", "error", err)
			return &Result{Transaction: txn}, err
		}

		reason := res.ErrorMessage
		if reason == "" {
			reason = "Payment initiation failed"
		}
		log.Warnw("initiate rejected by gateway", "error", err)
		failed, _, uerr := repos.Transactions.UpdateStatus(ctx, txn.TransactionID, transactions.StatusFailed, transactions.StatusUpdate{
			FailureReason:   &reason,
			GatewayResponse: res.Raw,
		})
		if uerr != nil {
			return nil, errors.Join(err, fmt.Errorf("mark transaction failed: %w", uerr))
		}
		return &Result{Transaction: failed}, err
	}

	if err := repos.Transactions.SetGatewayRef(ctx, txn.TransactionID, res.GatewayTransactionID, res.PaymentURL, res.Raw); err != nil {
		return nil, fmt.Errorf("record gateway ref: %w", err)
	}
	txn.PaymentURL = &res.PaymentURL
	txn.GatewayResponse = res.Raw
	if res.GatewayTransactionID != "" {
		txn.GatewayTransactionID = &res.GatewayTransactionID
	}

	log.Infow("payment initiated", "amount", txn.Amount.String(), "kind", txn.Kind)
	return &Result{Transaction: txn, PaymentURL: res.PaymentURL}, nil
}

// priceGold fills the gold quantity and unit price of a purchase. A supplied
// quantity wins; otherwise it is derived from the current price.
func (s *Service) priceGold(ctx context.Context, txn *transactions.Transaction, qty decimal.NullDecimal) error {
	price, err := s.prices.GetCurrentPrice(ctx)
	if err != nil && !(errors.Is(err, goldprice.ErrNoPrice) && qty.Valid) {
		return err
	}

	if qty.Valid {
		txn.GoldQuantity = qty
		if price != nil {
			txn.PricePerUnit = decimal.NewNullDecimal(price.Price)
		} else {
			txn.PricePerUnit = decimal.NewNullDecimal(txn.Amount.DivRound(qty.Decimal, 2))
		}
		return nil
	}

	if !price.Price.IsPositive() {
		return goldprice.ErrNoPrice
	}
	derived := txn.Amount.DivRound(price.Price, goldPlaces)
	if !derived.IsPositive() {
		return &transactions.ValidationError{Field: "amount", Reason: "too small to buy any gold"}
	}
	txn.GoldQuantity = decimal.NewNullDecimal(derived)
	txn.PricePerUnit = decimal.NewNullDecimal(price.Price)
	return nil
}

func (s *Service) record(ctx context.Context, transactionID, logType string, payload any) {
	if err := s.ledger.Repos().Events.Append(ctx, transactionID, logType, payload); err != nil {
		s.logger.Warnw("append transaction log failed", "transaction_id", transactionID, "log_type", logType, "error", err)
	}
}

// parseKind accepts the purchase kinds a user can pay for.
func parseKind(raw string) (transactions.Kind, error) {
	if raw == "" {
		return transactions.KindInvestment, nil
	}
	k, err := transactions.ParseKind(raw)
	if err != nil {
		return "", err
	}
	if k != transactions.KindInvestment && k != transactions.KindDeposit {
		return "", &transactions.ValidationError{Field: "type", Reason: fmt.Sprintf("%s cannot be paid for", k)}
	}
	return k, nil
}
