package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of monetary operations the ledger records.
type Kind string

const (
	KindDeposit    Kind = "DEPOSIT"
	KindWithdrawal Kind = "WITHDRAWAL"
	KindInvestment Kind = "INVESTMENT"
	KindRefund     Kind = "REFUND"
	KindFee        Kind = "FEE"
)

// kindAliases maps every spelling accepted at the boundary to its Kind.
//
//	buy    -> INVESTMENT
//	sell   -> WITHDRAWAL
//	refund -> REFUND
var kindAliases = map[string]Kind{
	"deposit":    KindDeposit,
	"withdrawal": KindWithdrawal,
	"investment": KindInvestment,
	"refund":     KindRefund,
	"fee":        KindFee,
	"buy":        KindInvestment,
	"sell":       KindWithdrawal,
}

// ParseKind resolves canonical names and legacy aliases, case-insensitively.
func ParseKind(raw string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown transaction type %q", raw)}
	}
	return k, nil
}

// Valid reports whether k is one of the canonical kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindInvestment, KindRefund, KindFee:
		return true
	}
	return false
}

// Status is the lifecycle state of a Transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// ParseStatus accepts any casing of a canonical status plus "canceled".
func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return StatusPending, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "FAILED":
		return StatusFailed, nil
	case "CANCELLED", "CANCELED":
		return StatusCancelled, nil
	case "REFUNDED":
		return StatusRefunded, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
}

// Terminal reports whether no ordinary transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// transitions lists, per target status, the statuses it may be entered from.
// COMPLETED -> REFUNDED is the only edge out of a terminal state.
var transitions = map[Status][]Status{
	StatusCompleted: {StatusPending},
	StatusFailed:    {StatusPending},
	StatusCancelled: {StatusPending},
	StatusRefunded:  {StatusCompleted},
}

// AllowedFrom returns the statuses a transaction must currently hold for a
// move to target to be applied.
func AllowedFrom(target Status) []Status {
	return transitions[target]
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Transaction is one attempted monetary operation. Rows are never deleted.
type Transaction struct {
	TransactionID         string              `json:"transaction_id"`
	UserID                string              `json:"user_id"`
	Kind                  Kind                `json:"type"`
	Amount                decimal.Decimal     `json:"amount"`
	Currency              string              `json:"currency"`
	GoldQuantity          decimal.NullDecimal `json:"gold_quantity"`
	PricePerUnit          decimal.NullDecimal `json:"price_per_unit"`
	Status                Status              `json:"status"`
	Gateway               string              `json:"gateway,omitempty"`
	GatewayTransactionID  *string             `json:"gateway_transaction_id,omitempty"`
	PaymentURL            *string             `json:"payment_url,omitempty"`
	GatewayResponse       json.RawMessage     `json:"gateway_response,omitempty"`
	FailureReason         *string             `json:"failure_reason,omitempty"`
	OriginalTransactionID *string             `json:"original_transaction_id,omitempty"`
	Metadata              map[string]any      `json:"metadata,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// HasGold reports whether the transaction carries a positive gold quantity.
func (t *Transaction) HasGold() bool {
	return t.GoldQuantity.Valid && t.GoldQuantity.Decimal.IsPositive()
}

// Validate checks the invariants that hold for every persisted transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return &ValidationError{Field: "transaction_id", Reason: "must not be empty"}
	}
	if len(t.TransactionID) > 100 {
		return &ValidationError{Field: "transaction_id", Reason: "must be at most 100 characters"}
	}
	if strings.TrimSpace(t.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !t.Kind.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown transaction type %q", t.Kind)}
	}
	if t.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if t.GoldQuantity.Valid && t.GoldQuantity.Decimal.IsNegative() {
		return &ValidationError{Field: "gold_quantity", Reason: "must not be negative"}
	}
	if t.HasGold() && t.Kind != KindInvestment {
		return &ValidationError{Field: "gold_quantity", Reason: "only INVESTMENT transactions carry gold"}
	}
	if t.Kind == KindRefund && (t.OriginalTransactionID == nil || *t.OriginalTransactionID == "") {
		return &ValidationError{Field: "original_transaction_id", Reason: "refunds must reference the original transaction"}
	}
	return nil
}

// StatusUpdate carries the fields written alongside a status transition.
// Nil fields leave the stored value untouched; Metadata is merged.
type StatusUpdate struct {
	GatewayTransactionID *string
	GatewayResponse      json.RawMessage
	FailureReason        *string
	CompletedAt          *time.Time
	Metadata             map[string]any
}

// ListFilter narrows ListByUser. Zero values mean "no filter".
type ListFilter struct {
	Status Status
	Kind   Kind
	Limit  int
	Offset int
}

// Store is the transaction ledger contract.
//
// UpdateStatus is a conditional write: it applies only while the stored status
// is one of AllowedFrom(to), and reports applied=false (with the current row)
// when another writer got there first. Losing that race is not an error.
type Store interface {
	Create(ctx context.Context, t *Transaction) (*Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	// GetForUpdate holds the row until the enclosing ledger unit of work ends,
	// serializing writers that derive new rows from it.
	GetForUpdate(ctx context.Context, transactionID string) (*Transaction, error)
	UpdateStatus(ctx context.Context, transactionID string, to Status, upd StatusUpdate) (*Transaction, bool, error)
	SetGatewayRef(ctx context.Context, transactionID, gatewayTxID, paymentURL string, raw json.RawMessage) error
	ListByUser(ctx context.Context, userID string, f ListFilter) ([]*Transaction, int, error)
	SumRefunds(ctx context.Context, originalTransactionID string, statuses ...Status) (decimal.Decimal, error)
}

// EventLog keeps an append-only audit trail of gateway traffic per transaction.
type EventLog interface {
	Append(ctx context.Context, transactionID, logType string, payload any) error
}

const (
	LogRequest  = "request"
	LogResponse = "response"
	LogWebhook  = "webhook"
	LogStatus   = "status"
	LogError    = "error"
)
