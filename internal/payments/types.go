package payments

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// State is the normalized gateway outcome vocabulary.
type State string

const (
	StatePending   State = "PENDING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateDeclined  State = "DECLINED"
	StateUnknown   State = "UNKNOWN"
)

// Result is the normalized, unpersisted outcome of one gateway call.
type Result struct {
	Success              bool
	State                State
	Code                 string
	ErrorMessage         string
	PaymentURL           string // initiate only
	GatewayTransactionID string
	Raw                  json.RawMessage
}

type InitiateRequest struct {
	TransactionID string
	UserID        string
	Amount        decimal.Decimal
	Phone         string
}

type RefundRequest struct {
	OriginalTransactionID string
	RefundTransactionID   string
	Amount                decimal.Decimal
}

// Callback is the decoded payload of a signature-verified webhook.
type Callback struct {
	TransactionID        string
	GatewayTransactionID string
	Success              bool
	State                State
	Code                 string
	Message              string
	Raw                  json.RawMessage
}

// ErrorKind classifies a failed gateway call. Only Rejected is a definitive
// outcome; Network and Timeout leave the remote state unknown.
type ErrorKind string

const (
	Rejected ErrorKind = "REJECTED"
	Network  ErrorKind = "NETWORK"
	Timeout  ErrorKind = "TIMEOUT"
)

var (
	ErrGatewayRejected = errors.New("gateway rejected the request")
	ErrGatewayNetwork  = errors.New("gateway unreachable")
	ErrGatewayTimeout  = errors.New("gateway timed out")
)

type GatewayError struct {
	Kind   ErrorKind
	Op     string
	Code   string
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, kindText[e.Kind])
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

var kindText = map[ErrorKind]string{
	Rejected: "rejected",
	Network:  "network error",
	Timeout:  "timed out",
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is lets callers match on the kind with errors.Is(err, ErrGatewayTimeout).
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGatewayRejected:
		return e.Kind == Rejected
	case ErrGatewayNetwork:
		return e.Kind == Network
	case ErrGatewayTimeout:
		return e.Kind == Timeout
	}
	return false
}

// Ambiguous reports whether err leaves the remote outcome undetermined.
func Ambiguous(err error) bool {
	return errors.Is(err, ErrGatewayNetwork) || errors.Is(err, ErrGatewayTimeout)
}

// ToMinorUnits converts a rupee amount to paise, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
