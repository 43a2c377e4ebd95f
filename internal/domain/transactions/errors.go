package transactions

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("transaction not found")
	ErrDuplicateID  = errors.New("transaction id already exists")
	ErrInvalidState = errors.New("transaction is not in the required state")

	QueryTimeoutDuration = time.Second * 5
)

// ValidationError rejects bad input before any gateway call or write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError wraps ErrInvalidState with the status that was found.
func StateError(transactionID string, got Status, want ...Status) error {
	return fmt.Errorf("%w: %s is %s, want %v", ErrInvalidState, transactionID, got, want)
}
