package transactions

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	prefixPayment = "TXN"
	prefixRefund  = "REFUND"
)

var now = time.Now

// NewTransactionID returns an id of the form TXN_<unix-ms>_<8 hex>.
func NewTransactionID() string {
	return newID(prefixPayment)
}

// NewRefundID returns an id of the form REFUND_<unix-ms>_<8 hex>.
func NewRefundID() string {
	return newID(prefixRefund)
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now().UnixMilli(), uuid.NewString()[:8])
}
