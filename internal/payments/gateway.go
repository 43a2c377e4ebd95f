package payments

import "context"

//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks goldvault/internal/payments Gateway

// Gateway defines a common interface for all payment providers. Implementations
// perform no persistence.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (Result, error)
	CheckStatus(ctx context.Context, transactionID string) (Result, error)
	InitiateRefund(ctx context.Context, req RefundRequest) (Result, error)
	// VerifyWebhookSignature never errors: false means reject the delivery.
	VerifyWebhookSignature(body []byte, signature string) bool
	DecodeCallback(body []byte) (Callback, error)
}
