package gateways

import (
	"context"
	"net/http"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// PaymentIntent carries the data an adapter needs to start a payment.
type PaymentIntent struct {
	PaymentID   string
	OrderNumber string
	AmountCents int64
	Currency    string
	Method      enums.PaymentMethod
	CustomerRef string
	Email       string
	Phone       string
}

// InitiateResult is what a gateway returns when a payment is started.
type InitiateResult struct {
	TransactionID string
	ReferenceID   string
	RedirectURL   string
	Status        enums.PaymentStatus
	RawResponse   []byte
}

// VerifyResult reports the gateway-side state of a transaction.
type VerifyResult struct {
	Status      enums.PaymentStatus
	AmountCents int64
	RawResponse []byte
}

// RefundResult reports the outcome of a refund request.
type RefundResult struct {
	RefundID    string
	Status      enums.PaymentStatus
	AmountCents int64
	RawResponse []byte
}

// WebhookRequest is the raw inbound callback before any trust is established.
type WebhookRequest struct {
	Body    []byte
	Headers http.Header
}

// NormalizedEvent is the gateway-agnostic view of a webhook payload.
// Malformed or irrelevant payloads normalize to status ignored, never to an
// error: the reconciliation service acknowledges them so the gateway stops
// retrying.
type NormalizedEvent struct {
	EventID       string
	Status        enums.WebhookEventStatus
	TransactionID string
	ReferenceID   string
	AmountCents   int64
	ErrorMessage  string
}

// Adapter is the per-provider gateway contract. One implementation per
// payment provider, resolved by identifier through the Registry.
type Adapter interface {
	Name() string
	SupportsMethod(method enums.PaymentMethod) bool
	Initiate(ctx context.Context, intent PaymentIntent) (*InitiateResult, error)
	Verify(ctx context.Context, transactionID, referenceID string) (*VerifyResult, error)
	Refund(ctx context.Context, transactionID string, amountCents int64, reason string) (*RefundResult, error)
	ValidateSignature(req WebhookRequest) bool
	HandleWebhook(req WebhookRequest) NormalizedEvent
}
