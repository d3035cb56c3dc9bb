package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/internal/gateways"
	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/metrics"
	"github.com/multivendhq/multivend-backend/pkg/redis"
)

// paymentApplier is the slice of the payment service the reconciler drives:
// lookup by gateway transaction id plus the two guarded state applications.
type paymentApplier interface {
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ApplyGatewaySuccess(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, raw []byte) error
	ApplyGatewayFailure(ctx context.Context, paymentID uuid.UUID, reason string) error
}

// Outcome classifies how a webhook delivery was handled.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDeduplicated Outcome = "deduplicated"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnmatched    Outcome = "unmatched"
	OutcomeRejected     Outcome = "rejected"
)

// Result is the reconciler's answer to one delivery. Accepted maps to a 200
// response; only signature failures and infrastructure errors do not.
type Result struct {
	Accepted bool
	Outcome  Outcome
	EventID  string
}

// Service reconciles asynchronous gateway callbacks with payment state.
type Service interface {
	HandleWebhook(ctx context.Context, gatewayID string, body []byte, headers http.Header) (*Result, error)
}

// ServiceParams wires the webhook reconciler's collaborators.
type ServiceParams struct {
	Registry *gateways.Registry
	Payments paymentApplier
	Dedup    redis.IdempotencyStore
	Config   config.WebhookConfig
	Logger   *logger.Logger
}

type service struct {
	registry *gateways.Registry
	payments paymentApplier
	dedup    redis.IdempotencyStore
	dedupTTL time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewService validates the wiring and returns a webhook reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Registry == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment applier required")
	}
	if params.Dedup == nil {
		return nil, fmt.Errorf("dedup store required")
	}
	ttl := params.Config.DedupTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &service{
		registry: params.Registry,
		payments: params.Payments,
		dedup:    params.Dedup,
		dedupTTL: ttl,
		logger:   params.Logger,
		now:      time.Now,
	}, nil
}

// HandleWebhook runs the reconciliation pipeline: authenticate the delivery,
// normalize it, deduplicate it, then apply it to the matching payment. Every
// path except signature failure and infrastructure errors is accepted so the
// gateway stops retrying.
func (s *service) HandleWebhook(ctx context.Context, gatewayID string, body []byte, headers http.Header) (*Result, error) {
	if s.logger != nil {
		ctx = s.logger.WithGateway(ctx, gatewayID)
	}

	adapter, err := s.registry.Resolve(gatewayID)
	if err != nil {
		metrics.WebhooksProcessed.WithLabelValues(gatewayID, string(OutcomeRejected)).Inc()
		return nil, err
	}

	req := gateways.WebhookRequest{Body: body, Headers: headers}
	if !adapter.ValidateSignature(req) {
		metrics.WebhooksProcessed.WithLabelValues(gatewayID, string(OutcomeRejected)).Inc()
		return nil, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "webhook signature verification failed")
	}

	event := adapter.HandleWebhook(req)
	if event.Status == enums.WebhookEventIgnored {
		metrics.WebhooksProcessed.WithLabelValues(gatewayID, string(OutcomeIgnored)).Inc()
		return &Result{Accepted: true, Outcome: OutcomeIgnored}, nil
	}

	eventID := event.EventID
	if eventID == "" {
		eventID = deriveEventID(event)
	}

	// Atomic check-and-mark closes the race between two near-simultaneous
	// deliveries of the same event.
	key := s.dedup.IdempotencyKey("webhook:"+gatewayID, eventID)
	fresh, err := s.dedup.SetNX(ctx, key, s.now().UTC().Format(time.RFC3339), s.dedupTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedup store unavailable")
	}
	if !fresh {
		metrics.WebhooksProcessed.WithLabelValues(gatewayID, string(OutcomeDeduplicated)).Inc()
		return &Result{Accepted: true, Outcome: OutcomeDeduplicated, EventID: eventID}, nil
	}

	result, err := s.apply(ctx, gatewayID, event, body)
	if err != nil {
		// Release the guard so the gateway's retry can reapply the event.
		if delErr := s.dedup.Del(ctx, key); delErr != nil && s.logger != nil {
			s.logger.Error(ctx, "releasing webhook dedup key", delErr)
		}
		return nil, err
	}
	result.EventID = eventID
	metrics.WebhooksProcessed.WithLabelValues(gatewayID, string(result.Outcome)).Inc()
	return result, nil
}

func (s *service) apply(ctx context.Context, gatewayID string, event gateways.NormalizedEvent, body []byte) (*Result, error) {
	payment, err := s.payments.FindByTransactionID(ctx, event.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up payment")
	}
	if payment == nil {
		// An order that never existed here must not trigger endless gateway
		// retries, and a webhook must never create a payment.
		if s.logger != nil {
			logCtx := s.logger.WithField(ctx, "transaction_id", event.TransactionID)
			s.logger.Warn(logCtx, "webhook references unknown transaction")
		}
		return &Result{Accepted: true, Outcome: OutcomeUnmatched}, nil
	}

	switch event.Status {
	case enums.WebhookEventSuccess:
		if err := s.payments.ApplyGatewaySuccess(ctx, payment.ID, s.now().UTC(), body); err != nil {
			return nil, err
		}
	case enums.WebhookEventFailed:
		reason := event.ErrorMessage
		if reason == "" {
			reason = "gateway reported failure"
		}
		if err := s.payments.ApplyGatewayFailure(ctx, payment.ID, reason); err != nil {
			return nil, err
		}
	}
	return &Result{Accepted: true, Outcome: OutcomeApplied}, nil
}

// deriveEventID hashes the normalized payload for gateways that do not ship
// a delivery id. The same event always hashes to the same id, so replays
// still deduplicate.
func deriveEventID(event gateways.NormalizedEvent) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d",
		event.Status, event.TransactionID, event.ReferenceID, event.AmountCents))
	return hex.EncodeToString(sum[:])
}
