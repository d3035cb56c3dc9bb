package payments

import (
	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
)

// PaymentEvent is the payload for payment.completed and payment.failed.
type PaymentEvent struct {
	PaymentID     uuid.UUID  `json:"payment_id"`
	MasterOrderID *uuid.UUID `json:"master_order_id,omitempty"`
	Gateway       string     `json:"gateway"`
	Method        string     `json:"method"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Reason        string     `json:"reason,omitempty"`
}

// ReceiptRequestedEvent asks the notification pipeline for a buyer receipt.
type ReceiptRequestedEvent struct {
	PaymentID     uuid.UUID  `json:"payment_id"`
	MasterOrderID *uuid.UUID `json:"master_order_id,omitempty"`
	BuyerKey      string     `json:"buyer_key"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
}

func paymentEvent(eventType enums.OutboxEventType, payment *models.Payment, reason string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: PaymentEvent{
			PaymentID:     payment.ID,
			MasterOrderID: payment.MasterOrderID,
			Gateway:       payment.Gateway,
			Method:        payment.Method.String(),
			AmountCents:   payment.AmountCents,
			Currency:      payment.Currency,
			Reason:        reason,
		},
	}
}

func receiptEvent(payment *models.Payment) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventReceiptRequested,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: ReceiptRequestedEvent{
			PaymentID:     payment.ID,
			MasterOrderID: payment.MasterOrderID,
			BuyerKey:      payment.BuyerKey,
			AmountCents:   payment.AmountCents,
			Currency:      payment.Currency,
		},
	}
}
