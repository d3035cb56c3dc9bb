package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// Payment is the current record for one payment intent. A retry supersedes
// it with a new Payment; the row is never mutated into a different intent.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	MasterOrderID   *uuid.UUID          `gorm:"column:master_order_id;type:uuid;index"`
	VendorOrderID   *uuid.UUID          `gorm:"column:vendor_order_id;type:uuid;index"`
	BuyerKey        string              `gorm:"column:buyer_key;not null"`
	VendorID        *uuid.UUID          `gorm:"column:vendor_id;type:uuid"`
	Gateway         string              `gorm:"column:gateway;not null"`
	Method          enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	Currency        string              `gorm:"column:currency;not null;default:'USD'"`
	TransactionID   string              `gorm:"column:transaction_id;index"`
	ReferenceID     string              `gorm:"column:reference_id"`
	GatewayResponse json.RawMessage     `gorm:"column:gateway_response;type:jsonb"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	Attempts        []PaymentAttempt    `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
