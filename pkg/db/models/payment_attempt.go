package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// PaymentAttempt is the append-only audit trail of gateway interactions for
// a payment. Rows are never deleted or repurposed.
type PaymentAttempt struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID       uuid.UUID           `gorm:"column:payment_id;type:uuid;not null;index"`
	AttemptNumber   int                 `gorm:"column:attempt_number;not null"`
	Gateway         string              `gorm:"column:gateway;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RequestPayload  json.RawMessage     `gorm:"column:request_payload;type:jsonb"`
	ResponsePayload json.RawMessage     `gorm:"column:response_payload;type:jsonb"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	ProcessedAt     *time.Time          `gorm:"column:processed_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}
