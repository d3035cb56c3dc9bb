package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// VendorPayment is the per-vendor-order payment ledger rollup. Exactly one
// row per vendor order, updated by upsert, never duplicated.
type VendorPayment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorOrderID uuid.UUID           `gorm:"column:vendor_order_id;type:uuid;not null;uniqueIndex:ux_vendor_payments_order"`
	VendorID      uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	AmountCents   int64               `gorm:"column:amount_cents;not null"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
