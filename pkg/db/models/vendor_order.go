package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// VendorOrder is the per-vendor partition of a multi-vendor checkout, the
// unit the fulfillment state machine governs.
type VendorOrder struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	VendorOrderNumber string                  `gorm:"column:vendor_order_number;not null;uniqueIndex:ux_vendor_orders_number"`
	MasterOrderID     uuid.UUID               `gorm:"column:master_order_id;type:uuid;not null;index"`
	VendorID          uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;index"`
	SubtotalCents     int64                   `gorm:"column:subtotal_cents;not null"`
	TaxCents          int64                   `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents     int64                   `gorm:"column:shipping_cents;not null;default:0"`
	TotalCents        int64                   `gorm:"column:total_cents;not null"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:text;not null"`
	IsCOD             bool                    `gorm:"column:is_cod;not null;default:false"`
	CODConfirmed      bool                    `gorm:"column:cod_confirmed;not null;default:false"`
	Status            enums.VendorOrderStatus `gorm:"column:status;type:text;not null;default:'confirmed'"`
	ConfirmedAt       *time.Time              `gorm:"column:confirmed_at"`
	ProcessingAt      *time.Time              `gorm:"column:processing_at"`
	PackedAt          *time.Time              `gorm:"column:packed_at"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	OutForDeliveryAt  *time.Time              `gorm:"column:out_for_delivery_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	Items             []OrderItem             `gorm:"foreignKey:VendorOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
