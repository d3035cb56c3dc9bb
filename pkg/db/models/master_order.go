package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

// MasterOrder is the aggregate record spanning all vendor orders produced by
// one checkout. The row is immutable after creation except for status
// recomputation and cancellation.
type MasterOrder struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                  `gorm:"column:order_number;not null;uniqueIndex:ux_master_orders_order_number"`
	BuyerKey        string                  `gorm:"column:buyer_key;not null;index"`
	Email           string                  `gorm:"column:email"`
	Phone           string                  `gorm:"column:phone"`
	ShippingAddress *types.Address          `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	SubtotalCents   int64                   `gorm:"column:subtotal_cents;not null"`
	TaxCents        int64                   `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int64                   `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents   int64                   `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int64                   `gorm:"column:total_cents;not null"`
	Currency        string                  `gorm:"column:currency;not null;default:'USD'"`
	Status          enums.MasterOrderStatus `gorm:"column:status;type:text;not null;default:'confirmed'"`
	CancelledAt     *time.Time              `gorm:"column:cancelled_at"`
	VendorOrders    []VendorOrder           `gorm:"foreignKey:MasterOrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
