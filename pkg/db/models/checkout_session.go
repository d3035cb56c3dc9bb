package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

// CheckoutSession is the in-progress order draft built during checkout.
// It is consumed exactly once by order creation and never reused after
// completion or expiry.
type CheckoutSession struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	BuyerKey        string                      `gorm:"column:buyer_key;not null;index"`
	Email           string                      `gorm:"column:email"`
	Phone           string                      `gorm:"column:phone"`
	ShippingAddress *types.Address              `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	ShippingMethod  enums.ShippingMethod        `gorm:"column:shipping_method;type:text"`
	PaymentMethod   enums.PaymentMethod         `gorm:"column:payment_method;type:text"`
	Gateway         string                      `gorm:"column:gateway"`
	SubtotalCents   int64                       `gorm:"column:subtotal_cents;not null;default:0"`
	TaxCents        int64                       `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int64                       `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents   int64                       `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int64                       `gorm:"column:total_cents;not null;default:0"`
	Status          enums.CheckoutSessionStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	ExpiresAt       time.Time                   `gorm:"column:expires_at;not null"`
	CompletedAt     *time.Time                  `gorm:"column:completed_at"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
