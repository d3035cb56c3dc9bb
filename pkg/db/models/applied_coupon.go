package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// AppliedCoupon records a discount applied during checkout. It is owned by
// the session until order creation re-parents it to the master order.
type AppliedCoupon struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Code          string           `gorm:"column:code;not null"`
	DiscountType  enums.CouponType `gorm:"column:discount_type;type:text;not null"`
	DiscountCents int64            `gorm:"column:discount_cents;not null"`
	SessionID     *uuid.UUID       `gorm:"column:session_id;type:uuid;index"`
	MasterOrderID *uuid.UUID       `gorm:"column:master_order_id;type:uuid;index"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
}
