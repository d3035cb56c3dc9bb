package checkout

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

// ShippingItem is the minimal line view a shipping oracle prices against.
type ShippingItem struct {
	ProductID      uuid.UUID
	Qty            int
	UnitPriceCents int64
}

// CouponQuote is a validated discount priced against a concrete subtotal.
type CouponQuote struct {
	Code          string
	Type          enums.CouponType
	DiscountCents int64
}

// TaxCalculator prices tax for a subtotal. Pure, no persistence.
type TaxCalculator interface {
	CalculateTax(subtotalCents int64, address *types.Address, vendorID *uuid.UUID) (int64, error)
}

// ShippingCalculator prices delivery for a set of items. Pure, no persistence.
type ShippingCalculator interface {
	CalculateShipping(items []ShippingItem, method enums.ShippingMethod, address *types.Address) (int64, error)
}

// CouponValidator validates a coupon code and prices its discount against
// the current subtotal.
type CouponValidator interface {
	ValidateAndPrice(code string, subtotalCents int64) (*CouponQuote, error)
}

// FlatRateTaxCalculator applies a single configured percentage. Real rate
// tables live outside this service.
type FlatRateTaxCalculator struct {
	rate decimal.Decimal
}

func NewFlatRateTaxCalculator(cfg config.OracleConfig) *FlatRateTaxCalculator {
	return &FlatRateTaxCalculator{
		rate: decimal.NewFromFloat(cfg.TaxRatePercent).Div(decimal.NewFromInt(100)),
	}
}

func (c *FlatRateTaxCalculator) CalculateTax(subtotalCents int64, _ *types.Address, _ *uuid.UUID) (int64, error) {
	if subtotalCents <= 0 {
		return 0, nil
	}
	return decimal.NewFromInt(subtotalCents).Mul(c.rate).Round(0).IntPart(), nil
}

// FlatRateShippingCalculator charges a flat base fee, with a percentage
// surcharge for express delivery.
type FlatRateShippingCalculator struct {
	baseCents int64
	surcharge decimal.Decimal
}

func NewFlatRateShippingCalculator(cfg config.OracleConfig) *FlatRateShippingCalculator {
	return &FlatRateShippingCalculator{
		baseCents: cfg.FlatShippingCents,
		surcharge: decimal.NewFromFloat(cfg.ExpressSurchargePct).Div(decimal.NewFromInt(100)),
	}
}

func (c *FlatRateShippingCalculator) CalculateShipping(items []ShippingItem, method enums.ShippingMethod, _ *types.Address) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	cost := decimal.NewFromInt(c.baseCents)
	if method == enums.ShippingMethodExpress {
		cost = cost.Add(cost.Mul(c.surcharge))
	}
	return cost.Round(0).IntPart(), nil
}

// StaticCoupon is one entry in the static validator's table. Value is cents
// for fixed coupons and a whole-number percentage for percentage coupons.
type StaticCoupon struct {
	Type  enums.CouponType
	Value int64
}

// StaticCouponValidator prices coupons from a fixed in-memory table. Coupon
// issuance and campaign rules live outside this service.
type StaticCouponValidator struct {
	coupons map[string]StaticCoupon
}

func NewStaticCouponValidator(coupons map[string]StaticCoupon) *StaticCouponValidator {
	table := make(map[string]StaticCoupon, len(coupons))
	for code, coupon := range coupons {
		table[strings.ToUpper(strings.TrimSpace(code))] = coupon
	}
	return &StaticCouponValidator{coupons: table}
}

func (v *StaticCouponValidator) ValidateAndPrice(code string, subtotalCents int64) (*CouponQuote, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	coupon, ok := v.coupons[normalized]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon code").
			WithDetails(map[string]any{"code": code})
	}

	var discount int64
	switch coupon.Type {
	case enums.CouponTypePercentage:
		discount = decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(coupon.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
	default:
		discount = coupon.Value
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return &CouponQuote{Code: normalized, Type: coupon.Type, DiscountCents: discount}, nil
}
