package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/internal/cart"
	"github.com/multivendhq/multivend-backend/internal/catalog"
	"github.com/multivendhq/multivend-backend/internal/gateways"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GatewayResolver resolves a gateway identifier to its adapter.
type GatewayResolver interface {
	Resolve(name string) (gateways.Adapter, error)
}

// Service builds and mutates in-progress order drafts, recomputing totals
// through the oracles on every change.
type Service interface {
	Start(ctx context.Context, input StartInput) (*models.CheckoutSession, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*models.CheckoutSession, error)
	SetAddress(ctx context.Context, sessionID uuid.UUID, address types.Address) (*models.CheckoutSession, error)
	SetShippingMethod(ctx context.Context, sessionID uuid.UUID, method enums.ShippingMethod) (*models.CheckoutSession, error)
	SetPaymentMethod(ctx context.Context, sessionID uuid.UUID, selection PaymentSelection) (*models.CheckoutSession, error)
	ApplyCoupon(ctx context.Context, sessionID uuid.UUID, code string) (*models.CheckoutSession, error)
}

// StartInput opens a new checkout session for a buyer's live cart.
type StartInput struct {
	BuyerKey string
	Email    string
	Phone    string
}

// PaymentSelection picks the payment method and, for online methods, the
// gateway that will collect it.
type PaymentSelection struct {
	Method  enums.PaymentMethod
	Gateway string
}

// ServiceParams wires the checkout service's collaborators.
type ServiceParams struct {
	Repo       Repository
	Carts      cart.Repository
	Catalog    catalog.Repository
	Tx         txRunner
	Tax        TaxCalculator
	Shipping   ShippingCalculator
	Coupons    CouponValidator
	Gateways   GatewayResolver
	SessionTTL time.Duration
	Logger     *logger.Logger
}

type service struct {
	repo       Repository
	carts      cart.Repository
	catalog    catalog.Repository
	tx         txRunner
	tax        TaxCalculator
	shipping   ShippingCalculator
	coupons    CouponValidator
	gateways   GatewayResolver
	sessionTTL time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds a checkout session manager.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Tax == nil || params.Shipping == nil || params.Coupons == nil {
		return nil, fmt.Errorf("pricing oracles required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway resolver required")
	}
	if params.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &service{
		repo:       params.Repo,
		carts:      params.Carts,
		catalog:    params.Catalog,
		tx:         params.Tx,
		tax:        params.Tax,
		shipping:   params.Shipping,
		coupons:    params.Coupons,
		gateways:   params.Gateways,
		sessionTTL: params.SessionTTL,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

var sessionStageOrder = map[enums.CheckoutSessionStatus]int{
	enums.CheckoutSessionStatusDraft:            0,
	enums.CheckoutSessionStatusAddressSelected:  1,
	enums.CheckoutSessionStatusShippingSelected: 2,
	enums.CheckoutSessionStatusPaymentSelected:  3,
	enums.CheckoutSessionStatusCompleted:        4,
}

// advanceStage moves forward only. Re-editing an earlier step never
// demotes progress already made.
func advanceStage(current, reached enums.CheckoutSessionStatus) enums.CheckoutSessionStatus {
	if sessionStageOrder[reached] > sessionStageOrder[current] {
		return reached
	}
	return current
}

func (s *service) Start(ctx context.Context, input StartInput) (*models.CheckoutSession, error) {
	if input.BuyerKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer key required")
	}

	var created *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		view, err := s.loadCart(ctx, tx, input.BuyerKey)
		if err != nil {
			return err
		}

		session := &models.CheckoutSession{
			ID:            uuid.New(),
			BuyerKey:      input.BuyerKey,
			Email:         input.Email,
			Phone:         input.Phone,
			SubtotalCents: view.subtotal,
			TotalCents:    view.subtotal,
			Status:        enums.CheckoutSessionStatusDraft,
			ExpiresAt:     s.now().Add(s.sessionTTL),
		}
		if err := s.repo.WithTx(tx).CreateSession(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
		}
		created = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "session_id", created.ID.String()), "checkout session started")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, sessionID uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.repo.FindSession(ctx, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return session, nil
}

func (s *service) SetAddress(ctx context.Context, sessionID uuid.UUID, address types.Address) (*models.CheckoutSession, error) {
	if err := address.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, func(tx *gorm.DB, repo Repository, session *models.CheckoutSession) error {
		session.ShippingAddress = &address
		session.Status = advanceStage(session.Status, enums.CheckoutSessionStatusAddressSelected)
		return nil
	})
}

func (s *service) SetShippingMethod(ctx context.Context, sessionID uuid.UUID, method enums.ShippingMethod) (*models.CheckoutSession, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid shipping method %q", method))
	}
	return s.mutate(ctx, sessionID, func(tx *gorm.DB, repo Repository, session *models.CheckoutSession) error {
		if session.ShippingAddress == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipping address must be set before shipping method")
		}
		session.ShippingMethod = method
		session.Status = advanceStage(session.Status, enums.CheckoutSessionStatusShippingSelected)
		return nil
	})
}

func (s *service) SetPaymentMethod(ctx context.Context, sessionID uuid.UUID, selection PaymentSelection) (*models.CheckoutSession, error) {
	if !selection.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", selection.Method))
	}
	if selection.Method.IsOnline() {
		adapter, err := s.gateways.Resolve(selection.Gateway)
		if err != nil {
			return nil, err
		}
		if !adapter.SupportsMethod(selection.Method) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("gateway %q does not support method %q", selection.Gateway, selection.Method)).
				WithDetails(map[string]any{"gateway": selection.Gateway, "method": selection.Method.String()})
		}
	}

	return s.mutate(ctx, sessionID, func(tx *gorm.DB, repo Repository, session *models.CheckoutSession) error {
		if !session.ShippingMethod.IsValid() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipping method must be set before payment method")
		}
		session.PaymentMethod = selection.Method
		if selection.Method.IsOnline() {
			session.Gateway = selection.Gateway
		} else {
			session.Gateway = ""
		}
		session.Status = advanceStage(session.Status, enums.CheckoutSessionStatusPaymentSelected)
		return nil
	})
}

func (s *service) ApplyCoupon(ctx context.Context, sessionID uuid.UUID, code string) (*models.CheckoutSession, error) {
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}
	return s.mutate(ctx, sessionID, func(tx *gorm.DB, repo Repository, session *models.CheckoutSession) error {
		view, err := s.loadCart(ctx, tx, session.BuyerKey)
		if err != nil {
			return err
		}
		quote, err := s.coupons.ValidateAndPrice(code, view.subtotal)
		if err != nil {
			return err
		}
		sessionID := session.ID
		coupon := &models.AppliedCoupon{
			ID:            uuid.New(),
			Code:          quote.Code,
			DiscountType:  quote.Type,
			DiscountCents: quote.DiscountCents,
			SessionID:     &sessionID,
		}
		return repo.ReplaceSessionCoupon(ctx, coupon)
	})
}

// mutate runs one session mutation inside a transaction: load, guard
// against completed/expired, apply the change, recompute totals, persist.
func (s *service) mutate(ctx context.Context, sessionID uuid.UUID, apply func(tx *gorm.DB, repo Repository, session *models.CheckoutSession) error) (*models.CheckoutSession, error) {
	var updated *models.CheckoutSession
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		session, err := repo.FindSession(ctx, sessionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
		}
		if err := s.ensureMutable(session); err != nil {
			return err
		}
		if err := apply(tx, repo, session); err != nil {
			return err
		}

		view, err := s.loadCart(ctx, tx, session.BuyerKey)
		if err != nil {
			return err
		}
		if err := s.recomputeTotals(ctx, repo, session, view); err != nil {
			return err
		}

		updates := map[string]any{
			"email":            session.Email,
			"phone":            session.Phone,
			"shipping_address": session.ShippingAddress,
			"shipping_method":  session.ShippingMethod,
			"payment_method":   session.PaymentMethod,
			"gateway":          session.Gateway,
			"subtotal_cents":   session.SubtotalCents,
			"tax_cents":        session.TaxCents,
			"shipping_cents":   session.ShippingCents,
			"discount_cents":   session.DiscountCents,
			"total_cents":      session.TotalCents,
			"status":           session.Status,
		}
		if err := repo.UpdateSession(ctx, session.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update checkout session")
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) ensureMutable(session *models.CheckoutSession) error {
	if session.Status == enums.CheckoutSessionStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already completed")
	}
	if s.now().After(session.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired").
			WithDetails(map[string]any{"expired_at": session.ExpiresAt})
	}
	return nil
}

type cartView struct {
	items    []models.CartItem
	products map[uuid.UUID]models.Product
	subtotal int64
}

func (s *service) loadCart(ctx context.Context, tx *gorm.DB, buyerKey string) (*cartView, error) {
	record, err := s.carts.WithTx(tx).FindByBuyerKey(ctx, buyerKey)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.WithTx(tx).FindActiveProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	var subtotal int64
	for _, item := range record.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains an unavailable product").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		subtotal += product.PriceCents * int64(item.Qty)
	}

	return &cartView{items: record.Items, products: products, subtotal: subtotal}, nil
}

func (s *service) recomputeTotals(ctx context.Context, repo Repository, session *models.CheckoutSession, view *cartView) error {
	session.SubtotalCents = view.subtotal

	coupon, err := repo.FindSessionCoupon(ctx, session.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session coupon")
	}
	session.DiscountCents = 0
	if coupon != nil {
		session.DiscountCents = coupon.DiscountCents
		if session.DiscountCents > session.SubtotalCents {
			session.DiscountCents = session.SubtotalCents
		}
	}

	taxable := session.SubtotalCents - session.DiscountCents
	tax, err := s.tax.CalculateTax(taxable, session.ShippingAddress, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calculate tax")
	}
	session.TaxCents = tax

	session.ShippingCents = 0
	if session.ShippingMethod.IsValid() {
		items := make([]ShippingItem, 0, len(view.items))
		for _, item := range view.items {
			items = append(items, ShippingItem{
				ProductID:      item.ProductID,
				Qty:            item.Qty,
				UnitPriceCents: view.products[item.ProductID].PriceCents,
			})
		}
		shipping, err := s.shipping.CalculateShipping(items, session.ShippingMethod, session.ShippingAddress)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calculate shipping")
		}
		session.ShippingCents = shipping
	}

	total := session.SubtotalCents - session.DiscountCents + session.TaxCents + session.ShippingCents
	if total < 0 {
		total = 0
	}
	session.TotalCents = total
	return nil
}
