package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/internal/cart"
	"github.com/multivendhq/multivend-backend/internal/catalog"
	"github.com/multivendhq/multivend-backend/internal/checkout"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/logger"
	"github.com/multivendhq/multivend-backend/pkg/metrics"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// NumberSource mints master order numbers from a shared sequence.
type NumberSource interface {
	NextMasterNumber(ctx context.Context) (string, error)
}

// CODSettler settles the cash-on-delivery payment trail once cash is
// confirmed collected. Implemented by the payments service.
type CODSettler interface {
	SettleCashOnDelivery(ctx context.Context, tx *gorm.DB, order *models.VendorOrder, collectedAt time.Time) error
}

// Service covers the order lifecycle: creation from a checkout session,
// fulfillment transitions, COD confirmation, and cancellation.
type Service interface {
	CreateOrder(ctx context.Context, sessionID uuid.UUID) (*models.MasterOrder, error)
	GetOrder(ctx context.Context, masterOrderID uuid.UUID) (*models.MasterOrder, error)
	GetVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorOrder, error)
	Transition(ctx context.Context, input TransitionInput) (*models.VendorOrder, error)
	ConfirmCashCollected(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorOrder, error)
	CancelOrder(ctx context.Context, input CancelInput) (*models.MasterOrder, error)
}

// ServiceParams wires the order service's collaborators.
type ServiceParams struct {
	Repo     Repository
	Checkout checkout.Repository
	Carts    cart.Repository
	Catalog  catalog.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Numbers  NumberSource
	Tax      checkout.TaxCalculator
	Shipping checkout.ShippingCalculator
	COD      CODSettler
	Logger   *logger.Logger
	Currency string
}

type service struct {
	repo     Repository
	checkout checkout.Repository
	carts    cart.Repository
	catalog  catalog.Repository
	tx       txRunner
	outbox   outboxPublisher
	numbers  NumberSource
	tax      checkout.TaxCalculator
	shipping checkout.ShippingCalculator
	cod      CODSettler
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Checkout == nil {
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
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("number source required")
	}
	if params.Tax == nil || params.Shipping == nil {
		return nil, fmt.Errorf("pricing oracles required")
	}
	if params.COD == nil {
		return nil, fmt.Errorf("cod settler required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	return &service{
		repo:     params.Repo,
		checkout: params.Checkout,
		carts:    params.Carts,
		catalog:  params.Catalog,
		tx:       params.Tx,
		outbox:   params.Outbox,
		numbers:  params.Numbers,
		tax:      params.Tax,
		shipping: params.Shipping,
		cod:      params.COD,
		logg:     params.Logger,
		currency: currency,
		now:      time.Now,
	}, nil
}

// StockShortage itemizes one product the cart requested more of than the
// shelf holds.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// CreateOrder converts a checkout session plus the live cart into a master
// order and its per-vendor orders. Everything happens inside one
// transaction: session re-validation, stock reservation, row creation, and
// session consumption either all commit or all roll back.
func (s *service) CreateOrder(ctx context.Context, sessionID uuid.UUID) (*models.MasterOrder, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	var created *models.MasterOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessions := s.checkout.WithTx(tx)
		session, err := sessions.FindSession(ctx, sessionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
		}

		// Session state is re-checked here, inside the transaction. An
		// earlier read would race a competing CreateOrder for the same
		// session.
		if session.Status == enums.CheckoutSessionStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already used")
		}
		if s.now().After(session.ExpiresAt) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired")
		}
		if session.Status != enums.CheckoutSessionStatusPaymentSelected {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is incomplete").
				WithDetails(map[string]any{"status": session.Status.String()})
		}
		if session.ShippingAddress == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping address required")
		}

		lines, err := s.loadCartLines(ctx, tx, session.BuyerKey)
		if err != nil {
			return err
		}

		if err := s.reserveStock(ctx, tx, lines); err != nil {
			return err
		}

		master, err := s.buildOrders(ctx, tx, session, lines)
		if err != nil {
			return err
		}

		consumed, err := sessions.CompleteSession(ctx, session.ID, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout session")
		}
		if !consumed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already used")
		}
		if err := sessions.ReparentCoupons(ctx, session.ID, master.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reparent coupons")
		}
		if err := s.carts.WithTx(tx).ClearByBuyerKey(ctx, session.BuyerKey); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		vendorOrderIDs := make([]uuid.UUID, 0, len(master.VendorOrders))
		for _, vo := range master.VendorOrders {
			vendorOrderIDs = append(vendorOrderIDs, vo.ID)
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateMasterOrder,
			AggregateID:   master.ID,
			Version:       1,
			Data: OrderCreatedEvent{
				MasterOrderID:  master.ID,
				OrderNumber:    master.OrderNumber,
				BuyerKey:       master.BuyerKey,
				VendorOrderIDs: vendorOrderIDs,
				TotalCents:     master.TotalCents,
				Currency:       master.Currency,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		created = master
		return nil
	})
	if err != nil {
		metrics.OrderCreationFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, created.OrderNumber)
		s.logg.Info(logCtx, "order created")
	}
	return created, nil
}

func (s *service) GetOrder(ctx context.Context, masterOrderID uuid.UUID) (*models.MasterOrder, error) {
	order, err := s.repo.FindMasterOrder(ctx, masterOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) GetVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorOrder, error) {
	order, err := s.repo.FindVendorOrder(ctx, vendorOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order")
	}
	return order, nil
}

// orderLine is one cart line joined with its product snapshot.
type orderLine struct {
	productID uuid.UUID
	vendorID  uuid.UUID
	name      string
	price     int64
	qty       int
}

func (s *service) loadCartLines(ctx context.Context, tx *gorm.DB, buyerKey string) ([]orderLine, error) {
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

	lines := make([]orderLine, 0, len(record.Items))
	for _, item := range record.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains an unavailable product").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains an invalid quantity").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		lines = append(lines, orderLine{
			productID: product.ID,
			vendorID:  product.VendorID,
			name:      product.Name,
			price:     product.PriceCents,
			qty:       item.Qty,
		})
	}

	// Locking in a fixed order keeps two concurrent checkouts over
	// overlapping products from deadlocking each other.
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].productID.String() < lines[j].productID.String()
	})
	return lines, nil
}

// reserveStock decrements every line's stock under row locks. Any shortfall
// aborts the whole transaction with the full itemized list, rolling back
// the decrements already applied.
func (s *service) reserveStock(ctx context.Context, tx *gorm.DB, lines []orderLine) error {
	inventory := s.catalog.WithTx(tx)
	var shortages []StockShortage
	for _, line := range lines {
		reserved, err := inventory.ReserveStock(ctx, line.productID, line.qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if reserved {
			continue
		}
		available := 0
		if item, err := inventory.FindInventory(ctx, line.productID); err == nil {
			available = item.AvailableQty
		}
		shortages = append(shortages, StockShortage{
			ProductID: line.productID,
			Name:      line.name,
			Requested: line.qty,
			Available: available,
		})
	}
	if len(shortages) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
			WithDetails(map[string]any{"shortages": shortages})
	}
	return nil
}

func (s *service) buildOrders(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, lines []orderLine) (*models.MasterOrder, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()

	orderNumber, err := s.numbers.NextMasterNumber(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate order number")
	}

	// Stable vendor ordering makes numbering and discount allocation
	// deterministic.
	grouped := make(map[uuid.UUID][]orderLine)
	vendorIDs := make([]uuid.UUID, 0)
	for _, line := range lines {
		if _, seen := grouped[line.vendorID]; !seen {
			vendorIDs = append(vendorIDs, line.vendorID)
		}
		grouped[line.vendorID] = append(grouped[line.vendorID], line)
	}
	sort.Slice(vendorIDs, func(i, j int) bool {
		return vendorIDs[i].String() < vendorIDs[j].String()
	})

	subtotals := make([]int64, len(vendorIDs))
	var subtotal int64
	for i, vendorID := range vendorIDs {
		for _, line := range grouped[vendorID] {
			subtotals[i] += line.price * int64(line.qty)
		}
		subtotal += subtotals[i]
	}
	// The cart was re-fetched just now; the session discount was priced
	// against the cart as it stood when the coupon was applied. Clamp it
	// to the fresh subtotal so a shrunken cart can never go negative.
	discount := session.DiscountCents
	if discount > subtotal {
		discount = subtotal
	}
	discounts := allocateProportionally(discount, subtotals)

	master := &models.MasterOrder{
		ID:              uuid.New(),
		OrderNumber:     orderNumber,
		BuyerKey:        session.BuyerKey,
		Email:           session.Email,
		Phone:           session.Phone,
		ShippingAddress: session.ShippingAddress,
		Currency:        s.currency,
		Status:          enums.MasterOrderStatusConfirmed,
	}
	if err := repo.CreateMasterOrder(ctx, master); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create master order")
	}

	isCOD := session.PaymentMethod == enums.PaymentMethodCOD
	var totalTax, totalShipping, totalDiscount, grandTotal int64
	vendorOrders := make([]models.VendorOrder, 0, len(vendorIDs))
	for i, vendorID := range vendorIDs {
		vendorLines := grouped[vendorID]
		vendorSubtotal := subtotals[i]
		vendorDiscount := discounts[i]
		// Remainder cents land on the last bucket; never past the subtotal.
		if vendorDiscount > vendorSubtotal {
			vendorDiscount = vendorSubtotal
		}

		tax, err := s.tax.CalculateTax(vendorSubtotal-vendorDiscount, session.ShippingAddress, &vendorID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calculate tax")
		}
		shippingItems := make([]checkout.ShippingItem, 0, len(vendorLines))
		for _, line := range vendorLines {
			shippingItems = append(shippingItems, checkout.ShippingItem{
				ProductID:      line.productID,
				Qty:            line.qty,
				UnitPriceCents: line.price,
			})
		}
		shipping, err := s.shipping.CalculateShipping(shippingItems, session.ShippingMethod, session.ShippingAddress)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calculate shipping")
		}

		total := vendorSubtotal - vendorDiscount + tax + shipping
		confirmedAt := now
		order := models.VendorOrder{
			ID:                uuid.New(),
			VendorOrderNumber: VendorOrderNumber(orderNumber, i+1),
			MasterOrderID:     master.ID,
			VendorID:          vendorID,
			SubtotalCents:     vendorSubtotal,
			TaxCents:          tax,
			ShippingCents:     shipping,
			TotalCents:        total,
			PaymentMethod:     session.PaymentMethod,
			IsCOD:             isCOD,
			Status:            enums.VendorOrderStatusConfirmed,
			ConfirmedAt:       &confirmedAt,
		}
		if err := repo.CreateVendorOrder(ctx, &order); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create vendor order")
		}

		items := make([]models.OrderItem, 0, len(vendorLines))
		for _, line := range vendorLines {
			items = append(items, models.OrderItem{
				ID:             uuid.New(),
				VendorOrderID:  order.ID,
				ProductID:      line.productID,
				VendorID:       line.vendorID,
				Name:           line.name,
				UnitPriceCents: line.price,
				Qty:            line.qty,
				SubtotalCents:  line.price * int64(line.qty),
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		order.Items = items

		totalTax += tax
		totalShipping += shipping
		totalDiscount += vendorDiscount
		grandTotal += total
		vendorOrders = append(vendorOrders, order)
	}

	master.SubtotalCents = subtotal
	master.TaxCents = totalTax
	master.ShippingCents = totalShipping
	master.DiscountCents = totalDiscount
	master.TotalCents = grandTotal
	master.VendorOrders = vendorOrders
	if err := tx.WithContext(ctx).Model(&models.MasterOrder{}).
		Where("id = ?", master.ID).
		Updates(map[string]any{
			"subtotal_cents": master.SubtotalCents,
			"tax_cents":      master.TaxCents,
			"shipping_cents": master.ShippingCents,
			"discount_cents": master.DiscountCents,
			"total_cents":    master.TotalCents,
		}).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize master totals")
	}

	return master, nil
}

// allocateProportionally splits an amount across buckets by weight, cent
// exact: shares are floored and the remainder cents land on the last
// bucket so the parts always sum to the whole.
func allocateProportionally(amount int64, weights []int64) []int64 {
	shares := make([]int64, len(weights))
	if amount <= 0 || len(weights) == 0 {
		return shares
	}
	var totalWeight int64
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight <= 0 {
		return shares
	}
	var allocated int64
	for i, w := range weights {
		if i == len(weights)-1 {
			shares[i] = amount - allocated
			break
		}
		shares[i] = amount * w / totalWeight
		allocated += shares[i]
	}
	return shares
}

func failureReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "internal"
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation:
		return "validation"
	case pkgerrors.CodeStateConflict:
		return "state_conflict"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeDependency:
		return "dependency"
	default:
		return "internal"
	}
}
