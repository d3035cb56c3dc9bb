package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/internal/cart"
	"github.com/multivendhq/multivend-backend/internal/catalog"
	"github.com/multivendhq/multivend-backend/internal/checkout"
	"github.com/multivendhq/multivend-backend/pkg/config"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
	"github.com/multivendhq/multivend-backend/pkg/types"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) byType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	var matched []outbox.DomainEvent
	for _, event := range r.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type stubSettler struct {
	settled []uuid.UUID
}

func (s *stubSettler) SettleCashOnDelivery(_ context.Context, _ *gorm.DB, order *models.VendorOrder, _ time.Time) error {
	s.settled = append(s.settled, order.ID)
	return nil
}

type stubNumbers struct {
	n int
}

func (s *stubNumbers) NextMasterNumber(context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("MO-20260901-%04d", s.n), nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CheckoutSession{},
		&models.AppliedCoupon{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.Product{},
		&models.InventoryItem{},
		&models.MasterOrder{},
		&models.VendorOrder{},
		&models.OrderItem{},
	))
	return db
}

type fixture struct {
	svc      Service
	db       *gorm.DB
	outbox   *recordingOutbox
	settler  *stubSettler
	buyerKey string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	sink := &recordingOutbox{}
	settler := &stubSettler{}

	oracleCfg := config.OracleConfig{TaxRatePercent: 10, FlatShippingCents: 500}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Checkout: checkout.NewRepository(db),
		Carts:    cart.NewRepository(db),
		Catalog:  catalog.NewRepository(db),
		Tx:       &testTxRunner{db: db},
		Outbox:   sink,
		Numbers:  &stubNumbers{},
		Tax:      checkout.NewFlatRateTaxCalculator(oracleCfg),
		Shipping: checkout.NewFlatRateShippingCalculator(oracleCfg),
		COD:      settler,
	})
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		db:       db,
		outbox:   sink,
		settler:  settler,
		buyerKey: "buyer-" + uuid.NewString(),
	}
}

func (f *fixture) seedProduct(t *testing.T, vendorID uuid.UUID, name string, priceCents int64, stock int) models.Product {
	t.Helper()
	product := models.Product{ID: uuid.New(), VendorID: vendorID, Name: name, PriceCents: priceCents, Active: true}
	require.NoError(t, f.db.Create(&product).Error)
	require.NoError(t, f.db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: stock}).Error)
	return product
}

func (f *fixture) seedCart(t *testing.T, items map[uuid.UUID]models.Product, quantities map[uuid.UUID]int) {
	t.Helper()
	record := models.CartRecord{ID: uuid.New(), BuyerKey: f.buyerKey}
	require.NoError(t, f.db.Create(&record).Error)
	for id, product := range items {
		item := models.CartItem{
			ID:        uuid.New(),
			CartID:    record.ID,
			ProductID: id,
			VendorID:  product.VendorID,
			Qty:       quantities[id],
		}
		require.NoError(t, f.db.Create(&item).Error)
	}
}

func (f *fixture) seedSession(t *testing.T, method enums.PaymentMethod, discountCents int64) *models.CheckoutSession {
	t.Helper()
	address := types.Address{Line1: "9 Mill Road", City: "Ithaca", PostalCode: "14850", Country: "US"}
	session := models.CheckoutSession{
		ID:              uuid.New(),
		BuyerKey:        f.buyerKey,
		Email:           "buyer@example.com",
		ShippingAddress: &address,
		ShippingMethod:  enums.ShippingMethodStandard,
		PaymentMethod:   method,
		DiscountCents:   discountCents,
		Status:          enums.CheckoutSessionStatusPaymentSelected,
		ExpiresAt:       time.Now().Add(30 * time.Minute),
	}
	if method.IsOnline() {
		session.Gateway = "razorpay"
	}
	require.NoError(t, f.db.Create(&session).Error)
	if discountCents > 0 {
		sessionID := session.ID
		coupon := models.AppliedCoupon{
			ID:            uuid.New(),
			Code:          "SAVE",
			DiscountType:  enums.CouponTypeFixed,
			DiscountCents: discountCents,
			SessionID:     &sessionID,
		}
		require.NoError(t, f.db.Create(&coupon).Error)
	}
	return &session
}

func (f *fixture) availableQty(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.db.Where("product_id = ?", productID).First(&item).Error)
	return item.AvailableQty
}

func TestCreateOrderSplitsByVendor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	vendorA, vendorB := uuid.New(), uuid.New()
	prodA := f.seedProduct(t, vendorA, "Walnut Cutting Board", 4000, 10)
	prodB := f.seedProduct(t, vendorB, "Linen Apron", 2500, 5)
	f.seedCart(t,
		map[uuid.UUID]models.Product{prodA.ID: prodA, prodB.ID: prodB},
		map[uuid.UUID]int{prodA.ID: 2, prodB.ID: 1},
	)
	session := f.seedSession(t, enums.PaymentMethodCard, 0)

	master, err := f.svc.CreateOrder(ctx, session.ID)
	require.NoError(t, err)

	require.Len(t, master.VendorOrders, 2)
	assert.Equal(t, int64(8000+2500), master.SubtotalCents)

	// Items are partitioned by vendor and snapshot the catalog price.
	var totalsSum int64
	for _, vo := range master.VendorOrders {
		totalsSum += vo.TotalCents
		require.Len(t, vo.Items, 1)
		assert.Equal(t, vo.VendorID, vo.Items[0].VendorID)
		require.NotNil(t, vo.ConfirmedAt)
		assert.Equal(t, enums.VendorOrderStatusConfirmed, vo.Status)
	}
	assert.Equal(t, master.TotalCents, totalsSum)

	// Stock decremented under the reservation locks.
	assert.Equal(t, 8, f.availableQty(t, prodA.ID))
	assert.Equal(t, 4, f.availableQty(t, prodB.ID))

	// Session consumed, cart emptied.
	var reloaded models.CheckoutSession
	require.NoError(t, f.db.First(&reloaded, "id = ?", session.ID).Error)
	assert.Equal(t, enums.CheckoutSessionStatusCompleted, reloaded.Status)
	var cartItems int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Count(&cartItems).Error)
	assert.Zero(t, cartItems)

	created := f.outbox.byType(enums.EventOrderCreated)
	require.Len(t, created, 1)
}

func TestCreateOrderInsufficientStockAbortsAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	vendorA, vendorB := uuid.New(), uuid.New()
	prodA := f.seedProduct(t, vendorA, "Walnut Cutting Board", 4000, 10)
	prodB := f.seedProduct(t, vendorB, "Linen Apron", 2500, 0)
	f.seedCart(t,
		map[uuid.UUID]models.Product{prodA.ID: prodA, prodB.ID: prodB},
		map[uuid.UUID]int{prodA.ID: 2, prodB.ID: 1},
	)
	session := f.seedSession(t, enums.PaymentMethodCard, 0)

	_, err := f.svc.CreateOrder(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	typed := pkgerrors.As(err)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	shortages, ok := details["shortages"].([]StockShortage)
	require.True(t, ok)
	require.Len(t, shortages, 1)
	assert.Equal(t, "Linen Apron", shortages[0].Name)
	assert.Equal(t, 1, shortages[0].Requested)
	assert.Equal(t, 0, shortages[0].Available)

	// Nothing committed: no orders, stock untouched, session still live.
	var masters, vendors int64
	require.NoError(t, f.db.Model(&models.MasterOrder{}).Count(&masters).Error)
	require.NoError(t, f.db.Model(&models.VendorOrder{}).Count(&vendors).Error)
	assert.Zero(t, masters)
	assert.Zero(t, vendors)
	assert.Equal(t, 10, f.availableQty(t, prodA.ID))

	var reloaded models.CheckoutSession
	require.NoError(t, f.db.First(&reloaded, "id = ?", session.ID).Error)
	assert.Equal(t, enums.CheckoutSessionStatusPaymentSelected, reloaded.Status)
}

func TestCreateOrderRejectsExpiredSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	vendorID := uuid.New()
	product := f.seedProduct(t, vendorID, "Desk Lamp", 3000, 3)
	f.seedCart(t, map[uuid.UUID]models.Product{product.ID: product}, map[uuid.UUID]int{product.ID: 1})
	session := f.seedSession(t, enums.PaymentMethodCard, 0)
	require.NoError(t, f.db.Model(&models.CheckoutSession{}).
		Where("id = ?", session.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err := f.svc.CreateOrder(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 3, f.availableQty(t, product.ID))
}

func TestCreateOrderRejectsReusedSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	vendorID := uuid.New()
	product := f.seedProduct(t, vendorID, "Desk Lamp", 3000, 5)
	f.seedCart(t, map[uuid.UUID]models.Product{product.ID: product}, map[uuid.UUID]int{product.ID: 1})
	session := f.seedSession(t, enums.PaymentMethodCard, 0)

	_, err := f.svc.CreateOrder(ctx, session.ID)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateOrderAllocatesDiscountAndReparentsCoupon(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	vendorA, vendorB := uuid.New(), uuid.New()
	prodA := f.seedProduct(t, vendorA, "Walnut Cutting Board", 6000, 10)
	prodB := f.seedProduct(t, vendorB, "Linen Apron", 3000, 10)
	f.seedCart(t,
		map[uuid.UUID]models.Product{prodA.ID: prodA, prodB.ID: prodB},
		map[uuid.UUID]int{prodA.ID: 1, prodB.ID: 1},
	)
	session := f.seedSession(t, enums.PaymentMethodCard, 900)

	master, err := f.svc.CreateOrder(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(900), master.DiscountCents)
	assert.Equal(t, master.TotalCents, master.VendorOrders[0].TotalCents+master.VendorOrders[1].TotalCents)

	var coupon models.AppliedCoupon
	require.NoError(t, f.db.First(&coupon, "master_order_id = ?", master.ID).Error)
	assert.Nil(t, coupon.SessionID)
}

func TestCreateOrderClampsStaleDiscount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	vendorID := uuid.New()
	product := f.seedProduct(t, vendorID, "Linen Apron", 1000, 10)
	f.seedCart(t,
		map[uuid.UUID]models.Product{product.ID: product},
		map[uuid.UUID]int{product.ID: 1},
	)
	// Discount priced against a bigger cart than the one being ordered.
	session := f.seedSession(t, enums.PaymentMethodCard, 5000)

	master, err := f.svc.CreateOrder(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), master.SubtotalCents)
	assert.Equal(t, int64(1000), master.DiscountCents)
	assert.GreaterOrEqual(t, master.TotalCents, int64(0))
	for _, vo := range master.VendorOrders {
		assert.GreaterOrEqual(t, vo.TotalCents, int64(0))
	}
}

func (f *fixture) seedVendorOrder(t *testing.T, masterID, vendorID uuid.UUID, status enums.VendorOrderStatus, isCOD bool, seq int) models.VendorOrder {
	t.Helper()
	order := models.VendorOrder{
		ID:                uuid.New(),
		VendorOrderNumber: fmt.Sprintf("VO-20260901-0001-%d", seq),
		MasterOrderID:     masterID,
		VendorID:          vendorID,
		SubtotalCents:     1000,
		TotalCents:        1000,
		PaymentMethod:     enums.PaymentMethodCard,
		IsCOD:             isCOD,
		Status:            status,
	}
	if isCOD {
		order.PaymentMethod = enums.PaymentMethodCOD
	}
	require.NoError(t, f.db.Create(&order).Error)
	return order
}

func (f *fixture) seedMasterOrder(t *testing.T, status enums.MasterOrderStatus) models.MasterOrder {
	t.Helper()
	master := models.MasterOrder{
		ID:            uuid.New(),
		OrderNumber:   "MO-20260901-" + uuid.NewString()[:4],
		BuyerKey:      f.buyerKey,
		SubtotalCents: 1000,
		TotalCents:    1000,
		Currency:      "USD",
		Status:        status,
	}
	require.NoError(t, f.db.Create(&master).Error)
	return master
}

func TestTransitionStampsTimestampsAndResolvesMaster(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	master := f.seedMasterOrder(t, enums.MasterOrderStatusConfirmed)
	first := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusConfirmed, false, 1)
	f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusConfirmed, false, 2)

	order, err := f.svc.Transition(ctx, TransitionInput{VendorOrderID: first.ID, Target: enums.VendorOrderStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, enums.VendorOrderStatusProcessing, order.Status)

	var reloadedMaster models.MasterOrder
	require.NoError(t, f.db.First(&reloadedMaster, "id = ?", master.ID).Error)
	assert.Equal(t, enums.MasterOrderStatusProcessing, reloadedMaster.Status)

	var reloaded models.VendorOrder
	require.NoError(t, f.db.First(&reloaded, "id = ?", first.ID).Error)
	require.NotNil(t, reloaded.ProcessingAt)

	// March the first vendor order to shipped; master becomes partial.
	_, err = f.svc.Transition(ctx, TransitionInput{VendorOrderID: first.ID, Target: enums.VendorOrderStatusPacked})
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, TransitionInput{VendorOrderID: first.ID, Target: enums.VendorOrderStatusShipped})
	require.NoError(t, err)

	require.NoError(t, f.db.First(&reloadedMaster, "id = ?", master.ID).Error)
	assert.Equal(t, enums.MasterOrderStatusPartiallyShipped, reloadedMaster.Status)

	shipped := f.outbox.byType(enums.EventVendorOrderShipped)
	require.Len(t, shipped, 1)
	changed := f.outbox.byType(enums.EventVendorOrderStatusChanged)
	assert.Len(t, changed, 3)
}

func TestTransitionRejectsSkips(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	master := f.seedMasterOrder(t, enums.MasterOrderStatusConfirmed)
	order := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusConfirmed, false, 1)

	_, err := f.svc.Transition(ctx, TransitionInput{VendorOrderID: order.ID, Target: enums.VendorOrderStatusShipped})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// Status and timestamps untouched.
	var reloaded models.VendorOrder
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.VendorOrderStatusConfirmed, reloaded.Status)
	assert.Nil(t, reloaded.ShippedAt)

	_, err = f.svc.Transition(ctx, TransitionInput{VendorOrderID: order.ID, Target: enums.VendorOrderStatusCancelled})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCODDeliveredRequiresConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	master := f.seedMasterOrder(t, enums.MasterOrderStatusConfirmed)
	order := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusOutForDelivery, true, 1)

	_, err := f.svc.Transition(ctx, TransitionInput{VendorOrderID: order.ID, Target: enums.VendorOrderStatusDelivered})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	confirmed, err := f.svc.ConfirmCashCollected(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.CODConfirmed)
	require.Len(t, f.settler.settled, 1)

	// Confirming again settles nothing twice.
	_, err = f.svc.ConfirmCashCollected(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, f.settler.settled, 1)

	delivered, err := f.svc.Transition(ctx, TransitionInput{VendorOrderID: order.ID, Target: enums.VendorOrderStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, enums.VendorOrderStatusDelivered, delivered.Status)
}

func TestConfirmCashCollectedRejectsOnlineOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedMasterOrder(t, enums.MasterOrderStatusConfirmed)
	order := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusShipped, false, 1)

	_, err := f.svc.ConfirmCashCollected(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCancelOrderPartialDoesNotCascade(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	master := f.seedMasterOrder(t, enums.MasterOrderStatusConfirmed)
	first := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusConfirmed, false, 1)
	second := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusConfirmed, false, 2)

	// Give the first vendor order an item so cancellation restocks it.
	product := f.seedProduct(t, first.VendorID, "Walnut Cutting Board", 4000, 0)
	item := models.OrderItem{
		ID:             uuid.New(),
		VendorOrderID:  first.ID,
		ProductID:      product.ID,
		VendorID:       first.VendorID,
		Name:           product.Name,
		UnitPriceCents: product.PriceCents,
		Qty:            2,
		SubtotalCents:  8000,
	}
	require.NoError(t, f.db.Create(&item).Error)

	result, err := f.svc.CancelOrder(ctx, CancelInput{
		MasterOrderID:  master.ID,
		VendorOrderIDs: []uuid.UUID{first.ID},
		Reason:         "buyer request",
	})
	require.NoError(t, err)
	assert.NotEqual(t, enums.MasterOrderStatusCancelled, result.Status)
	assert.Equal(t, 2, f.availableQty(t, product.ID))

	var reloaded models.VendorOrder
	require.NoError(t, f.db.First(&reloaded, "id = ?", first.ID).Error)
	assert.Equal(t, enums.VendorOrderStatusCancelled, reloaded.Status)
	require.NotNil(t, reloaded.CancelledAt)
	require.Len(t, f.outbox.byType(enums.EventVendorOrderCancelled), 1)
	assert.Empty(t, f.outbox.byType(enums.EventOrderCancelled))

	// Cancelling the remainder cascades to the master order.
	result, err = f.svc.CancelOrder(ctx, CancelInput{MasterOrderID: master.ID, VendorOrderIDs: []uuid.UUID{second.ID}})
	require.NoError(t, err)
	assert.Equal(t, enums.MasterOrderStatusCancelled, result.Status)
	require.NotNil(t, result.CancelledAt)
	require.Len(t, f.outbox.byType(enums.EventOrderCancelled), 1)
}

func TestCancelOrderNoCancellableItems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedMasterOrder(t, enums.MasterOrderStatusPartiallyShipped)
	order := f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusShipped, false, 1)

	_, err := f.svc.CancelOrder(context.Background(), CancelInput{MasterOrderID: master.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	var reloaded models.VendorOrder
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.VendorOrderStatusShipped, reloaded.Status)
}

func TestCancelOrderRejectsForeignVendorOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedMasterOrder(t, enums.MasterOrderStatusConfirmed)
	f.seedVendorOrder(t, master.ID, uuid.New(), enums.VendorOrderStatusConfirmed, false, 1)

	_, err := f.svc.CancelOrder(context.Background(), CancelInput{
		MasterOrderID:  master.ID,
		VendorOrderIDs: []uuid.UUID{uuid.New()},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
