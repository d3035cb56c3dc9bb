package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/internal/gateways"
	"github.com/multivendhq/multivend-backend/internal/ledger"
	"github.com/multivendhq/multivend-backend/internal/orders"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
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

func (r *recordingOutbox) countByType(eventType enums.OutboxEventType) int {
	var n int
	for _, event := range r.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeAdapter struct {
	name        string
	initiate    *gateways.InitiateResult
	initiateErr error
	verify      *gateways.VerifyResult
	refund      *gateways.RefundResult
	initCalls   int
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) SupportsMethod(m enums.PaymentMethod) bool {
	return m != enums.PaymentMethodCOD
}

func (a *fakeAdapter) ValidateSignature(gateways.WebhookRequest) bool { return true }
func (a *fakeAdapter) HandleWebhook(gateways.WebhookRequest) gateways.NormalizedEvent {
	return gateways.NormalizedEvent{}
}

func (a *fakeAdapter) Initiate(context.Context, gateways.PaymentIntent) (*gateways.InitiateResult, error) {
	a.initCalls++
	if a.initiateErr != nil {
		return nil, a.initiateErr
	}
	return a.initiate, nil
}

func (a *fakeAdapter) Verify(context.Context, string, string) (*gateways.VerifyResult, error) {
	return a.verify, nil
}

func (a *fakeAdapter) Refund(context.Context, string, int64, string) (*gateways.RefundResult, error) {
	return a.refund, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.MasterOrder{},
		&models.VendorOrder{},
		&models.OrderItem{},
		&models.Payment{},
		&models.PaymentAttempt{},
		&models.VendorPayment{},
	))
	return db
}

type fixture struct {
	svc     Service
	db      *gorm.DB
	adapter *fakeAdapter
	outbox  *recordingOutbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	sink := &recordingOutbox{}
	adapter := &fakeAdapter{
		name: "razorpay",
		initiate: &gateways.InitiateResult{
			TransactionID: "order_rzp_123",
			ReferenceID:   "MO-20260901-0001",
			RedirectURL:   "https://pay.example/redirect",
			Status:        enums.PaymentStatusPending,
			RawResponse:   []byte(`{"id":"order_rzp_123"}`),
		},
	}
	registry := gateways.NewRegistry()
	require.NoError(t, registry.Register(adapter))

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db), nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Orders:   orders.NewRepository(db),
		Ledger:   ledgerSvc,
		Registry: registry,
		Tx:       &testTxRunner{db: db},
		Outbox:   sink,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, db: db, adapter: adapter, outbox: sink}
}

func (f *fixture) seedOrder(t *testing.T, isCOD bool, vendorCount int) *models.MasterOrder {
	t.Helper()
	master := models.MasterOrder{
		ID:            uuid.New(),
		OrderNumber:   "MO-20260901-" + uuid.NewString()[:4],
		BuyerKey:      "buyer-1",
		Email:         "buyer@example.com",
		SubtotalCents: int64(vendorCount) * 1000,
		TotalCents:    int64(vendorCount) * 1000,
		Currency:      "USD",
		Status:        enums.MasterOrderStatusConfirmed,
	}
	require.NoError(t, f.db.Create(&master).Error)
	method := enums.PaymentMethodCard
	if isCOD {
		method = enums.PaymentMethodCOD
	}
	for i := 0; i < vendorCount; i++ {
		vo := models.VendorOrder{
			ID:                uuid.New(),
			VendorOrderNumber: master.OrderNumber + "-" + uuid.NewString()[:4],
			MasterOrderID:     master.ID,
			VendorID:          uuid.New(),
			SubtotalCents:     1000,
			TotalCents:        1000,
			PaymentMethod:     method,
			IsCOD:             isCOD,
			Status:            enums.VendorOrderStatusConfirmed,
		}
		require.NoError(t, f.db.Create(&vo).Error)
	}
	return &master
}

func TestInitiateOnlinePayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 2)

	result, err := f.svc.InitiatePayment(context.Background(), InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, "order_rzp_123", result.Payment.TransactionID)
	assert.Equal(t, "https://pay.example/redirect", result.RedirectURL)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.Equal(t, master.TotalCents, result.Payment.AmountCents)

	var attempt models.PaymentAttempt
	require.NoError(t, f.db.First(&attempt, "payment_id = ?", result.Payment.ID).Error)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Equal(t, enums.PaymentStatusProcessing, attempt.Status)
}

func TestInitiateUnknownGateway(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 1)

	_, err := f.svc.InitiatePayment(context.Background(), InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "stripe",
		Method:        enums.PaymentMethodCard,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnsupportedGateway))

	// Nothing persisted before the gateway resolved.
	var count int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInitiateFailureLeavesPaymentPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 1)
	f.adapter.initiateErr = pkgerrors.New(pkgerrors.CodeDependency, "gateway unreachable")

	_, err := f.svc.InitiatePayment(context.Background(), InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.Error(t, err)

	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "master_order_id = ?", master.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)

	var attempt models.PaymentAttempt
	require.NoError(t, f.db.First(&attempt, "payment_id = ?", payment.ID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, attempt.Status)
	require.NotNil(t, attempt.FailureReason)

	// Retry appends a second attempt instead of mutating the failed one.
	f.adapter.initiateErr = nil
	result, err := f.svc.InitiatePayment(context.Background(), InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, payment.ID, result.Payment.ID)

	var attempts []models.PaymentAttempt
	require.NoError(t, f.db.Order("attempt_number ASC").Find(&attempts, "payment_id = ?", payment.ID).Error)
	require.Len(t, attempts, 2)
	assert.Equal(t, enums.PaymentStatusFailed, attempts[0].Status)
	assert.Equal(t, 2, attempts[1].AttemptNumber)
	assert.Equal(t, enums.PaymentStatusProcessing, attempts[1].Status)
}

func TestInitiateCODPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, true, 2)

	result, err := f.svc.InitiatePayment(context.Background(), InitiateInput{
		MasterOrderID: master.ID,
		Method:        enums.PaymentMethodCOD,
	})
	require.NoError(t, err)
	assert.Zero(t, f.adapter.initCalls)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.Contains(t, result.Payment.TransactionID, "COD-")
	assert.Equal(t, master.OrderNumber, result.Payment.ReferenceID)
	assert.Empty(t, result.RedirectURL)

	// One pending ledger row per cash-on-delivery vendor order.
	var rows []models.VendorPayment
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, enums.PaymentStatusPending, row.PaymentStatus)
		assert.Equal(t, int64(1000), row.AmountCents)
	}
}

func TestInitiateRejectsSettledPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 1)
	ctx := context.Background()

	result, err := f.svc.InitiatePayment(ctx, InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyGatewaySuccess(ctx, result.Payment.ID, time.Now().UTC(), nil))

	_, err = f.svc.InitiatePayment(ctx, InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestVerifyRejectsPaymentWithoutTransaction(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 1)
	masterID := master.ID
	payment := models.Payment{
		ID:            uuid.New(),
		MasterOrderID: &masterID,
		BuyerKey:      master.BuyerKey,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
		Status:        enums.PaymentStatusPending,
		AmountCents:   master.TotalCents,
		Currency:      "USD",
	}
	require.NoError(t, f.db.Create(&payment).Error)

	_, err := f.svc.VerifyPayment(context.Background(), payment.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestApplyGatewaySuccessSettlesEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 2)
	ctx := context.Background()

	result, err := f.svc.InitiatePayment(ctx, InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.NoError(t, err)

	paidAt := time.Now().UTC()
	require.NoError(t, f.svc.ApplyGatewaySuccess(ctx, result.Payment.ID, paidAt, []byte(`{"status":"captured"}`)))

	payment, err := f.svc.GetPayment(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.PaidAt)
	require.Len(t, payment.Attempts, 1)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Attempts[0].Status)

	var rows []models.VendorPayment
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, enums.PaymentStatusCompleted, row.PaymentStatus)
		require.NotNil(t, row.PaidAt)
	}

	assert.Equal(t, 1, f.outbox.countByType(enums.EventPaymentCompleted))
	assert.Equal(t, 1, f.outbox.countByType(enums.EventReceiptRequested))

	// Reapplying is a no-op: no extra events, no attempt churn.
	require.NoError(t, f.svc.ApplyGatewaySuccess(ctx, result.Payment.ID, paidAt, nil))
	assert.Equal(t, 1, f.outbox.countByType(enums.EventPaymentCompleted))
}

func TestApplyGatewayFailureNeverDowngrades(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 1)
	ctx := context.Background()

	result, err := f.svc.InitiatePayment(ctx, InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.ApplyGatewaySuccess(ctx, result.Payment.ID, time.Now().UTC(), nil))

	// A stale failure event arriving after settlement changes nothing.
	require.NoError(t, f.svc.ApplyGatewayFailure(ctx, result.Payment.ID, "card declined"))

	payment, err := f.svc.GetPayment(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Zero(t, f.outbox.countByType(enums.EventPaymentFailed))
}

func TestSettleCashOnDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, true, 2)
	ctx := context.Background()

	_, err := f.svc.InitiatePayment(ctx, InitiateInput{
		MasterOrderID: master.ID,
		Method:        enums.PaymentMethodCOD,
	})
	require.NoError(t, err)

	var vendorOrders []models.VendorOrder
	require.NoError(t, f.db.Find(&vendorOrders, "master_order_id = ?", master.ID).Error)
	require.Len(t, vendorOrders, 2)

	collectedAt := time.Now().UTC()
	require.NoError(t, f.svc.SettleCashOnDelivery(ctx, f.db, &vendorOrders[0], collectedAt))

	// First partition settles its ledger row but not the payment.
	var payment models.Payment
	require.NoError(t, f.db.First(&payment, "master_order_id = ?", master.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)

	require.NoError(t, f.svc.SettleCashOnDelivery(ctx, f.db, &vendorOrders[1], collectedAt))
	require.NoError(t, f.db.First(&payment, "master_order_id = ?", master.ID).Error)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 1, f.outbox.countByType(enums.EventPaymentCompleted))
	assert.Equal(t, 1, f.outbox.countByType(enums.EventReceiptRequested))
}

func TestRefundFullAndPartial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	master := f.seedOrder(t, false, 2)
	ctx := context.Background()
	f.adapter.refund = &gateways.RefundResult{
		RefundID:    "rfnd_1",
		Status:      enums.PaymentStatusRefunded,
		RawResponse: []byte(`{"id":"rfnd_1"}`),
	}

	result, err := f.svc.InitiatePayment(ctx, InitiateInput{
		MasterOrderID: master.ID,
		Gateway:       "razorpay",
		Method:        enums.PaymentMethodCard,
	})
	require.NoError(t, err)

	// Refunding before settlement is rejected.
	_, err = f.svc.Refund(ctx, RefundInput{PaymentID: result.Payment.ID, AmountCents: 500})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	require.NoError(t, f.svc.ApplyGatewaySuccess(ctx, result.Payment.ID, time.Now().UTC(), nil))

	partial, err := f.svc.Refund(ctx, RefundInput{PaymentID: result.Payment.ID, AmountCents: 500, Reason: "damaged item"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, partial.Status)

	full, err := f.svc.Refund(ctx, RefundInput{PaymentID: result.Payment.ID, AmountCents: partial.AmountCents})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, full.Status)

	// Refund interactions append to the attempt trail.
	require.Len(t, full.Attempts, 3)
}
