package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/internal/gateways"
	"github.com/multivendhq/multivend-backend/internal/ledger"
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

// orderReader is the slice of the order repository payments needs: loading
// the master order a payment settles and its vendor partitions for ledger
// fan-out.
type orderReader interface {
	FindMasterOrder(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error)
	FindVendorOrdersByMaster(ctx context.Context, masterOrderID uuid.UUID) ([]models.VendorOrder, error)
}

// InitiateInput starts a payment for a master order.
type InitiateInput struct {
	MasterOrderID uuid.UUID
	Gateway       string
	Method        enums.PaymentMethod
}

// InitiateResult is what the caller needs to continue the payment flow.
type InitiateResult struct {
	Payment     *models.Payment
	RedirectURL string
}

// RefundInput requests a full or partial refund of a settled payment.
type RefundInput struct {
	PaymentID   uuid.UUID
	AmountCents int64
	Reason      string
}

// Service owns the payment lifecycle: initiation against a gateway (or the
// local cash-on-delivery branch), verification, refunds, and the guarded
// state application the webhook reconciler drives.
type Service interface {
	InitiatePayment(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	VerifyPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	Refund(ctx context.Context, input RefundInput) (*models.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ApplyGatewaySuccess(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, raw []byte) error
	ApplyGatewayFailure(ctx context.Context, paymentID uuid.UUID, reason string) error
	SettleCashOnDelivery(ctx context.Context, tx *gorm.DB, order *models.VendorOrder, collectedAt time.Time) error
}

// ServiceParams wires the payment service's collaborators.
type ServiceParams struct {
	Repo     Repository
	Orders   orderReader
	Ledger   ledger.Service
	Registry *gateways.Registry
	Tx       txRunner
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Currency string
}

type service struct {
	repo     Repository
	orders   orderReader
	ledger   ledger.Service
	registry *gateways.Registry
	tx       txRunner
	outbox   outboxPublisher
	logger   *logger.Logger
	currency string
	now      func() time.Time
}

// NewService validates the wiring and returns a payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("gateway registry required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		ledger:   params.Ledger,
		registry: params.Registry,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logger:   params.Logger,
		currency: currency,
		now:      time.Now,
	}, nil
}

func (s *service) InitiatePayment(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method").
			WithDetails(map[string]any{"method": input.Method})
	}
	master, err := s.orders.FindMasterOrder(ctx, input.MasterOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if master.Status == enums.MasterOrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}

	var adapter gateways.Adapter
	if input.Method.IsOnline() {
		adapter, err = s.registry.Resolve(input.Gateway)
		if err != nil {
			return nil, err
		}
		if !adapter.SupportsMethod(input.Method) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method not supported by gateway").
				WithDetails(map[string]any{"gateway": adapter.Name(), "method": input.Method})
		}
	}

	var payment *models.Payment
	var attempt *models.PaymentAttempt
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, attempt, err = s.openAttempt(ctx, repo, master, input)
		if err != nil {
			return err
		}
		if input.Method == enums.PaymentMethodCOD {
			return s.settlePendingCOD(ctx, tx, repo, attempt, master)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gatewayLabel := input.Gateway
	if input.Method == enums.PaymentMethodCOD {
		gatewayLabel = "cod"
	}
	metrics.PaymentsInitiated.WithLabelValues(gatewayLabel, input.Method.String()).Inc()

	if input.Method == enums.PaymentMethodCOD {
		return &InitiateResult{Payment: payment}, nil
	}
	return s.initiateOnline(ctx, adapter, master, payment, attempt)
}

// openAttempt creates the payment on first initiation or appends a fresh
// attempt to an existing pending one. Settled payments are never reopened.
func (s *service) openAttempt(ctx context.Context, repo Repository, master *models.MasterOrder, input InitiateInput) (*models.Payment, *models.PaymentAttempt, error) {
	payment, err := repo.FindByMasterOrder(ctx, master.ID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}

	attemptNumber := 1
	if payment == nil {
		masterID := master.ID
		payment = &models.Payment{
			ID:            uuid.New(),
			MasterOrderID: &masterID,
			BuyerKey:      master.BuyerKey,
			Gateway:       input.Gateway,
			Method:        input.Method,
			Status:        enums.PaymentStatusPending,
			AmountCents:   master.TotalCents,
			Currency:      s.currency,
		}
		if input.Method == enums.PaymentMethodCOD {
			payment.Gateway = "cod"
			payment.TransactionID = codTransactionID(payment.ID)
			payment.ReferenceID = master.OrderNumber
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment")
		}
	} else {
		if payment.Status.IsTerminalSuccess() {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled").
				WithDetails(map[string]any{"status": payment.Status})
		}
		attemptNumber, err = repo.NextAttemptNumber(ctx, payment.ID)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "numbering attempt")
		}
		// A retry may switch gateways; the payment row follows it.
		if input.Method.IsOnline() && payment.Gateway != input.Gateway {
			if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{"gateway": input.Gateway, "method": input.Method}); err != nil {
				return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating payment gateway")
			}
			payment.Gateway = input.Gateway
			payment.Method = input.Method
		}
	}

	attempt := &models.PaymentAttempt{
		ID:            uuid.New(),
		PaymentID:     payment.ID,
		AttemptNumber: attemptNumber,
		Gateway:       payment.Gateway,
		Status:        enums.PaymentStatusPending,
	}
	if err := repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment attempt")
	}
	return payment, attempt, nil
}

// settlePendingCOD opens the ledger rows for every cash-on-delivery vendor
// order without touching the network. Cash confirmation at delivery time
// moves them to completed.
func (s *service) settlePendingCOD(ctx context.Context, tx *gorm.DB, repo Repository, attempt *models.PaymentAttempt, master *models.MasterOrder) error {
	vendorOrders, err := s.orders.FindVendorOrdersByMaster(ctx, master.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor orders")
	}
	for _, vo := range vendorOrders {
		if !vo.IsCOD || vo.Status == enums.VendorOrderStatusCancelled {
			continue
		}
		_, err := s.ledger.Upsert(ctx, tx, ledger.Entry{
			VendorOrderID: vo.ID,
			VendorID:      vo.VendorID,
			Status:        enums.PaymentStatusPending,
			AmountCents:   vo.TotalCents,
		})
		if err != nil {
			return err
		}
	}
	now := s.now().UTC()
	return repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
		"processed_at": now,
	})
}

func (s *service) initiateOnline(ctx context.Context, adapter gateways.Adapter, master *models.MasterOrder, payment *models.Payment, attempt *models.PaymentAttempt) (*InitiateResult, error) {
	intent := gateways.PaymentIntent{
		PaymentID:   payment.ID.String(),
		OrderNumber: master.OrderNumber,
		AmountCents: payment.AmountCents,
		Currency:    payment.Currency,
		Method:      payment.Method,
		CustomerRef: master.BuyerKey,
		Email:       master.Email,
		Phone:       master.Phone,
	}

	result, initErr := adapter.Initiate(ctx, intent)
	now := s.now().UTC()
	if initErr != nil {
		reason := initErr.Error()
		recordErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).UpdateAttempt(ctx, attempt.ID, map[string]any{
				"status":         enums.PaymentStatusFailed,
				"failure_reason": reason,
				"processed_at":   now,
			})
		})
		if recordErr != nil && s.logger != nil {
			s.logger.Error(ctx, "recording failed payment attempt", recordErr)
		}
		return nil, initErr
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"transaction_id":   result.TransactionID,
			"reference_id":     result.ReferenceID,
			"gateway_response": result.RawResponse,
		}); err != nil {
			return err
		}
		return repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
			"status":           enums.PaymentStatusProcessing,
			"response_payload": result.RawResponse,
			"processed_at":     now,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording payment initiation")
	}

	payment.TransactionID = result.TransactionID
	payment.ReferenceID = result.ReferenceID
	return &InitiateResult{Payment: payment, RedirectURL: result.RedirectURL}, nil
}

func (s *service) VerifyPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if payment.Method == enums.PaymentMethodCOD {
		return payment, nil
	}
	// A payment whose initiation never reached the gateway has nothing to
	// verify against.
	if payment.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway transaction, retry initiation")
	}

	adapter, err := s.registry.Resolve(payment.Gateway)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Verify(ctx, payment.TransactionID, payment.ReferenceID)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case enums.PaymentStatusCompleted:
		if err := s.ApplyGatewaySuccess(ctx, payment.ID, s.now().UTC(), result.RawResponse); err != nil {
			return nil, err
		}
	case enums.PaymentStatusFailed:
		if err := s.ApplyGatewayFailure(ctx, payment.ID, "gateway reported failure on verification"); err != nil {
			return nil, err
		}
	}
	return s.repo.FindPayment(ctx, paymentID)
}

// ApplyGatewaySuccess settles the payment, its current attempt, and the
// vendor ledger in one transaction. Already-settled payments are left alone,
// which makes duplicate and out-of-order gateway events harmless.
func (s *service) ApplyGatewaySuccess(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, raw []byte) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.MarkCompleted(ctx, paymentID, paidAt, raw)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling payment")
		}
		if !applied {
			return nil
		}
		payment, err := repo.FindPayment(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading payment")
		}
		if err := s.closeLatestAttempt(ctx, repo, paymentID, enums.PaymentStatusCompleted, ""); err != nil {
			return err
		}
		if err := s.settleLedger(ctx, tx, payment, enums.PaymentStatusCompleted, &paidAt); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, paymentEvent(enums.EventPaymentCompleted, payment, "")); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting payment event")
		}
		return s.outbox.Emit(ctx, tx, receiptEvent(payment))
	})
}

// ApplyGatewayFailure records a failure unless the payment already settled.
func (s *service) ApplyGatewayFailure(ctx context.Context, paymentID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.MarkFailed(ctx, paymentID, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failing payment")
		}
		if !applied {
			return nil
		}
		payment, err := repo.FindPayment(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading payment")
		}
		if err := s.closeLatestAttempt(ctx, repo, paymentID, enums.PaymentStatusFailed, reason); err != nil {
			return err
		}
		if err := s.settleLedger(ctx, tx, payment, enums.PaymentStatusFailed, nil); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, paymentEvent(enums.EventPaymentFailed, payment, reason))
	})
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, input.PaymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if !payment.Status.IsTerminalSuccess() || payment.Status == enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not refundable").
			WithDetails(map[string]any{"status": payment.Status})
	}
	if input.AmountCents <= 0 || input.AmountCents > payment.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount out of range").
			WithDetails(map[string]any{"amount_cents": input.AmountCents, "payment_cents": payment.AmountCents})
	}

	adapter, err := s.registry.Resolve(payment.Gateway)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Refund(ctx, payment.TransactionID, input.AmountCents, input.Reason)
	if err != nil {
		return nil, err
	}

	status := enums.PaymentStatusPartiallyRefunded
	if input.AmountCents == payment.AmountCents {
		status = enums.PaymentStatusRefunded
	}
	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		attemptNumber, err := repo.NextAttemptNumber(ctx, payment.ID)
		if err != nil {
			return err
		}
		if err := repo.CreateAttempt(ctx, &models.PaymentAttempt{
			ID:              uuid.New(),
			PaymentID:       payment.ID,
			AttemptNumber:   attemptNumber,
			Gateway:         payment.Gateway,
			Status:          status,
			ResponsePayload: result.RawResponse,
			ProcessedAt:     &now,
		}); err != nil {
			return err
		}
		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{"status": status}); err != nil {
			return err
		}
		if status == enums.PaymentStatusRefunded {
			return s.settleLedger(ctx, tx, payment, enums.PaymentStatusRefunded, nil)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording refund")
	}
	return s.repo.FindPayment(ctx, payment.ID)
}

func (s *service) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	return payment, nil
}

func (s *service) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return s.repo.FindByTransactionID(ctx, transactionID)
}

// SettleCashOnDelivery moves this vendor order's ledger row to completed and,
// once every live cash-on-delivery partition has settled, completes the
// payment itself. Runs inside the cash-confirmation transaction.
func (s *service) SettleCashOnDelivery(ctx context.Context, tx *gorm.DB, order *models.VendorOrder, collectedAt time.Time) error {
	paidAt := collectedAt.UTC()
	_, err := s.ledger.Upsert(ctx, tx, ledger.Entry{
		VendorOrderID: order.ID,
		VendorID:      order.VendorID,
		Status:        enums.PaymentStatusCompleted,
		AmountCents:   order.TotalCents,
		PaidAt:        &paidAt,
	})
	if err != nil {
		return err
	}

	repo := s.repo.WithTx(tx)
	payment, err := repo.FindByMasterOrder(ctx, order.MasterOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment")
	}
	if payment == nil {
		// Cash confirmed before any payment was initiated; the ledger row
		// alone carries the settlement.
		if s.logger != nil {
			s.logger.Warn(ctx, "cash collected for vendor order with no payment record")
		}
		return nil
	}

	settled, err := s.allCODPartitionsSettled(ctx, tx, order)
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	applied, err := repo.MarkCompleted(ctx, payment.ID, paidAt, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling payment")
	}
	if !applied {
		return nil
	}
	if err := s.closeLatestAttempt(ctx, repo, payment.ID, enums.PaymentStatusCompleted, ""); err != nil {
		return err
	}
	payment.Status = enums.PaymentStatusCompleted
	if err := s.outbox.Emit(ctx, tx, paymentEvent(enums.EventPaymentCompleted, payment, "")); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting payment event")
	}
	return s.outbox.Emit(ctx, tx, receiptEvent(payment))
}

func (s *service) allCODPartitionsSettled(ctx context.Context, tx *gorm.DB, current *models.VendorOrder) (bool, error) {
	vendorOrders, err := s.orders.FindVendorOrdersByMaster(ctx, current.MasterOrderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor orders")
	}
	for _, vo := range vendorOrders {
		if !vo.IsCOD || vo.Status == enums.VendorOrderStatusCancelled {
			continue
		}
		if vo.ID == current.ID {
			continue
		}
		row, err := s.ledger.GetByVendorOrder(ctx, vo.ID)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ledger row")
		}
		if row == nil || !row.PaymentStatus.IsTerminalSuccess() {
			return false, nil
		}
	}
	return true, nil
}

// settleLedger fans the payment outcome out to every live vendor order of
// the master order, each row carrying that partition's amount.
func (s *service) settleLedger(ctx context.Context, tx *gorm.DB, payment *models.Payment, status enums.PaymentStatus, paidAt *time.Time) error {
	if payment.MasterOrderID == nil {
		return nil
	}
	vendorOrders, err := s.orders.FindVendorOrdersByMaster(ctx, *payment.MasterOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading vendor orders")
	}
	for _, vo := range vendorOrders {
		if vo.Status == enums.VendorOrderStatusCancelled {
			continue
		}
		_, err := s.ledger.Upsert(ctx, tx, ledger.Entry{
			VendorOrderID: vo.ID,
			VendorID:      vo.VendorID,
			Status:        status,
			AmountCents:   vo.TotalCents,
			PaidAt:        paidAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *service) closeLatestAttempt(ctx context.Context, repo Repository, paymentID uuid.UUID, status enums.PaymentStatus, reason string) error {
	attempt, err := repo.LatestAttempt(ctx, paymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading payment attempt")
	}
	if attempt == nil {
		return nil
	}
	now := s.now().UTC()
	fields := map[string]any{
		"status":       status,
		"processed_at": now,
	}
	if reason != "" {
		fields["failure_reason"] = reason
	}
	if err := repo.UpdateAttempt(ctx, attempt.ID, fields); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "closing payment attempt")
	}
	return nil
}

func codTransactionID(paymentID uuid.UUID) string {
	return "COD-" + strings.ToUpper(strings.ReplaceAll(paymentID.String(), "-", ""))[:20]
}
