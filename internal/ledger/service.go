package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db"
	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	"github.com/multivendhq/multivend-backend/pkg/logger"
)

// Entry is one ledger write for a vendor order. AmountCents is the vendor
// order's share of the payment, not the master total.
type Entry struct {
	VendorOrderID uuid.UUID
	VendorID      uuid.UUID
	Status        enums.PaymentStatus
	AmountCents   int64
	PaidAt        *time.Time
}

// Service maintains the vendor payment ledger. All writes run inside the
// caller's transaction so ledger state commits atomically with the payment
// state that produced it.
type Service interface {
	Upsert(ctx context.Context, tx *gorm.DB, entry Entry) (*models.VendorPayment, error)
	GetByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorPayment, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.VendorPayment, error)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService returns a ledger service backed by the given repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, logger: logg}, nil
}

// Upsert creates the row for a vendor order or folds the entry into the
// existing one. A settled row is never downgraded: once the status reports
// terminal success, later pending or failed writes are dropped.
func (s *service) Upsert(ctx context.Context, tx *gorm.DB, entry Entry) (*models.VendorPayment, error) {
	if entry.VendorOrderID == uuid.Nil {
		return nil, fmt.Errorf("vendor order id required")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByVendorOrder(ctx, entry.VendorOrderID)
	if err != nil {
		return nil, fmt.Errorf("loading vendor payment: %w", err)
	}
	if existing == nil {
		created, err := s.create(ctx, repo, entry)
		if err == nil || !db.IsUniqueViolation(err, "ux_vendor_payments_order") {
			return created, err
		}
		// Lost the insert race; fall through to the row the winner created.
		existing, err = repo.FindByVendorOrder(ctx, entry.VendorOrderID)
		if err != nil {
			return nil, fmt.Errorf("reloading vendor payment: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("vendor payment for order %s vanished after conflict", entry.VendorOrderID)
		}
	}

	if existing.PaymentStatus.IsTerminalSuccess() && !entry.Status.IsTerminalSuccess() {
		if s.logger != nil {
			logCtx := s.logger.WithFields(ctx, map[string]any{
				"vendor_order_id": entry.VendorOrderID.String(),
				"current_status":  existing.PaymentStatus.String(),
				"entry_status":    entry.Status.String(),
			})
			s.logger.Warn(logCtx, "dropping ledger downgrade")
		}
		return existing, nil
	}

	fields := map[string]any{
		"payment_status": entry.Status,
		"amount_cents":   entry.AmountCents,
	}
	if entry.PaidAt != nil {
		fields["paid_at"] = entry.PaidAt
	}
	if err := repo.Update(ctx, existing.ID, fields); err != nil {
		return nil, fmt.Errorf("updating vendor payment: %w", err)
	}
	return repo.FindByVendorOrder(ctx, entry.VendorOrderID)
}

func (s *service) create(ctx context.Context, repo Repository, entry Entry) (*models.VendorPayment, error) {
	payment := &models.VendorPayment{
		ID:            uuid.New(),
		VendorOrderID: entry.VendorOrderID,
		VendorID:      entry.VendorID,
		PaymentStatus: entry.Status,
		AmountCents:   entry.AmountCents,
		PaidAt:        entry.PaidAt,
	}
	if err := repo.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) GetByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorPayment, error) {
	return s.repo.FindByVendorOrder(ctx, vendorOrderID)
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.VendorPayment, error) {
	return s.repo.FindByVendor(ctx, vendorID)
}
