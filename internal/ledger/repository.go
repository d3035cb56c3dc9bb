package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
)

// Repository persists the per-vendor-order payment rollup. The table holds
// exactly one row per vendor order, enforced by a unique index.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorPayment, error)
	FindByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.VendorPayment, error)
	Create(ctx context.Context, payment *models.VendorPayment) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a vendor-payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByVendorOrder(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorPayment, error) {
	var payment models.VendorPayment
	err := r.db.WithContext(ctx).
		Where("vendor_order_id = ?", vendorOrderID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.VendorPayment, error) {
	var payments []models.VendorPayment
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) Create(ctx context.Context, payment *models.VendorPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.VendorPayment{}).
		Where("id = ?", id).
		Updates(fields).Error
}
