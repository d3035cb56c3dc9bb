package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// Repository defines persistence operations for master and vendor orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMasterOrder(ctx context.Context, order *models.MasterOrder) error
	CreateVendorOrder(ctx context.Context, order *models.VendorOrder) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindMasterOrder(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error)
	FindMasterOrderByNumber(ctx context.Context, number string) (*models.MasterOrder, error)
	FindVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error)
	FindVendorOrdersByMaster(ctx context.Context, masterOrderID uuid.UUID) ([]models.VendorOrder, error)
	TransitionVendorOrder(ctx context.Context, id uuid.UUID, from, to enums.VendorOrderStatus, stamps map[string]any) (bool, error)
	UpdateMasterOrderStatus(ctx context.Context, id uuid.UUID, status enums.MasterOrderStatus, cancelledAt *time.Time) error
	MarkCODConfirmed(ctx context.Context, id uuid.UUID) (bool, error)
	CountNonCancelled(ctx context.Context, masterOrderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateMasterOrder(ctx context.Context, order *models.MasterOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateVendorOrder(ctx context.Context, order *models.VendorOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindMasterOrder(ctx context.Context, id uuid.UUID) (*models.MasterOrder, error) {
	var order models.MasterOrder
	err := r.db.WithContext(ctx).
		Preload("VendorOrders.Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindMasterOrderByNumber(ctx context.Context, number string) (*models.MasterOrder, error) {
	var order models.MasterOrder
	err := r.db.WithContext(ctx).
		Preload("VendorOrders.Items").
		Where("order_number = ?", number).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindVendorOrder(ctx context.Context, id uuid.UUID) (*models.VendorOrder, error) {
	var order models.VendorOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindVendorOrdersByMaster(ctx context.Context, masterOrderID uuid.UUID) ([]models.VendorOrder, error) {
	var orders []models.VendorOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("master_order_id = ?", masterOrderID).
		Order("vendor_order_number ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// TransitionVendorOrder applies a status change keyed on the expected
// current status. The conditional UPDATE re-validates against the freshly
// locked row, so two concurrent transitions cannot both succeed against a
// stale snapshot. Returns false when the expected status no longer holds.
func (r *repository) TransitionVendorOrder(ctx context.Context, id uuid.UUID, from, to enums.VendorOrderStatus, stamps map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for column, value := range stamps {
		updates[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateMasterOrderStatus(ctx context.Context, id uuid.UUID, status enums.MasterOrderStatus, cancelledAt *time.Time) error {
	updates := map[string]any{"status": status}
	if cancelledAt != nil {
		updates["cancelled_at"] = cancelledAt
	}
	return r.db.WithContext(ctx).
		Model(&models.MasterOrder{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkCODConfirmed flips cod_confirmed exactly once per order.
func (r *repository) MarkCODConfirmed(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("id = ? AND is_cod = ? AND cod_confirmed = ?", id, true, false).
		Update("cod_confirmed", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CountNonCancelled(ctx context.Context, masterOrderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VendorOrder{}).
		Where("master_order_id = ? AND status <> ?", masterOrderID, enums.VendorOrderStatusCancelled).
		Count(&count).Error
	return count, err
}
