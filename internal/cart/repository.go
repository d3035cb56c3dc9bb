package cart

import (
	"context"

	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
)

// Repository reads and clears live carts. Cart building and merging happen
// outside this service; order creation only re-fetches the cart inside its
// transaction and empties it once the order commits.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByBuyerKey(ctx context.Context, buyerKey string) (*models.CartRecord, error)
	ClearByBuyerKey(ctx context.Context, buyerKey string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByBuyerKey(ctx context.Context, buyerKey string) (*models.CartRecord, error) {
	var cart models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("buyer_key = ?", buyerKey).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) ClearByBuyerKey(ctx context.Context, buyerKey string) error {
	var cart models.CartRecord
	err := r.db.WithContext(ctx).
		Where("buyer_key = ?", buyerKey).
		First(&cart).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Delete(&models.CartItem{}).Error
}
