package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
)

// Repository manages checkout sessions and their applied coupons.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSession(ctx context.Context, session *models.CheckoutSession) error
	FindSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	UpdateSession(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CompleteSession(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error)
	ReplaceSessionCoupon(ctx context.Context, coupon *models.AppliedCoupon) error
	FindSessionCoupon(ctx context.Context, sessionID uuid.UUID) (*models.AppliedCoupon, error)
	ReparentCoupons(ctx context.Context, sessionID, masterOrderID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a checkout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSession(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) UpdateSession(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CompleteSession flips the session to completed only if it is not already
// there. The conditional UPDATE closes the race where two order-creation
// transactions consume the same session: exactly one observes RowsAffected 1.
func (r *repository) CompleteSession(ctx context.Context, id uuid.UUID, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status <> ?", id, enums.CheckoutSessionStatusCompleted).
		Updates(map[string]any{
			"status":       enums.CheckoutSessionStatusCompleted,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReplaceSessionCoupon keeps at most one coupon per session.
func (r *repository) ReplaceSessionCoupon(ctx context.Context, coupon *models.AppliedCoupon) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", coupon.SessionID).
		Delete(&models.AppliedCoupon{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *repository) FindSessionCoupon(ctx context.Context, sessionID uuid.UUID) (*models.AppliedCoupon, error) {
	var coupon models.AppliedCoupon
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&coupon).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) ReparentCoupons(ctx context.Context, sessionID, masterOrderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.AppliedCoupon{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"session_id":      nil,
			"master_order_id": masterOrderID,
		}).Error
}
