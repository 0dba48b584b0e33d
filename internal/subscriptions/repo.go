package subscriptions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
)

// Repository persists subscription attributions.
type Repository struct {
	repo.Base
}

// NewRepository constructs a subscription attribution repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a subscription attribution, ignoring the insert when the
// (original_order_id, selling_plan_id) pair is already registered.
func (r *Repository) Create(ctx context.Context, sub *models.SubscriptionAttribution) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "original_order_id"}, {Name: "selling_plan_id"}},
		DoNothing: true,
	}).Create(sub).Error
}

// FindByOriginalOrder loads the attribution registered for the subscription's
// first order. Returns nil when absent.
func (r *Repository) FindByOriginalOrder(ctx context.Context, shop string, originalOrderID int64, sellingPlanID string) (*models.SubscriptionAttribution, error) {
	var sub models.SubscriptionAttribution
	err := r.DB(ctx).
		Where("shop = ? AND original_order_id = ? AND selling_plan_id = ?", shop, originalOrderID, sellingPlanID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindLatestActive returns the most recently created active attribution for
// the affiliate and selling plan, or nil.
func (r *Repository) FindLatestActive(ctx context.Context, affiliateID uuid.UUID, sellingPlanID string) (*models.SubscriptionAttribution, error) {
	var sub models.SubscriptionAttribution
	err := r.DB(ctx).
		Where("affiliate_id = ? AND selling_plan_id = ? AND active = ?", affiliateID, sellingPlanID, true).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// IncrementPaymentsTx bumps the commissioned-payment counter inside the
// supplied transaction.
func (r *Repository) IncrementPaymentsTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.SubscriptionAttribution{}).
		Where("id = ?", id).
		Update("payments_made", gorm.Expr("payments_made + 1")).Error
}

// Deactivate marks the subscription attribution inactive so renewals stop
// matching it.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Model(&models.SubscriptionAttribution{}).
		Where("id = ?", id).
		Update("active", false).Error
}
