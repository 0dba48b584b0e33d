package commissions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

// Repository persists commissions.
type Repository struct {
	repo.Base
}

// NewRepository constructs a commission repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// CreateTx inserts a commission inside the supplied transaction. A unique
// violation on idx_commissions_order_open means the order already has a
// non-reversed commission.
func (r *Repository) CreateTx(tx *gorm.DB, commission *models.Commission) error {
	return tx.Create(commission).Error
}

// FindByID loads a commission. Returns nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	err := r.DB(ctx).Where("id = ?", id).First(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// FindOpenByOrder returns the order's non-reversed commission, or nil. This
// is the idempotency read for webhook ingestion.
func (r *Repository) FindOpenByOrder(ctx context.Context, shop string, shopifyOrderID int64) (*models.Commission, error) {
	var commission models.Commission
	err := r.DB(ctx).
		Where("shop = ? AND shopify_order_id = ? AND status <> ?", shop, shopifyOrderID, enums.CommissionStatusReversed).
		First(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// ReverseOpenByOrderTx moves the order's pending/eligible/approved
// commissions to reversed. Paid commissions are left untouched.
func (r *Repository) ReverseOpenByOrderTx(tx *gorm.DB, shop string, shopifyOrderID int64) (int64, error) {
	now := time.Now().UTC()
	result := tx.Model(&models.Commission{}).
		Where("shop = ? AND shopify_order_id = ? AND status IN ?", shop, shopifyOrderID, enums.OpenCommissionStatuses).
		Updates(map[string]any{
			"status":      enums.CommissionStatusReversed,
			"reversed_at": now,
			"updated_at":  now,
		})
	return result.RowsAffected, result.Error
}

// UpdateStatus writes a new lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CommissionStatus) error {
	return r.DB(ctx).Model(&models.Commission{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// PromoteEligible moves pending commissions whose eligible date has passed to
// eligible, returning how many were promoted.
func (r *Repository) PromoteEligible(ctx context.Context, now time.Time) (int64, error) {
	result := r.DB(ctx).Model(&models.Commission{}).
		Where("status = ? AND eligible_date IS NOT NULL AND eligible_date <= ?", enums.CommissionStatusPending, now).
		Update("status", enums.CommissionStatusEligible)
	return result.RowsAffected, result.Error
}

// CountByAffiliate returns the affiliate's total and reversed commission
// counts, the inputs to the refund-rate fraud check.
func (r *Repository) CountByAffiliate(ctx context.Context, affiliateID uuid.UUID) (total, reversed int64, err error) {
	err = r.DB(ctx).Model(&models.Commission{}).
		Where("affiliate_id = ?", affiliateID).
		Count(&total).Error
	if err != nil {
		return 0, 0, err
	}
	err = r.DB(ctx).Model(&models.Commission{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, enums.CommissionStatusReversed).
		Count(&reversed).Error
	if err != nil {
		return 0, 0, err
	}
	return total, reversed, nil
}
