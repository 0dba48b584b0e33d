package clicks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// Repository persists and queries referral clicks.
type Repository struct {
	repo.Base
}

// NewRepository constructs a click repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a new click.
func (r *Repository) Create(ctx context.Context, click *models.Click) error {
	return r.DB(ctx).Create(click).Error
}

// FindByID loads a click by primary key. Returns nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Click, error) {
	var click models.Click
	err := r.DB(ctx).Where("id = ?", id).First(&click).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &click, nil
}

// FindRecentByFingerprint returns the newest click by the affiliate with the
// same hashed IP and user agent recorded at or after since. Returns nil when
// no such click exists.
func (r *Repository) FindRecentByFingerprint(ctx context.Context, affiliateID uuid.UUID, ipHash, uaHash string, since time.Time) (*models.Click, error) {
	var click models.Click
	err := r.DB(ctx).
		Where("affiliate_id = ? AND ip_hash = ? AND user_agent_hash = ? AND created_at >= ?", affiliateID, ipHash, uaHash, since).
		Order("created_at DESC").
		First(&click).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &click, nil
}

// UpdateParams replaces the stored URL parameters of a click.
func (r *Repository) UpdateParams(ctx context.Context, id uuid.UUID, params types.Params) error {
	return r.DB(ctx).
		Model(&models.Click{}).
		Where("id = ?", id).
		Update("url_params", params).Error
}

// FindLatestByAffiliateBetween returns the affiliate's most recent click in
// the [from, to] interval, or nil.
func (r *Repository) FindLatestByAffiliateBetween(ctx context.Context, affiliateID uuid.UUID, from, to time.Time) (*models.Click, error) {
	var click models.Click
	err := r.DB(ctx).
		Where("affiliate_id = ? AND created_at >= ? AND created_at <= ?", affiliateID, from, to).
		Order("created_at DESC").
		First(&click).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &click, nil
}

// FindByFingerprint returns all shop clicks matching the hashed IP and user
// agent recorded at or after since, newest first.
func (r *Repository) FindByFingerprint(ctx context.Context, shop, ipHash, uaHash string, since time.Time) ([]models.Click, error) {
	var found []models.Click
	err := r.DB(ctx).
		Where("shop = ? AND ip_hash = ? AND user_agent_hash = ? AND created_at >= ?", shop, ipHash, uaHash, since).
		Order("created_at DESC").
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

// CountByAffiliateSince counts the affiliate's clicks recorded at or after since.
func (r *Repository) CountByAffiliateSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Click{}).
		Where("affiliate_id = ? AND created_at >= ?", affiliateID, since).
		Count(&count).Error
	return count, err
}

// CountByAffiliateIPSince counts the affiliate's clicks from the hashed IP
// recorded at or after since.
func (r *Repository) CountByAffiliateIPSince(ctx context.Context, affiliateID uuid.UUID, ipHash string, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Click{}).
		Where("affiliate_id = ? AND ip_hash = ? AND created_at >= ?", affiliateID, ipHash, since).
		Count(&count).Error
	return count, err
}

// DeleteBefore removes clicks older than cutoff and reports how many went.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Click{})
	return result.RowsAffected, result.Error
}
