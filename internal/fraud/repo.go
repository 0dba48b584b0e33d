package fraud

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
)

// Repository persists fraud flags.
type Repository struct {
	repo.Base
}

// NewRepository constructs a fraud flag repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create appends a fraud flag.
func (r *Repository) Create(ctx context.Context, flag *models.FraudFlag) error {
	return r.DB(ctx).Create(flag).Error
}

// ListUnresolvedByAffiliate returns the affiliate's open flags, newest first.
func (r *Repository) ListUnresolvedByAffiliate(ctx context.Context, affiliateID uuid.UUID) ([]models.FraudFlag, error) {
	var flags []models.FraudFlag
	err := r.DB(ctx).
		Where("affiliate_id = ? AND resolved = ?", affiliateID, false).
		Order("created_at DESC").
		Find(&flags).Error
	if err != nil {
		return nil, err
	}
	return flags, nil
}
