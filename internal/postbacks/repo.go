package postbacks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

// Repository persists postback delivery logs.
type Repository struct {
	repo.Base
}

// NewRepository constructs a postback log repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create writes a new delivery log row.
func (r *Repository) Create(ctx context.Context, log *models.PostbackLog) error {
	return r.DB(ctx).Create(log).Error
}

// Update persists the outcome fields of an attempt.
func (r *Repository) Update(ctx context.Context, log *models.PostbackLog) error {
	return r.DB(ctx).Save(log).Error
}

// FindRetryable returns failed deliveries under the attempt ceiling whose
// last attempt is older than the retry gap.
func (r *Repository) FindRetryable(ctx context.Context, maxAttempts int, retryGap time.Duration, now time.Time, limit int) ([]models.PostbackLog, error) {
	var logs []models.PostbackLog
	cutoff := now.Add(-retryGap)
	err := r.DB(ctx).
		Where("status = ? AND attempts < ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?)",
			enums.PostbackStatusFailed, maxAttempts, cutoff).
		Order("last_attempt_at ASC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// MarkExhausted closes out failed deliveries that reached the attempt
// ceiling, returning how many were closed.
func (r *Repository) MarkExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	result := r.DB(ctx).Model(&models.PostbackLog{}).
		Where("status = ? AND attempts >= ?", enums.PostbackStatusFailed, maxAttempts).
		Update("status", enums.PostbackStatusExhausted)
	return result.RowsAffected, result.Error
}
