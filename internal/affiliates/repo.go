package affiliates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
)

// Repository persists affiliates and their offers.
type Repository struct {
	repo.Base
}

// NewRepository constructs an affiliate repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// CreateTx inserts an affiliate inside the supplied transaction.
func (r *Repository) CreateTx(tx *gorm.DB, affiliate *models.Affiliate) error {
	return tx.Create(affiliate).Error
}

// FindByID loads an affiliate with its offer. Returns nil when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.DB(ctx).Preload("Offer").Where("id = ?", id).First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindByNumber resolves an affiliate by its public referral number.
func (r *Repository) FindByNumber(ctx context.Context, shop string, number int64) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.DB(ctx).Preload("Offer").
		Where("shop = ? AND number = ?", shop, number).
		First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindByCoupon resolves an affiliate by its assigned discount code,
// case-insensitively.
func (r *Repository) FindByCoupon(ctx context.Context, shop, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.DB(ctx).Preload("Offer").
		Where("shop = ? AND LOWER(coupon_code) = LOWER(?)", shop, code).
		First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindByEmail resolves an affiliate by email, case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, shop, email string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.DB(ctx).
		Where("shop = ? AND LOWER(email) = LOWER(?)", shop, email).
		First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

// FindOfferByID loads a commission offer. Returns nil when absent.
func (r *Repository) FindOfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.DB(ctx).Where("id = ?", id).First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// MaxNumberForUpdate returns the highest affiliate number assigned for the
// shop, taking a row lock so concurrent assignments serialize. Zero when the
// shop has no affiliates yet.
func (r *Repository) MaxNumberForUpdate(tx *gorm.DB, shop string) (int64, error) {
	var affiliate models.Affiliate
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop = ?", shop).
		Order("number DESC").
		First(&affiliate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return affiliate.Number, nil
}

// CreateOfferTx writes a new offer inside the given transaction.
func (r *Repository) CreateOfferTx(tx *gorm.DB, offer *models.Offer) error {
	return tx.Create(offer).Error
}

// MaxOfferNumberForUpdate returns the highest offer number assigned for the
// shop under a row lock. Zero when the shop has no offers yet.
func (r *Repository) MaxOfferNumberForUpdate(tx *gorm.DB, shop string) (int64, error) {
	var offer models.Offer
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop = ?", shop).
		Order("number DESC").
		First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return offer.Number, nil
}
