package attribution

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/refermint-backend/internal/repo"
	"github.com/angelmondragon/refermint-backend/pkg/db/models"
)

// Repository persists order attributions.
type Repository struct {
	repo.Base
}

// NewRepository constructs an attribution repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByOrderID loads the attribution for an external order id. Returns nil
// when the order has not been attributed.
func (r *Repository) FindByOrderID(ctx context.Context, shop string, shopifyOrderID int64) (*models.OrderAttribution, error) {
	var attribution models.OrderAttribution
	err := r.DB(ctx).
		Where("shop = ? AND shopify_order_id = ?", shop, shopifyOrderID).
		First(&attribution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attribution, nil
}

// UpsertTx writes the attribution keyed by (shop, shopify_order_id) inside the
// supplied transaction, overwriting the resolved affiliate, click, method and
// parameter snapshot on conflict.
func (r *Repository) UpsertTx(tx *gorm.DB, attribution *models.OrderAttribution) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop"}, {Name: "shopify_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"affiliate_id",
			"click_id",
			"attribution_type",
			"customer_email",
			"customer_name",
			"order_total",
			"order_currency",
			"landing_url_params",
			"updated_at",
		}),
	}).Create(attribution).Error
}
