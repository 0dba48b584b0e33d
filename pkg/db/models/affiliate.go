package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// Affiliate is a partner who refers traffic and earns commissions.
type Affiliate struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Shop             string                `gorm:"column:shop;not null;index;uniqueIndex:idx_affiliates_shop_number"`
	Number           int64                 `gorm:"column:number;not null;uniqueIndex:idx_affiliates_shop_number"`
	Name             string                `gorm:"column:name;not null"`
	Email            string                `gorm:"column:email;not null;index"`
	Status           enums.AffiliateStatus `gorm:"column:status;type:text;not null;default:'active'"`
	OfferID          uuid.UUID             `gorm:"column:offer_id;type:uuid;not null"`
	CouponCode       *string               `gorm:"column:coupon_code;index"`
	PostbackURL      *string               `gorm:"column:postback_url"`
	PostbackParams   types.Params          `gorm:"column:postback_params;type:jsonb;serializer:json"`
	Offer            *Offer                `gorm:"foreignKey:OfferID"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// IsActive reports whether the affiliate may receive new attributions.
func (a *Affiliate) IsActive() bool {
	return a != nil && a.Status == enums.AffiliateStatusActive
}
