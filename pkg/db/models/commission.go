package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

// Commission is money owed to an affiliate for an attributed order. At most
// one non-reversed commission may exist per (shop, shopify_order_id); the
// partial unique index idx_commissions_order_open enforces it.
type Commission struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Shop               string                 `gorm:"column:shop;not null;index:idx_commissions_shop_order"`
	AffiliateID        uuid.UUID              `gorm:"column:affiliate_id;type:uuid;not null;index"`
	OrderAttributionID uuid.UUID              `gorm:"column:order_attribution_id;type:uuid;not null"`
	ShopifyOrderID     int64                  `gorm:"column:shopify_order_id;not null;index:idx_commissions_shop_order"`
	Amount             decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency           string                 `gorm:"column:currency;not null"`
	Status             enums.CommissionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	EligibleDate       *time.Time             `gorm:"column:eligible_date"`
	// RuleSnapshot freezes the offer rule applied at creation time so later
	// offer edits never change historical commissions.
	RuleSnapshot json.RawMessage `gorm:"column:rule_snapshot;type:jsonb"`
	ReversedAt   *time.Time      `gorm:"column:reversed_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
