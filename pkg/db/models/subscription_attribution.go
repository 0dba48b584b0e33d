package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionAttribution ties a subscription contract back to the affiliate
// credited on its initial order so renewals can be commissioned. One row per
// (original_order_id, selling_plan_id).
type SubscriptionAttribution struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Shop            string     `gorm:"column:shop;not null;index"`
	OriginalOrderID int64      `gorm:"column:original_order_id;not null;uniqueIndex:idx_subscription_attributions_origin"`
	SellingPlanID   string     `gorm:"column:selling_plan_id;not null;uniqueIndex:idx_subscription_attributions_origin"`
	AffiliateID     uuid.UUID  `gorm:"column:affiliate_id;type:uuid;not null;index:idx_subscription_attributions_affiliate_plan"`
	IntervalMonths  int        `gorm:"column:interval_months;not null;default:1"`
	MaxPayments     *int       `gorm:"column:max_payments"`
	PaymentsMade    int        `gorm:"column:payments_made;not null;default:0"`
	Active          bool       `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
