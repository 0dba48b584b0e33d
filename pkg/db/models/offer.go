package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

// Offer holds the commission rule set an affiliate is enrolled under.
type Offer struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Shop            string               `gorm:"column:shop;not null;index;uniqueIndex:idx_offers_shop_number"`
	Number          int64                `gorm:"column:number;not null;uniqueIndex:idx_offers_shop_number"`
	Name            string               `gorm:"column:name;not null"`
	CommissionType  enums.CommissionType `gorm:"column:commission_type;type:text;not null"`
	CommissionValue decimal.Decimal      `gorm:"column:commission_value;type:numeric(12,2);not null"`

	RebillPolicy enums.RebillPolicy `gorm:"column:rebill_policy;type:text;not null;default:'no'"`
	// Rebill overrides apply when credit_first_only uses a distinct rule for
	// renewals; nil means the initial rule applies to rebills too.
	RebillCommissionType    *enums.CommissionType `gorm:"column:rebill_commission_type;type:text"`
	RebillCommissionValue   *decimal.Decimal      `gorm:"column:rebill_commission_value;type:numeric(12,2)"`
	SubscriptionMaxPayments *int                  `gorm:"column:subscription_max_payments"`

	AttributionWindowDays int `gorm:"column:attribution_window_days;not null;default:90"`
	PayoutTermDays        int `gorm:"column:payout_term_days;not null;default:30"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// RebillRule returns the commission type/value to apply to a renewal.
func (o *Offer) RebillRule() (enums.CommissionType, decimal.Decimal) {
	if o.RebillCommissionType != nil && o.RebillCommissionValue != nil {
		return *o.RebillCommissionType, *o.RebillCommissionValue
	}
	return o.CommissionType, o.CommissionValue
}
