package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// OrderAttribution links an external order to the affiliate credited for it.
// One row per shopify_order_id; affiliate and click may be overwritten when
// the resolver re-attributes the order.
type OrderAttribution struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Shop               string                `gorm:"column:shop;not null;uniqueIndex:idx_order_attributions_order"`
	ShopifyOrderID     int64                 `gorm:"column:shopify_order_id;not null;uniqueIndex:idx_order_attributions_order"`
	ShopifyOrderNumber string                `gorm:"column:shopify_order_number;not null"`
	AffiliateID        *uuid.UUID            `gorm:"column:affiliate_id;type:uuid;index"`
	ClickID            *uuid.UUID            `gorm:"column:click_id;type:uuid"`
	AttributionType    enums.AttributionType `gorm:"column:attribution_type;type:text;not null"`
	CustomerEmail      *string               `gorm:"column:customer_email"`
	CustomerName       *string               `gorm:"column:customer_name"`
	OrderTotal         decimal.Decimal       `gorm:"column:order_total;type:numeric(12,2);not null"`
	OrderCurrency      string                `gorm:"column:order_currency;not null"`
	LandingURLParams   types.Params          `gorm:"column:landing_url_params;type:jsonb;serializer:json"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
