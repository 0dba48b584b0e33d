package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// Click records a single inbound referral click. Immutable once created
// except for URL-parameter enrichment when a duplicate click is merged.
type Click struct {
	ID            uuid.UUID    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Shop          string       `gorm:"column:shop;not null;index"`
	AffiliateID   uuid.UUID    `gorm:"column:affiliate_id;type:uuid;not null;index:idx_clicks_affiliate_created"`
	LinkID        *uuid.UUID   `gorm:"column:link_id;type:uuid"`
	LandingURL    string       `gorm:"column:landing_url;not null"`
	IPHash        string       `gorm:"column:ip_hash;not null;index:idx_clicks_fingerprint"`
	UserAgentHash string       `gorm:"column:user_agent_hash;not null;index:idx_clicks_fingerprint"`
	URLParams     types.Params `gorm:"column:url_params;type:jsonb;serializer:json"`
	CreatedAt     time.Time    `gorm:"column:created_at;autoCreateTime;index:idx_clicks_affiliate_created"`
}
