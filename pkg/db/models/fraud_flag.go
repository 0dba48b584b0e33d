package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
)

// FraudFlag is an advisory marker raised by a fraud heuristic against a
// commission. Append-only; resolution is a manual reviewer action.
type FraudFlag struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CommissionID uuid.UUID           `gorm:"column:commission_id;type:uuid;not null;index"`
	AffiliateID  uuid.UUID           `gorm:"column:affiliate_id;type:uuid;not null;index"`
	FlagType     enums.FraudFlagType `gorm:"column:flag_type;type:text;not null"`
	Score        int                 `gorm:"column:score;not null"`
	Reason       string              `gorm:"column:reason;not null"`
	Resolved     bool                `gorm:"column:resolved;not null;default:false"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
