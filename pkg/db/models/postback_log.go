package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/refermint-backend/pkg/enums"
	"github.com/angelmondragon/refermint-backend/pkg/types"
)

// PostbackLog is the durable audit record of one outbound affiliate postback.
// A row is written before the network call resolves and updated with the
// outcome afterward.
type PostbackLog struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AffiliateID   uuid.UUID            `gorm:"column:affiliate_id;type:uuid;not null;index"`
	CommissionID  uuid.UUID            `gorm:"column:commission_id;type:uuid;not null;index"`
	URL           string               `gorm:"column:url;not null"`
	Params        types.Params         `gorm:"column:params;type:jsonb;serializer:json"`
	Status        enums.PostbackStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	ResponseCode  *int                 `gorm:"column:response_code"`
	ResponseBody  *string              `gorm:"column:response_body"`
	ErrorMessage  *string              `gorm:"column:error_message"`
	Attempts      int                  `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt *time.Time           `gorm:"column:last_attempt_at"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
