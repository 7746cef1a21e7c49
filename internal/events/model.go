package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionEvent is one immutable audit row. Created once, never updated.
type SubscriptionEvent struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	SubscriptionID   snowflake.ID      `gorm:"not null;index:ix_subscription_events_sub_type,priority:1"`
	TenantID         snowflake.ID      `gorm:"not null"`
	EventType        string            `gorm:"type:text;not null;index:ix_subscription_events_sub_type,priority:2"`
	PreviousStatus   *string           `gorm:"type:text"`
	NewStatus        *string           `gorm:"type:text"`
	Details          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	NotificationType string            `gorm:"type:text;not null;default:'none'"`
	IsAutomated      bool              `gorm:"not null;default:true"`
	TriggeredBy      *string           `gorm:"type:text"`
	DedupeKey        *string           `gorm:"type:text;uniqueIndex:ux_subscription_events_dedupe"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_subscription_events_sub_type,priority:3"`
}

// TableName sets the database table name.
func (SubscriptionEvent) TableName() string { return "subscription_events" }
