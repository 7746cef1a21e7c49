// Package usagelimit compares per-tenant resource counts against plan limits
// and raises warning and limit events, deduplicated over a rolling 24h window.
package usagelimit

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ThresholdType classifies how far usage has crossed a limit.
type ThresholdType string

const (
	ThresholdWarning ThresholdType = "warning"
	ThresholdLimit   ThresholdType = "limit"
)

// Actions recorded for downstream enforcement. This component only records
// intent; no feature is gated here.
const (
	ActionNotificationSent = "notification_sent"
	ActionFeatureDisabled  = "feature_disabled"
)

// Limit types tracked for accommodation tenants.
const (
	LimitTypeRooms       = "rooms"
	LimitTypeTeamMembers = "team_members"
)

// UsageLimitEvent is one raised threshold crossing.
type UsageLimitEvent struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	TenantID       snowflake.ID  `gorm:"not null;index:ix_usage_limit_events_tenant,priority:1"`
	SubscriptionID snowflake.ID  `gorm:"not null"`
	LimitType      string        `gorm:"type:text;not null;index:ix_usage_limit_events_tenant,priority:2"`
	CurrentUsage   int           `gorm:"not null"`
	LimitValue     int           `gorm:"not null"`
	UsagePercent   float64       `gorm:"not null"`
	ThresholdType  ThresholdType `gorm:"type:text;not null;index:ix_usage_limit_events_tenant,priority:3"`
	ActionTaken    string        `gorm:"type:text;not null"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_usage_limit_events_tenant,priority:4"`
}

// TableName sets the database table name.
func (UsageLimitEvent) TableName() string { return "usage_limit_events" }
