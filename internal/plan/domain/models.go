// Package domain contains persistence models for subscription plans.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Limit keys tracked by the usage monitor.
const (
	LimitMaxRooms       = "max_rooms"
	LimitMaxTeamMembers = "max_team_members"
)

// UnlimitedValue stands in for a missing plan limit.
const UnlimitedValue = 999999

// Plan defines what a tenant pays for and how much of each resource it may use.
type Plan struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Code       string            `gorm:"type:text;not null;uniqueIndex"`
	Name       string            `gorm:"type:text;not null"`
	PriceCents int64             `gorm:"not null;default:0"`
	Currency   string            `gorm:"type:text;not null;default:'EUR'"`
	Limits     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// LimitValue reads a numeric limit from the plan's limits map, treating a
// missing or malformed entry as unlimited.
func (p Plan) LimitValue(key string) int {
	raw, ok := p.Limits[key]
	if !ok {
		return UnlimitedValue
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return UnlimitedValue
	}
}
