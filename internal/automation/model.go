// Package automation wraps each batch-job execution in a recorded run: a
// historical ledger row carrying aggregate counts and per-category id buckets.
package automation

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// RunStatus is the overall outcome of a batch-job execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

// Trigger sources for a run.
const (
	TriggeredByScheduled = "scheduled"
	TriggeredByManual    = "manual"
	TriggeredByWebhook   = "webhook"
)

// Result bucket names shared across jobs.
const (
	BucketNotified  = "notified"
	BucketExpired   = "expired"
	BucketCancelled = "cancelled"
	BucketRetried   = "retried"
	BucketWarned    = "warned"
	BucketLimited   = "limited"
	BucketSkipped   = "skipped"
	BucketErrors    = "errors"
)

// AutomationRun is the persisted ledger row. Created at job start, updated
// exactly once at completion, never mutated afterward.
type AutomationRun struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	JobName          string            `gorm:"type:text;not null;index:ix_automation_runs_job_started,priority:1"`
	Status           RunStatus         `gorm:"type:text;not null;default:'running'"`
	TriggeredBy      string            `gorm:"type:text;not null;default:'scheduled'"`
	TriggeredByAdmin *string           `gorm:"type:text"`
	ItemsProcessed   int               `gorm:"not null;default:0"`
	ItemsSucceeded   int               `gorm:"not null;default:0"`
	ItemsFailed      int               `gorm:"not null;default:0"`
	Results          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	ErrorMessage     *string           `gorm:"type:text"`
	StartedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_automation_runs_job_started,priority:2"`
	CompletedAt      *time.Time        ``
}

// TableName sets the database table name.
func (AutomationRun) TableName() string { return "automation_runs" }
