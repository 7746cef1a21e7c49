// Package domain contains persistence models and contracts for the
// subscription lifecycle engine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus tracks where a subscription sits in its lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is one tenant's plan membership. Rows are never hard-deleted;
// terminal statuses keep the history queryable.
type Subscription struct {
	ID                snowflake.ID       `gorm:"primaryKey"`
	TenantID          snowflake.ID       `gorm:"not null;index"`
	PlanID            snowflake.ID       `gorm:"not null"`
	Status            SubscriptionStatus `gorm:"type:text;not null;default:'trial'"`
	EndsAt            *time.Time         `gorm:"index"`
	AutoRenew         bool               `gorm:"not null;default:true"`
	CancelAtPeriodEnd bool               `gorm:"not null;default:false"`
	CreatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// GracePeriodStatus tracks a payment-failure grace window.
type GracePeriodStatus string

const (
	GracePeriodStatusActive       GracePeriodStatus = "active"
	GracePeriodStatusExpired      GracePeriodStatus = "expired"
	GracePeriodStatusResolvedPaid GracePeriodStatus = "resolved_paid"
)

// Resolution methods recorded when a grace period leaves the active state.
const (
	ResolutionExpired       = "expired"
	ResolutionPaymentRetry  = "payment_retry"
	ResolutionManualPayment = "manual_payment"
	ResolutionWebhook       = "webhook"
)

// RetryAttempt is one entry in a grace period's retry history.
type RetryAttempt struct {
	Attempt     int       `json:"attempt"`
	AttemptedAt time.Time `json:"attempted_at"`
	Result      string    `json:"result"`
}

// GracePeriod is the bounded window after a failed payment during which the
// subscription stays active while retries are scheduled. Callers must ensure
// at most one active grace period exists per subscription.
type GracePeriod struct {
	ID                    snowflake.ID      `gorm:"primaryKey"`
	SubscriptionID        snowflake.ID      `gorm:"not null;index"`
	TenantID              snowflake.ID      `gorm:"not null"`
	Status                GracePeriodStatus `gorm:"type:text;not null;default:'active'"`
	EndsAt                time.Time         `gorm:"not null;index"`
	OriginalFailureReason string            `gorm:"type:text;not null;default:''"`
	RetryCount            int               `gorm:"not null;default:0"`
	MaxRetries            int               `gorm:"not null;default:0"`
	NextRetryAt           *time.Time        `gorm:"index"`
	RetryHistory          datatypes.JSON    `gorm:"type:jsonb;not null;default:'[]'"`
	ResolvedAt            *time.Time        ``
	ResolutionMethod      *string           `gorm:"type:text"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (GracePeriod) TableName() string { return "grace_periods" }
