// Package settings reads named platform configuration values with typed
// defaults. Every lookup degrades to the caller's default on a missing key,
// a parse failure, or an unreachable store, so policy knobs stay
// soft-configurable without ever failing a job.
package settings

import "time"

// Setting is one key-value row in the platform settings store.
type Setting struct {
	Key       string    `gorm:"primaryKey;type:text"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Setting) TableName() string { return "platform_settings" }

// Keys consumed by the lifecycle engine.
const (
	KeyTrialNoticeDays         = "trial_notice_days"
	KeyDowngradeToFreeOnCancel = "downgrade_to_free_on_cancel"
	KeyGracePeriodDays         = "grace_period_days"
	KeyPaymentRetryIntervals   = "payment_retry_intervals"
	KeyAutoCancelAfterGrace    = "auto_cancel_after_grace"
	KeyRenewalReminderDays     = "renewal_reminder_days"
	KeyUsageWarningThreshold   = "usage_warning_threshold"
)
