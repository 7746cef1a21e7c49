// Package events records every subscription state change or automated action
// as an immutable, append-only log row. The rows double as the notification
// dedup store: dedupe keys are enforced with a unique index so overlapping
// sweeps cannot double-send.
package events

import (
	"fmt"
	"time"
)

// Subscription event types.
const (
	TypeTrialEndingSoon       = "trial_ending_soon"
	TypeTrialExpired          = "trial_expired"
	TypeGracePeriodStarted    = "grace_period_started"
	TypePaymentRetry          = "payment_retry"
	TypeGracePeriodEnded      = "grace_period_ended"
	TypePaymentSucceeded      = "payment_succeeded"
	TypeRenewalReminder       = "renewal_reminder"
	TypeManuallyExtended      = "manually_extended"
	TypePlanUpgraded          = "plan_upgraded"
	TypePlanDowngraded        = "plan_downgraded"
	TypeSubscriptionCancelled = "subscription_cancelled"
)

// Notification hints consumed by the out-of-process notifier.
const (
	NotifyEmail = "email"
	NotifyInApp = "in_app"
	NotifyBoth  = "both"
	NotifyNone  = "none"
)

// Details is the typed payload stored in an event's details column. Each event
// type carries its own struct instead of a free-form map.
type Details interface {
	ToMap() map[string]any
}

// TrialEndingSoonDetails announces an upcoming trial expiry.
type TrialEndingSoonDetails struct {
	EndsAt   time.Time
	DaysLeft int
}

func (d TrialEndingSoonDetails) ToMap() map[string]any {
	return map[string]any{
		"ends_at":   d.EndsAt.Format(time.RFC3339),
		"days_left": d.DaysLeft,
	}
}

// TrialExpiredDetails records the post-trial downgrade decision.
type TrialExpiredDetails struct {
	EndedAt          time.Time
	DowngradedToFree bool
}

func (d TrialExpiredDetails) ToMap() map[string]any {
	return map[string]any{
		"ended_at":           d.EndedAt.Format(time.RFC3339),
		"downgraded_to_free": d.DowngradedToFree,
	}
}

// GracePeriodStartedDetails records the opening of a payment grace window.
type GracePeriodStartedDetails struct {
	GracePeriodID string
	GraceDays     int
	EndsAt        time.Time
	FailureReason string
}

func (d GracePeriodStartedDetails) ToMap() map[string]any {
	return map[string]any{
		"grace_period_id": d.GracePeriodID,
		"grace_days":      d.GraceDays,
		"ends_at":         d.EndsAt.Format(time.RFC3339),
		"failure_reason":  d.FailureReason,
	}
}

// PaymentRetryDetails records one scheduled retry attempt.
type PaymentRetryDetails struct {
	GracePeriodID string
	Attempt       int
	MaxRetries    int
	Result        string
	NextRetryAt   *time.Time
}

func (d PaymentRetryDetails) ToMap() map[string]any {
	m := map[string]any{
		"grace_period_id": d.GracePeriodID,
		"attempt":         d.Attempt,
		"max_retries":     d.MaxRetries,
		"result":          d.Result,
	}
	if d.NextRetryAt != nil {
		m["next_retry_at"] = d.NextRetryAt.Format(time.RFC3339)
	}
	return m
}

// GracePeriodEndedDetails records grace expiry and the action taken.
type GracePeriodEndedDetails struct {
	GracePeriodID         string
	SubscriptionCancelled bool
}

func (d GracePeriodEndedDetails) ToMap() map[string]any {
	return map[string]any{
		"grace_period_id":        d.GracePeriodID,
		"subscription_cancelled": d.SubscriptionCancelled,
	}
}

// PaymentSucceededDetails records a resolved grace period.
type PaymentSucceededDetails struct {
	GracePeriodID    string
	ResolutionMethod string
}

func (d PaymentSucceededDetails) ToMap() map[string]any {
	return map[string]any{
		"grace_period_id":   d.GracePeriodID,
		"resolution_method": d.ResolutionMethod,
	}
}

// RenewalReminderDetails announces an upcoming auto-renewal.
type RenewalReminderDetails struct {
	RenewsAt time.Time
	DaysLeft int
}

func (d RenewalReminderDetails) ToMap() map[string]any {
	return map[string]any{
		"renews_at": d.RenewsAt.Format(time.RFC3339),
		"days_left": d.DaysLeft,
	}
}

// TrialExtendedDetails records a manual trial extension.
type TrialExtendedDetails struct {
	ExtraDays int
	NewEndsAt time.Time
}

func (d TrialExtendedDetails) ToMap() map[string]any {
	return map[string]any{
		"extra_days":  d.ExtraDays,
		"new_ends_at": d.NewEndsAt.Format(time.RFC3339),
	}
}

// PlanChangedDetails records a manual plan change.
type PlanChangedDetails struct {
	FromPlan string
	ToPlan   string
}

func (d PlanChangedDetails) ToMap() map[string]any {
	return map[string]any{
		"from_plan": d.FromPlan,
		"to_plan":   d.ToPlan,
	}
}

// CancellationDetails records a manual cancellation.
type CancellationDetails struct {
	Immediate   bool
	Reason      string
	EffectiveAt *time.Time
}

func (d CancellationDetails) ToMap() map[string]any {
	m := map[string]any{
		"immediate": d.Immediate,
		"reason":    d.Reason,
	}
	if d.EffectiveAt != nil {
		m["effective_at"] = d.EffectiveAt.Format(time.RFC3339)
	}
	return m
}

// TrialNoticeKey builds the unbounded dedupe key for a trial-ending notice:
// once sent for a subscription's current trial, never again.
func TrialNoticeKey(subscriptionID string) string {
	return fmt.Sprintf("%s:%s", TypeTrialEndingSoon, subscriptionID)
}

// RenewalReminderKey buckets renewal reminders into windows of the given
// length so a reminder repeats only once the window rolls over.
func RenewalReminderKey(subscriptionID string, at time.Time, window time.Duration) string {
	bucket := at.UTC().Unix() / int64(window.Seconds())
	return fmt.Sprintf("%s:%s:%d", TypeRenewalReminder, subscriptionID, bucket)
}
