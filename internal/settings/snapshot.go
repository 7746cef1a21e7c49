package settings

import "context"

// Snapshot materializes every lifecycle policy knob once per job run, so a
// sweep is deterministic for its duration and does not re-read the store per
// item.
type Snapshot struct {
	TrialNoticeDays         int
	DowngradeToFreeOnCancel bool
	GracePeriodDays         int
	PaymentRetryIntervals   []int
	AutoCancelAfterGrace    bool
	RenewalReminderDays     int
	UsageWarningThreshold   float64
}

// Defaults returns the snapshot used when the settings store is empty or
// unreachable.
func Defaults() Snapshot {
	return Snapshot{
		TrialNoticeDays:         3,
		DowngradeToFreeOnCancel: true,
		GracePeriodDays:         7,
		PaymentRetryIntervals:   []int{1, 3, 7},
		AutoCancelAfterGrace:    true,
		RenewalReminderDays:     7,
		UsageWarningThreshold:   0.8,
	}
}

// Snapshot reads all engine settings in one pass, falling back per key.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	defaults := Defaults()
	if s == nil {
		return defaults
	}
	return Snapshot{
		TrialNoticeDays:         s.GetInt(ctx, KeyTrialNoticeDays, defaults.TrialNoticeDays),
		DowngradeToFreeOnCancel: s.GetBool(ctx, KeyDowngradeToFreeOnCancel, defaults.DowngradeToFreeOnCancel),
		GracePeriodDays:         s.GetInt(ctx, KeyGracePeriodDays, defaults.GracePeriodDays),
		PaymentRetryIntervals:   s.GetIntSlice(ctx, KeyPaymentRetryIntervals, defaults.PaymentRetryIntervals),
		AutoCancelAfterGrace:    s.GetBool(ctx, KeyAutoCancelAfterGrace, defaults.AutoCancelAfterGrace),
		RenewalReminderDays:     s.GetInt(ctx, KeyRenewalReminderDays, defaults.RenewalReminderDays),
		UsageWarningThreshold:   s.GetFloat(ctx, KeyUsageWarningThreshold, defaults.UsageWarningThreshold),
	}
}
