package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	"github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"go.uber.org/zap"
)

// sweepRenewalReminders notifies tenants whose subscription auto-renews within
// the reminder window. The dedupe key buckets by window length, so a
// subscription hears about a given renewal once per window even across
// overlapping hourly runs.
func (s *Scheduler) sweepRenewalReminders(ctx context.Context, snap settings.Snapshot, run *automation.Run) error {
	now := s.clock.Now()
	window := time.Duration(snap.RenewalReminderDays) * 24 * time.Hour
	horizon := now.Add(window)

	var subs []domain.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND auto_renew = ? AND ends_at IS NOT NULL AND ends_at > ? AND ends_at <= ?",
			domain.SubscriptionStatusActive, true, now, horizon).
		Limit(s.cfg.BatchSize).
		Find(&subs).Error
	if err != nil {
		return fmt.Errorf("select upcoming renewals: %w", err)
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		renewsAt := *sub.EndsAt
		daysLeft := int(renewsAt.Sub(now).Hours() / 24)

		// Belt and braces next to the unique dedupe key: skip without an
		// insert attempt when a reminder already went out this window.
		sent, err := s.events.HasEventSince(ctx, sub.ID, events.TypeRenewalReminder, now.Add(-window))
		if err != nil {
			run.AddFailure(sub.ID.String(), err)
			continue
		}
		if sent {
			run.AddSkipped(automation.BucketSkipped, sub.ID.String())
			continue
		}

		_, inserted := s.events.LogDeduped(ctx, events.Event{
			SubscriptionID: sub.ID,
			TenantID:       sub.TenantID,
			Type:           events.TypeRenewalReminder,
			Details: events.RenewalReminderDetails{
				RenewsAt: renewsAt,
				DaysLeft: daysLeft,
			},
			NotificationType: events.NotifyEmail,
			IsAutomated:      true,
			DedupeKey:        events.RenewalReminderKey(sub.ID.String(), renewsAt, window),
		})
		if !inserted {
			run.AddSkipped(automation.BucketSkipped, sub.ID.String())
			continue
		}
		run.AddSuccess(automation.BucketNotified, sub.ID.String())
		s.log.Info("renewal reminder sent",
			zap.String("subscription_id", sub.ID.String()),
			zap.Int("days_left", daysLeft),
		)
	}
	return nil
}
