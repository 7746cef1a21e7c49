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

// sweepTrials runs two independent passes: notify trials nearing expiry, then
// flip trials past expiry. Both passes select on current state, so reruns at
// any cadence are idempotent.
func (s *Scheduler) sweepTrials(ctx context.Context, snap settings.Snapshot, run *automation.Run) error {
	now := s.clock.Now()
	if err := s.notifyEndingTrials(ctx, snap, now, run); err != nil {
		return err
	}
	return s.expireTrials(ctx, snap, now, run)
}

func (s *Scheduler) notifyEndingTrials(ctx context.Context, snap settings.Snapshot, now time.Time, run *automation.Run) error {
	noticeUntil := now.AddDate(0, 0, snap.TrialNoticeDays)

	var trials []domain.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND ends_at >= ? AND ends_at <= ?", domain.SubscriptionStatusTrial, now, noticeUntil).
		Limit(s.cfg.BatchSize).
		Find(&trials).Error
	if err != nil {
		return fmt.Errorf("select ending trials: %w", err)
	}

	for _, sub := range trials {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		daysLeft := int(sub.EndsAt.Sub(now).Hours() / 24)

		// The dedupe key has no time bucket: one notice per trial, ever.
		// The unique index makes this safe under overlapping runs.
		_, inserted := s.events.LogDeduped(ctx, events.Event{
			SubscriptionID:   sub.ID,
			TenantID:         sub.TenantID,
			Type:             events.TypeTrialEndingSoon,
			Details:          events.TrialEndingSoonDetails{EndsAt: *sub.EndsAt, DaysLeft: daysLeft},
			NotificationType: events.NotifyBoth,
			IsAutomated:      true,
			DedupeKey:        events.TrialNoticeKey(sub.ID.String()),
		})
		if inserted {
			run.AddSuccess(automation.BucketNotified, sub.ID.String())
		}
	}
	return nil
}

func (s *Scheduler) expireTrials(ctx context.Context, snap settings.Snapshot, now time.Time, run *automation.Run) error {
	var trials []domain.Subscription
	err := s.db.WithContext(ctx).
		Where("status = ? AND ends_at < ?", domain.SubscriptionStatusTrial, now).
		Limit(s.cfg.BatchSize).
		Find(&trials).Error
	if err != nil {
		return fmt.Errorf("select expired trials: %w", err)
	}

	newStatus := domain.SubscriptionStatusExpired
	if snap.DowngradeToFreeOnCancel {
		newStatus = domain.SubscriptionStatusCancelled
	}

	for _, sub := range trials {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result := s.db.WithContext(ctx).
			Model(&domain.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, domain.SubscriptionStatusTrial).
			Updates(map[string]any{
				"status":     newStatus,
				"updated_at": now,
			})
		if result.Error != nil {
			run.AddFailure(sub.ID.String(), result.Error)
			s.log.Warn("trial expiry update failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(result.Error),
			)
			continue
		}
		if result.RowsAffected == 0 {
			// Another run flipped it between select and update.
			continue
		}

		s.events.Log(ctx, events.Event{
			SubscriptionID: sub.ID,
			TenantID:       sub.TenantID,
			Type:           events.TypeTrialExpired,
			PreviousStatus: string(domain.SubscriptionStatusTrial),
			NewStatus:      string(newStatus),
			Details: events.TrialExpiredDetails{
				EndedAt:          *sub.EndsAt,
				DowngradedToFree: snap.DowngradeToFreeOnCancel,
			},
			NotificationType: events.NotifyBoth,
			IsAutomated:      true,
		})
		run.AddSuccess(automation.BucketExpired, sub.ID.String())
	}
	return nil
}
