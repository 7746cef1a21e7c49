package scheduler

import (
	"context"
	"fmt"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	"github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"go.uber.org/zap"
)

// sweepPendingCancellations finalizes subscriptions that were cancelled at
// period end and whose period has now lapsed.
func (s *Scheduler) sweepPendingCancellations(ctx context.Context, _ settings.Snapshot, run *automation.Run) error {
	now := s.clock.Now()

	var subs []domain.Subscription
	err := s.db.WithContext(ctx).
		Where("status IN ? AND cancel_at_period_end = ? AND ends_at IS NOT NULL AND ends_at < ?",
			[]domain.SubscriptionStatus{domain.SubscriptionStatusTrial, domain.SubscriptionStatusActive}, true, now).
		Limit(s.cfg.BatchSize).
		Find(&subs).Error
	if err != nil {
		return fmt.Errorf("select pending cancellations: %w", err)
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result := s.db.WithContext(ctx).
			Model(&domain.Subscription{}).
			Where("id = ? AND status = ? AND cancel_at_period_end = ?", sub.ID, sub.Status, true).
			Updates(map[string]any{
				"status":     domain.SubscriptionStatusCancelled,
				"auto_renew": false,
				"updated_at": now,
			})
		if result.Error != nil {
			run.AddFailure(sub.ID.String(), result.Error)
			s.log.Warn("pending cancellation failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(result.Error),
			)
			continue
		}
		if result.RowsAffected == 0 {
			run.AddSkipped(automation.BucketSkipped, sub.ID.String())
			continue
		}

		endsAt := sub.EndsAt
		s.events.Log(ctx, events.Event{
			SubscriptionID: sub.ID,
			TenantID:       sub.TenantID,
			Type:           events.TypeSubscriptionCancelled,
			PreviousStatus: string(sub.Status),
			NewStatus:      string(domain.SubscriptionStatusCancelled),
			Details: events.CancellationDetails{
				Immediate:   false,
				Reason:      "period ended after scheduled cancellation",
				EffectiveAt: endsAt,
			},
			NotificationType: events.NotifyEmail,
			IsAutomated:      true,
		})
		run.AddSuccess(automation.BucketCancelled, sub.ID.String())
		s.log.Info("scheduled cancellation finalized",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("tenant_id", sub.TenantID.String()),
		)
	}
	return nil
}
