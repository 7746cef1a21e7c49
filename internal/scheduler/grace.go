package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/gateway"
	"github.com/Wollie333/vilo-sub003/internal/observability/tracing"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	"github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// sweepGracePeriods runs the expiry pass strictly before the retry pass. A
// period whose ends_at and next_retry_at are both due must expire, not gain
// another retry: the retry pass re-selects on status, so rows flipped to
// expired no longer match.
func (s *Scheduler) sweepGracePeriods(ctx context.Context, snap settings.Snapshot, run *automation.Run) error {
	now := s.clock.Now()
	if err := s.expireGracePeriods(ctx, snap, now, run); err != nil {
		return err
	}
	return s.retryGracePeriods(ctx, snap, now, run)
}

func (s *Scheduler) expireGracePeriods(ctx context.Context, snap settings.Snapshot, now time.Time, run *automation.Run) error {
	var periods []domain.GracePeriod
	err := s.db.WithContext(ctx).
		Where("status = ? AND ends_at < ?", domain.GracePeriodStatusActive, now).
		Limit(s.cfg.BatchSize).
		Find(&periods).Error
	if err != nil {
		return fmt.Errorf("select overdue grace periods: %w", err)
	}

	for _, gp := range periods {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		unlock := s.locks.Lock("grace:" + gp.SubscriptionID.String())

		result := s.db.WithContext(ctx).
			Model(&domain.GracePeriod{}).
			Where("id = ? AND status = ?", gp.ID, domain.GracePeriodStatusActive).
			Updates(map[string]any{
				"status":            domain.GracePeriodStatusExpired,
				"resolution_method": domain.ResolutionExpired,
				"resolved_at":       now,
				"next_retry_at":     nil,
				"updated_at":        now,
			})
		if result.Error != nil {
			unlock()
			run.AddFailure(gp.ID.String(), result.Error)
			s.log.Warn("grace period expiry failed",
				zap.String("grace_period_id", gp.ID.String()),
				zap.Error(result.Error),
			)
			continue
		}
		if result.RowsAffected == 0 {
			unlock()
			continue
		}

		cancelled := false
		if snap.AutoCancelAfterGrace {
			err := s.db.WithContext(ctx).
				Model(&domain.Subscription{}).
				Where("id = ? AND status = ?", gp.SubscriptionID, domain.SubscriptionStatusActive).
				Updates(map[string]any{
					"status":     domain.SubscriptionStatusCancelled,
					"auto_renew": false,
					"updated_at": now,
				}).Error
			if err != nil {
				run.AddFailure(gp.ID.String(), err)
				s.log.Warn("auto-cancel after grace failed",
					zap.String("grace_period_id", gp.ID.String()),
					zap.String("subscription_id", gp.SubscriptionID.String()),
					zap.Error(err),
				)
				unlock()
				continue
			}
			cancelled = true
		}
		unlock()

		event := events.Event{
			SubscriptionID: gp.SubscriptionID,
			TenantID:       gp.TenantID,
			Type:           events.TypeGracePeriodEnded,
			Details: events.GracePeriodEndedDetails{
				GracePeriodID:         gp.ID.String(),
				SubscriptionCancelled: cancelled,
			},
			NotificationType: events.NotifyBoth,
			IsAutomated:      true,
		}
		if cancelled {
			event.PreviousStatus = string(domain.SubscriptionStatusActive)
			event.NewStatus = string(domain.SubscriptionStatusCancelled)
		}
		s.events.Log(ctx, event)

		bucket := automation.BucketExpired
		if cancelled {
			bucket = automation.BucketCancelled
		}
		run.AddSuccess(bucket, gp.ID.String())
		s.log.Info("grace period expired",
			zap.String("grace_period_id", gp.ID.String()),
			zap.String("subscription_id", gp.SubscriptionID.String()),
			zap.Bool("subscription_cancelled", cancelled),
		)
	}
	return nil
}

func (s *Scheduler) retryGracePeriods(ctx context.Context, snap settings.Snapshot, now time.Time, run *automation.Run) error {
	var periods []domain.GracePeriod
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.GracePeriodStatusActive, now).
		Limit(s.cfg.BatchSize).
		Find(&periods).Error
	if err != nil {
		return fmt.Errorf("select due retries: %w", err)
	}

	for _, gp := range periods {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.retryOne(ctx, snap, now, gp, run); err != nil {
			run.AddFailure(gp.ID.String(), err)
			s.log.Warn("payment retry failed",
				zap.String("grace_period_id", gp.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) retryOne(ctx context.Context, snap settings.Snapshot, now time.Time, gp domain.GracePeriod, run *automation.Run) error {
	unlock := s.locks.Lock("grace:" + gp.SubscriptionID.String())
	defer unlock()

	attempt := gp.RetryCount + 1

	ctx, span := otel.Tracer("vilo/scheduler").Start(ctx, "payment retry")
	span.SetAttributes(tracing.SafeAttributes(append(
		tracing.SubscriptionAttributes(gp.SubscriptionID.String(), gp.TenantID.String()),
		attribute.String("vilo.failure_reason", gp.OriginalFailureReason),
		attribute.Int("vilo.attempt", attempt),
	)...)...)
	defer span.End()

	outcome, err := s.charger.Charge(ctx, gateway.ChargeRequest{
		SubscriptionID: gp.SubscriptionID,
		TenantID:       gp.TenantID,
		Attempt:        attempt,
	})
	if err != nil {
		// Gateway unreachable still consumes the attempt; the recorded
		// outcome keeps the history honest.
		outcome = gateway.OutcomeFailed
		s.log.Warn("charge attempt errored",
			zap.String("grace_period_id", gp.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	history, err := appendRetryHistory(gp.RetryHistory, domain.RetryAttempt{
		Attempt:     attempt,
		AttemptedAt: now,
		Result:      string(outcome),
	})
	if err != nil {
		return err
	}

	var nextRetryAt *time.Time
	if attempt < gp.MaxRetries {
		offset := retryOffsetDays(snap.PaymentRetryIntervals, attempt)
		next := now.AddDate(0, 0, offset)
		nextRetryAt = &next
	}

	result := s.db.WithContext(ctx).
		Model(&domain.GracePeriod{}).
		Where("id = ? AND status = ? AND retry_count = ?", gp.ID, domain.GracePeriodStatusActive, gp.RetryCount).
		Updates(map[string]any{
			"retry_count":   attempt,
			"retry_history": datatypes.JSON(history),
			"next_retry_at": nextRetryAt,
			"updated_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("persist retry attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Expired or resolved between select and update.
		return nil
	}

	s.events.Log(ctx, events.Event{
		SubscriptionID: gp.SubscriptionID,
		TenantID:       gp.TenantID,
		Type:           events.TypePaymentRetry,
		Details: events.PaymentRetryDetails{
			GracePeriodID: gp.ID.String(),
			Attempt:       attempt,
			MaxRetries:    gp.MaxRetries,
			Result:        string(outcome),
			NextRetryAt:   nextRetryAt,
		},
		NotificationType: events.NotifyNone,
		IsAutomated:      true,
	})
	run.AddSuccess(automation.BucketRetried, gp.ID.String())

	if outcome == gateway.OutcomeSucceeded {
		if err := s.subSvc.ResolveGracePeriod(ctx, gp.ID, domain.ResolutionPaymentRetry); err != nil {
			return fmt.Errorf("resolve after successful retry: %w", err)
		}
	}
	return nil
}

func appendRetryHistory(raw []byte, entry domain.RetryAttempt) ([]byte, error) {
	history := []domain.RetryAttempt{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("decode retry history: %w", err)
		}
	}
	history = append(history, entry)
	encoded, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode retry history: %w", err)
	}
	return encoded, nil
}

func retryOffsetDays(intervals []int, attempt int) int {
	if len(intervals) == 0 {
		return 1
	}
	if attempt >= len(intervals) {
		return intervals[len(intervals)-1]
	}
	return intervals[attempt]
}
