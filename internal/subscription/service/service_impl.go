package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wollie333/vilo-sub003/internal/clock"
	"github.com/Wollie333/vilo-sub003/internal/events"
	plandomain "github.com/Wollie333/vilo-sub003/internal/plan/domain"
	"github.com/Wollie333/vilo-sub003/internal/scheduler/guard"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	"github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Settings *settings.Service
	Events   *events.Logger
}

// Service implements the manual admin actions and the externally triggered
// grace-period entry points. Every mutation goes through the same event
// logging contract the scheduled sweeps use.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	settings *settings.Service
	events   *events.Logger
	locks    *guard.KeyedMutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		settings: p.Settings,
		events:   p.Events,
		locks:    guard.NewKeyedMutex(),
	}
}

func (s *Service) ExtendTrial(ctx context.Context, subscriptionID snowflake.ID, adminID string, extraDays int) error {
	if extraDays <= 0 {
		return domain.ErrInvalidExtension
	}

	sub, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.SubscriptionStatusTrial {
		return fmt.Errorf("%w: cannot extend trial on %s subscription", domain.ErrInvalidState, sub.Status)
	}

	now := s.clock.Now()
	base := now
	if sub.EndsAt != nil && sub.EndsAt.After(now) {
		base = *sub.EndsAt
	}
	newEndsAt := base.AddDate(0, 0, extraDays)

	err = s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, domain.SubscriptionStatusTrial).
		Updates(map[string]any{"ends_at": newEndsAt, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("extend trial: %w", err)
	}

	s.events.Log(ctx, events.Event{
		SubscriptionID:   sub.ID,
		TenantID:         sub.TenantID,
		Type:             events.TypeManuallyExtended,
		PreviousStatus:   string(sub.Status),
		NewStatus:        string(sub.Status),
		Details:          events.TrialExtendedDetails{ExtraDays: extraDays, NewEndsAt: newEndsAt},
		NotificationType: events.NotifyEmail,
		IsAutomated:      false,
		TriggeredBy:      adminID,
	})
	s.log.Info("trial extended",
		zap.String("subscription_id", sub.ID.String()),
		zap.Int("extra_days", extraDays),
		zap.String("admin_id", adminID),
	)
	return nil
}

func (s *Service) ChangePlan(ctx context.Context, subscriptionID snowflake.ID, adminID string, newPlanID snowflake.ID) error {
	sub, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.SubscriptionStatusTrial && sub.Status != domain.SubscriptionStatusActive {
		return fmt.Errorf("%w: cannot change plan on %s subscription", domain.ErrInvalidState, sub.Status)
	}
	if newPlanID == sub.PlanID {
		return domain.ErrInvalidPlan
	}

	var newPlan plandomain.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", newPlanID).Take(&newPlan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrInvalidPlan
		}
		return fmt.Errorf("load plan: %w", err)
	}
	var oldPlan plandomain.Plan
	if err := s.db.WithContext(ctx).Where("id = ?", sub.PlanID).Take(&oldPlan).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load plan: %w", err)
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{"plan_id": newPlanID, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("change plan: %w", err)
	}

	eventType := events.TypePlanUpgraded
	if newPlan.PriceCents < oldPlan.PriceCents {
		eventType = events.TypePlanDowngraded
	}
	s.events.Log(ctx, events.Event{
		SubscriptionID:   sub.ID,
		TenantID:         sub.TenantID,
		Type:             eventType,
		PreviousStatus:   string(sub.Status),
		NewStatus:        string(sub.Status),
		Details:          events.PlanChangedDetails{FromPlan: oldPlan.Code, ToPlan: newPlan.Code},
		NotificationType: events.NotifyEmail,
		IsAutomated:      false,
		TriggeredBy:      adminID,
	})
	s.log.Info("plan changed",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("from_plan", oldPlan.Code),
		zap.String("to_plan", newPlan.Code),
		zap.String("admin_id", adminID),
	)
	return nil
}

func (s *Service) CancelSubscription(ctx context.Context, subscriptionID snowflake.ID, adminID string, opts domain.CancelOptions) error {
	sub, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == domain.SubscriptionStatusCancelled || sub.Status == domain.SubscriptionStatusExpired {
		return fmt.Errorf("%w: subscription already %s", domain.ErrInvalidState, sub.Status)
	}

	now := s.clock.Now()
	if opts.Immediate {
		err = s.db.WithContext(ctx).
			Model(&domain.Subscription{}).
			Where("id = ? AND status = ?", sub.ID, sub.Status).
			Updates(map[string]any{
				"status":     domain.SubscriptionStatusCancelled,
				"auto_renew": false,
				"updated_at": now,
			}).Error
		if err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}

		s.events.Log(ctx, events.Event{
			SubscriptionID:   sub.ID,
			TenantID:         sub.TenantID,
			Type:             events.TypeSubscriptionCancelled,
			PreviousStatus:   string(sub.Status),
			NewStatus:        string(domain.SubscriptionStatusCancelled),
			Details:          events.CancellationDetails{Immediate: true, Reason: opts.Reason},
			NotificationType: events.NotifyEmail,
			IsAutomated:      false,
			TriggeredBy:      adminID,
		})
		s.log.Info("subscription cancelled",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("admin_id", adminID),
		)
		return nil
	}

	// Deferred: the subscription stays in its current status until the
	// daily sweep observes cancel_at_period_end past ends_at.
	err = s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, sub.Status).
		Updates(map[string]any{
			"auto_renew":           false,
			"cancel_at_period_end": true,
			"updated_at":           now,
		}).Error
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	s.events.Log(ctx, events.Event{
		SubscriptionID:   sub.ID,
		TenantID:         sub.TenantID,
		Type:             events.TypeSubscriptionCancelled,
		PreviousStatus:   string(sub.Status),
		NewStatus:        string(sub.Status),
		Details:          events.CancellationDetails{Immediate: false, Reason: opts.Reason, EffectiveAt: sub.EndsAt},
		NotificationType: events.NotifyEmail,
		IsAutomated:      false,
		TriggeredBy:      adminID,
	})
	s.log.Info("subscription cancellation deferred to period end",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("admin_id", adminID),
	)
	return nil
}

func (s *Service) StartGracePeriod(ctx context.Context, subscriptionID, tenantID snowflake.ID, failureReason string) (snowflake.ID, error) {
	unlock := s.locks.Lock("grace:" + subscriptionID.String())
	defer unlock()

	// At most one active grace period per subscription: reuse an existing one
	// instead of stacking windows when the gateway reports repeat failures.
	var existing domain.GracePeriod
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, domain.GracePeriodStatusActive).
		Take(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("check active grace period: %w", err)
	}

	snap := s.settings.Snapshot(ctx)
	now := s.clock.Now()
	endsAt := now.AddDate(0, 0, snap.GracePeriodDays)
	firstRetry := now.AddDate(0, 0, snap.PaymentRetryIntervals[0])

	gp := domain.GracePeriod{
		ID:                    s.genID.Generate(),
		SubscriptionID:        subscriptionID,
		TenantID:              tenantID,
		Status:                domain.GracePeriodStatusActive,
		EndsAt:                endsAt,
		OriginalFailureReason: failureReason,
		MaxRetries:            len(snap.PaymentRetryIntervals),
		NextRetryAt:           &firstRetry,
		RetryHistory:          []byte("[]"),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.db.WithContext(ctx).Create(&gp).Error; err != nil {
		return 0, fmt.Errorf("start grace period: %w", err)
	}

	s.events.Log(ctx, events.Event{
		SubscriptionID: subscriptionID,
		TenantID:       tenantID,
		Type:           events.TypeGracePeriodStarted,
		Details: events.GracePeriodStartedDetails{
			GracePeriodID: gp.ID.String(),
			GraceDays:     snap.GracePeriodDays,
			EndsAt:        endsAt,
			FailureReason: failureReason,
		},
		NotificationType: events.NotifyBoth,
		IsAutomated:      true,
	})
	s.log.Info("grace period started",
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("grace_period_id", gp.ID.String()),
		zap.Time("ends_at", endsAt),
	)
	return gp.ID, nil
}

func (s *Service) ResolveGracePeriod(ctx context.Context, gracePeriodID snowflake.ID, resolutionMethod string) error {
	var gp domain.GracePeriod
	err := s.db.WithContext(ctx).Where("id = ?", gracePeriodID).Take(&gp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrGracePeriodNotFound
		}
		return fmt.Errorf("load grace period: %w", err)
	}
	if gp.Status != domain.GracePeriodStatusActive {
		return fmt.Errorf("%w: grace period already %s", domain.ErrInvalidState, gp.Status)
	}
	if resolutionMethod == "" {
		resolutionMethod = domain.ResolutionManualPayment
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).
		Model(&domain.GracePeriod{}).
		Where("id = ? AND status = ?", gp.ID, domain.GracePeriodStatusActive).
		Updates(map[string]any{
			"status":            domain.GracePeriodStatusResolvedPaid,
			"resolved_at":       now,
			"resolution_method": resolutionMethod,
			"next_retry_at":     nil,
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("resolve grace period: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: grace period no longer active", domain.ErrInvalidState)
	}

	err = s.db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", gp.SubscriptionID).
		Updates(map[string]any{
			"status":     domain.SubscriptionStatusActive,
			"updated_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("reactivate subscription: %w", err)
	}

	s.events.Log(ctx, events.Event{
		SubscriptionID: gp.SubscriptionID,
		TenantID:       gp.TenantID,
		Type:           events.TypePaymentSucceeded,
		NewStatus:      string(domain.SubscriptionStatusActive),
		Details: events.PaymentSucceededDetails{
			GracePeriodID:    gp.ID.String(),
			ResolutionMethod: resolutionMethod,
		},
		NotificationType: events.NotifyEmail,
		IsAutomated:      true,
	})
	s.log.Info("grace period resolved",
		zap.String("grace_period_id", gp.ID.String()),
		zap.String("subscription_id", gp.SubscriptionID.String()),
		zap.String("resolution_method", resolutionMethod),
	)
	return nil
}

func (s *Service) loadSubscription(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &sub, nil
}
