package usagelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/cache"
	"github.com/Wollie333/vilo-sub003/internal/clock"
	plandomain "github.com/Wollie333/vilo-sub003/internal/plan/domain"
	"github.com/Wollie333/vilo-sub003/internal/scheduler/guard"
	subscriptiondomain "github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dedupWindow  = 24 * time.Hour
	planCacheTTL = 5 * time.Minute
)

type MonitorParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

// Monitor sweeps active and trialing subscriptions and raises threshold
// events when a tenant's room or team-member counts approach plan limits.
type Monitor struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	planCache *cache.TTLCache[snowflake.ID, plandomain.Plan]
	locks     *guard.KeyedMutex
}

func NewMonitor(p MonitorParams) *Monitor {
	return &Monitor{
		db:        p.DB,
		log:       p.Log.Named("usagelimit"),
		genID:     p.GenID,
		clock:     p.Clock,
		planCache: cache.NewTTLCache[snowflake.ID, plandomain.Plan](),
		locks:     guard.NewKeyedMutex(),
	}
}

// Sweep checks every active or trialing subscription. Per-item failures are
// recorded on the run and do not stop the sweep; only the initial selection
// failing is a sweep-level error.
func (m *Monitor) Sweep(ctx context.Context, warningThreshold float64, run *automation.Run) error {
	var subs []subscriptiondomain.Subscription
	err := m.db.WithContext(ctx).
		Where("status IN ?", []subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusTrial,
		}).
		Find(&subs).Error
	if err != nil {
		return fmt.Errorf("select subscriptions for usage check: %w", err)
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.CheckSubscription(ctx, sub, warningThreshold, run); err != nil {
			run.AddFailure(sub.ID.String(), err)
			m.log.Warn("usage check failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("tenant_id", sub.TenantID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// CheckSubscription evaluates every tracked resource for one subscription.
func (m *Monitor) CheckSubscription(ctx context.Context, sub subscriptiondomain.Subscription, warningThreshold float64, run *automation.Run) error {
	plan, err := m.planCache.GetOrLoad(sub.PlanID, planCacheTTL, func() (plandomain.Plan, error) {
		var p plandomain.Plan
		err := m.db.WithContext(ctx).Where("id = ?", sub.PlanID).Take(&p).Error
		return p, err
	})
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	resources := []struct {
		limitType string
		limitKey  string
		table     string
	}{
		{LimitTypeRooms, plandomain.LimitMaxRooms, "rooms"},
		{LimitTypeTeamMembers, plandomain.LimitMaxTeamMembers, "team_members"},
	}

	var checkErr error
	for _, res := range resources {
		count, err := m.countResource(ctx, res.table, sub.TenantID)
		if err != nil {
			checkErr = errors.Join(checkErr, err)
			continue
		}
		limit := plan.LimitValue(res.limitKey)
		if limit <= 0 {
			limit = plandomain.UnlimitedValue
		}

		usage := float64(count) / float64(limit)
		switch {
		case usage >= 1:
			m.raise(ctx, sub, res.limitType, count, limit, usage, ThresholdLimit, run)
		case usage >= warningThreshold:
			m.raise(ctx, sub, res.limitType, count, limit, usage, ThresholdWarning, run)
		}
	}
	return checkErr
}

func (m *Monitor) countResource(ctx context.Context, table string, tenantID snowflake.ID) (int, error) {
	var count int64
	err := m.db.WithContext(ctx).
		Table(table).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return int(count), nil
}

// raise inserts a threshold event unless one of the same (tenant, limit_type,
// threshold_type) exists within the rolling dedup window. The keyed mutex
// serializes the check-then-insert per tenant and limit within this process.
func (m *Monitor) raise(
	ctx context.Context,
	sub subscriptiondomain.Subscription,
	limitType string,
	count, limit int,
	usage float64,
	threshold ThresholdType,
	run *automation.Run,
) {
	key := fmt.Sprintf("%s:%s:%s", sub.TenantID.String(), limitType, threshold)
	unlock := m.locks.Lock(key)
	defer unlock()

	since := m.clock.Now().Add(-dedupWindow)
	var existing int64
	err := m.db.WithContext(ctx).
		Model(&UsageLimitEvent{}).
		Where("tenant_id = ? AND limit_type = ? AND threshold_type = ? AND created_at >= ?",
			sub.TenantID, limitType, threshold, since).
		Count(&existing).Error
	if err != nil {
		run.AddFailure(sub.ID.String(), err)
		m.log.Warn("usage event dedup check failed", zap.String("tenant_id", sub.TenantID.String()), zap.Error(err))
		return
	}
	if existing > 0 {
		return
	}

	action := ActionNotificationSent
	bucket := automation.BucketWarned
	if threshold == ThresholdLimit {
		action = ActionFeatureDisabled
		bucket = automation.BucketLimited
	}

	row := UsageLimitEvent{
		ID:             m.genID.Generate(),
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		LimitType:      limitType,
		CurrentUsage:   count,
		LimitValue:     limit,
		UsagePercent:   usage * 100,
		ThresholdType:  threshold,
		ActionTaken:    action,
		CreatedAt:      m.clock.Now(),
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		run.AddFailure(sub.ID.String(), err)
		m.log.Warn("usage event insert failed", zap.String("tenant_id", sub.TenantID.String()), zap.Error(err))
		return
	}

	run.AddSuccess(bucket, sub.TenantID.String())
	m.log.Info("usage threshold crossed",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("limit_type", limitType),
		zap.String("threshold", string(threshold)),
		zap.Int("current_usage", count),
		zap.Int("limit_value", limit),
	)
}

var Module = fx.Module("usagelimit",
	fx.Provide(NewMonitor),
)
