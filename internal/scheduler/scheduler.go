// Package scheduler runs the subscription lifecycle sweeps: trial notices and
// expiry, grace-period retries and expiry, deferred cancellations, usage
// limit checks, and renewal reminders. Every sweep is wrapped in a recorded
// automation run and never lets an error escape to its caller.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/clock"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/gateway"
	"github.com/Wollie333/vilo-sub003/internal/observability/metrics"
	"github.com/Wollie333/vilo-sub003/internal/observability/tracing"
	"github.com/Wollie333/vilo-sub003/internal/scheduler/guard"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	subscriptiondomain "github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"github.com/Wollie333/vilo-sub003/internal/usagelimit"
	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Job names recorded on automation runs.
const (
	JobExpiringTrials       = "process_expiring_trials"
	JobGracePeriods         = "process_grace_periods"
	JobPendingCancellations = "process_pending_cancellations"
	JobUsageLimits          = "check_usage_limits"
	JobRenewalReminders     = "send_renewal_reminders"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Settings *settings.Service
	Events   *events.Logger
	Tracker  *automation.Tracker
	Monitor  *usagelimit.Monitor
	SubSvc   subscriptiondomain.Service
	Charger  gateway.Charger
	Config   Config `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	settings *settings.Service
	events   *events.Logger
	tracker  *automation.Tracker
	monitor  *usagelimit.Monitor
	subSvc   subscriptiondomain.Service
	charger  gateway.Charger
	cfg      Config
	locks    *guard.KeyedMutex
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.Settings == nil || p.Events == nil || p.Tracker == nil ||
		p.Monitor == nil || p.SubSvc == nil {
		return nil, ErrInvalidConfig
	}
	charger := p.Charger
	if charger == nil {
		charger = gateway.StubCharger{}
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		genID:    p.GenID,
		clock:    p.Clock,
		settings: p.Settings,
		events:   p.Events,
		tracker:  p.Tracker,
		monitor:  p.Monitor,
		subSvc:   p.SubSvc,
		charger:  charger,
		cfg:      p.Config.withDefaults(),
		locks:    guard.NewKeyedMutex(),
	}, nil
}

type sweepFunc func(ctx context.Context, snap settings.Snapshot, run *automation.Run) error

// runJob wraps one sweep: settings snapshot, run tracking, timeout, and the
// no-escape guarantee. A deadline hit is a soft stop; re-evaluated queries
// pick up the remainder on the next tick.
func (s *Scheduler) runJob(parent context.Context, name, triggeredBy, adminID string, fn sweepFunc) automation.Result {
	start := s.clock.Now()

	parent, span := otel.Tracer("vilo/scheduler").Start(parent, "sweep "+name)
	span.SetAttributes(tracing.JobAttributes(name, triggeredBy)...)
	defer span.End()

	run := s.tracker.Start(parent, name, triggeredBy, adminID)

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	snap := s.settings.Snapshot(ctx)
	err := fn(ctx, snap, run)
	cancel()

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		s.log.Warn("job stopped at deadline, remainder picked up next run",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
		)
	}

	result := s.tracker.Complete(parent, run, err)
	metrics.Sweep().ObserveRun(name, string(result.Status), time.Since(start), result.ItemsProcessed, result.ItemsFailed)
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", run.ID.String()),
		zap.Int("items_processed", result.ItemsProcessed),
		zap.Int("items_succeeded", result.ItemsSucceeded),
		zap.Int("items_failed", result.ItemsFailed),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		log.Warn("job failed", zap.Error(err))
	} else {
		log.Info("job completed")
	}
	return result
}

// ProcessExpiringTrials runs the trial notice and trial expiry sweeps.
func (s *Scheduler) ProcessExpiringTrials(ctx context.Context, triggeredBy, adminID string) automation.Result {
	return s.runJob(ctx, JobExpiringTrials, triggeredBy, adminID, s.sweepTrials)
}

// ProcessGracePeriods expires overdue grace periods and fires due retries.
func (s *Scheduler) ProcessGracePeriods(ctx context.Context, triggeredBy, adminID string) automation.Result {
	return s.runJob(ctx, JobGracePeriods, triggeredBy, adminID, s.sweepGracePeriods)
}

// ProcessPendingCancellations finalizes deferred cancellations past period end.
func (s *Scheduler) ProcessPendingCancellations(ctx context.Context, triggeredBy, adminID string) automation.Result {
	return s.runJob(ctx, JobPendingCancellations, triggeredBy, adminID, s.sweepPendingCancellations)
}

// CheckUsageLimits runs the usage limit monitor over all live subscriptions.
func (s *Scheduler) CheckUsageLimits(ctx context.Context, triggeredBy, adminID string) automation.Result {
	return s.runJob(ctx, JobUsageLimits, triggeredBy, adminID, func(ctx context.Context, snap settings.Snapshot, run *automation.Run) error {
		return s.monitor.Sweep(ctx, snap.UsageWarningThreshold, run)
	})
}

// SendRenewalReminders emits reminder events for upcoming auto-renewals.
func (s *Scheduler) SendRenewalReminders(ctx context.Context, triggeredBy, adminID string) automation.Result {
	return s.runJob(ctx, JobRenewalReminders, triggeredBy, adminID, s.sweepRenewalReminders)
}

// RunDailyJobs executes the daily sweeps sequentially to bound store load.
// The jobs are independent; the order is convention.
func (s *Scheduler) RunDailyJobs(ctx context.Context, triggeredBy, adminID string) map[string]automation.Result {
	results := make(map[string]automation.Result, 4)
	results[JobExpiringTrials] = s.ProcessExpiringTrials(ctx, triggeredBy, adminID)
	results[JobGracePeriods] = s.ProcessGracePeriods(ctx, triggeredBy, adminID)
	results[JobPendingCancellations] = s.ProcessPendingCancellations(ctx, triggeredBy, adminID)
	results[JobUsageLimits] = s.CheckUsageLimits(ctx, triggeredBy, adminID)
	return results
}

// RunHourlyJobs executes the hourly sweeps.
func (s *Scheduler) RunHourlyJobs(ctx context.Context, triggeredBy, adminID string) map[string]automation.Result {
	return map[string]automation.Result{
		JobRenewalReminders: s.SendRenewalReminders(ctx, triggeredBy, adminID),
	}
}

// RunForever drives the daily and hourly cadences until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	daily := time.NewTicker(s.cfg.DailyInterval)
	hourly := time.NewTicker(s.cfg.HourlyInterval)
	defer daily.Stop()
	defer hourly.Stop()

	s.RunDailyJobs(ctx, automation.TriggeredByScheduled, "")
	s.RunHourlyJobs(ctx, automation.TriggeredByScheduled, "")

	for {
		select {
		case <-ctx.Done():
			return
		case <-daily.C:
			s.RunDailyJobs(ctx, automation.TriggeredByScheduled, "")
		case <-hourly.C:
			s.RunHourlyJobs(ctx, automation.TriggeredByScheduled, "")
		}
	}
}
