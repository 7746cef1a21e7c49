package scheduler

import (
	"context"

	"github.com/Wollie333/vilo-sub003/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the scheduler and, when enabled, runs the recurring sweeps for
// the lifetime of the application.
var Module = fx.Module("scheduler",
	fx.Provide(
		FromAppConfig,
		New,
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, sched *Scheduler, cfg config.Config, log *zap.Logger) {
	if !cfg.SchedulerEnabled {
		log.Info("scheduler disabled, sweeps run only via manual triggers")
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				sched.RunForever(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
}
