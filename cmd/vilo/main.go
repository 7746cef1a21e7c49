package main

import (
	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/clock"
	"github.com/Wollie333/vilo-sub003/internal/config"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/gateway"
	"github.com/Wollie333/vilo-sub003/internal/migration"
	"github.com/Wollie333/vilo-sub003/internal/observability/logger"
	"github.com/Wollie333/vilo-sub003/internal/observability/metrics"
	"github.com/Wollie333/vilo-sub003/internal/observability/tracing"
	"github.com/Wollie333/vilo-sub003/internal/scheduler"
	"github.com/Wollie333/vilo-sub003/internal/seed"
	"github.com/Wollie333/vilo-sub003/internal/server"
	"github.com/Wollie333/vilo-sub003/internal/settings"
	"github.com/Wollie333/vilo-sub003/internal/subscription"
	"github.com/Wollie333/vilo-sub003/internal/usagelimit"
	"github.com/Wollie333/vilo-sub003/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		tracing.Module,
		fx.Invoke(func(log *zap.Logger, cfg config.Config) {
			metrics.SweepWithConfig(metrics.Config{Environment: cfg.Environment})
			log.Info("starting vilo",
				zap.String("version", version),
				zap.String("environment", cfg.Environment),
			)
		}),
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if err := seed.EnsurePlans(conn); err != nil {
				return err
			}
			if err := seed.EnsureSettings(conn); err != nil {
				return err
			}
			if !cfg.IsProduction() {
				return seed.EnsureDemoTenant(conn)
			}
			return nil
		}),
		clock.Module,
		settings.Module,
		events.Module,
		automation.Module,
		gateway.Module,
		usagelimit.Module,
		subscription.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
