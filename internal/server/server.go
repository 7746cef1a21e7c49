// Package server exposes the admin HTTP surface: manual lifecycle actions,
// job triggers for external crons, and read access to runs and event history.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Wollie333/vilo-sub003/internal/automation"
	"github.com/Wollie333/vilo-sub003/internal/config"
	"github.com/Wollie333/vilo-sub003/internal/events"
	"github.com/Wollie333/vilo-sub003/internal/observability/logger"
	"github.com/Wollie333/vilo-sub003/internal/scheduler"
	subscriptiondomain "github.com/Wollie333/vilo-sub003/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Sched   *scheduler.Scheduler
	SubSvc  subscriptiondomain.Service
	Events  *events.Logger
	Tracker *automation.Tracker
}

type Server struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	sched    *scheduler.Scheduler
	subSvc   subscriptiondomain.Service
	events   *events.Logger
	tracker  *automation.Tracker
	jobLimit *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		db:       p.DB,
		log:      p.Log.Named("server"),
		cfg:      p.Cfg,
		sched:    p.Sched,
		subSvc:   p.SubSvc,
		events:   p.Events,
		tracker:  p.Tracker,
		jobLimit: newRateLimiter(10, time.Minute),
	}
}

// Router assembles the gin engine. Admin routes require the configured bearer
// token; without a token the admin surface stays unregistered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.GET("/healthz", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.cfg.AdminToken == "" {
		s.log.Warn("admin token not configured, admin routes disabled")
		return r
	}

	admin := r.Group("/admin", s.AdminRequired())
	{
		admin.POST("/jobs/:name", s.TriggerJob)
		admin.GET("/runs", s.ListRuns)

		admin.POST("/subscriptions/:id/extend-trial", s.ExtendTrial)
		admin.POST("/subscriptions/:id/change-plan", s.ChangePlan)
		admin.POST("/subscriptions/:id/cancel", s.CancelSubscription)
		admin.POST("/subscriptions/:id/grace-period", s.StartGracePeriod)
		admin.GET("/subscriptions/:id/events", s.ListSubscriptionEvents)

		admin.POST("/grace-periods/:id/resolve", s.ResolveGracePeriod)
	}
	return r
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Module provides the server and binds it to the fx lifecycle.
var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
