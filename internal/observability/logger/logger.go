// Package logger wires the process-wide zap logger and enriches log entries
// with the active OpenTelemetry trace context.
package logger

import (
	"context"

	"github.com/Wollie333/vilo-sub003/internal/config"
	obscontext "github.com/Wollie333/vilo-sub003/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(New),
	fx.Invoke(func(log *zap.Logger) {
		zap.ReplaceGlobals(log)
	}),
)

// New builds the root logger. Production gets JSON output, everything else the
// development console encoder.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// FromContext returns the global logger annotated with whatever identity the
// context carries: trace and span ids from a sampled span, plus the request id
// and tenant id stamped by the HTTP middleware.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		log = log.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		log = log.With(zap.String("request_id", requestID))
	}
	if tenantID := obscontext.TenantIDFromContext(ctx); tenantID != "" {
		log = log.With(zap.String("tenant_id", tenantID))
	}
	return log
}
