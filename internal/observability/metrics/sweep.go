// Package metrics exposes Prometheus instruments for the lifecycle sweeps.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every instrument.
type Config struct {
	Environment string
}

// SweepMetrics tracks automation run outcomes per job.
type SweepMetrics struct {
	runDuration    *prometheus.HistogramVec
	runsTotal      *prometheus.CounterVec
	itemsProcessed *prometheus.CounterVec
	itemsFailed    *prometheus.CounterVec
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the process-wide sweep metrics, registering them on first use.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest clears the singleton between test registries.
func ResetSweepMetricsForTest() {
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": "vilo-subscriptions",
		"env":     environment,
	}

	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "subscription_sweep_duration_seconds",
			Help:        "Wall time of one automation run.",
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12),
			ConstLabels: constLabels,
		},
		[]string{"job"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "subscription_sweep_runs_total",
			Help:        "Automation runs by job and final status.",
			ConstLabels: constLabels,
		},
		[]string{"job", "status"},
	)
	itemsProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "subscription_sweep_items_total",
			Help:        "Items processed by automation runs.",
			ConstLabels: constLabels,
		},
		[]string{"job"},
	)
	itemsFailed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "subscription_sweep_item_failures_total",
			Help:        "Items that failed inside automation runs.",
			ConstLabels: constLabels,
		},
		[]string{"job"},
	)

	m := &SweepMetrics{
		runDuration:    runDuration,
		runsTotal:      runsTotal,
		itemsProcessed: itemsProcessed,
		itemsFailed:    itemsFailed,
	}
	for _, collector := range []prometheus.Collector{runDuration, runsTotal, itemsProcessed, itemsFailed} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return m
}

// ObserveRun records the outcome of one automation run.
func (m *SweepMetrics) ObserveRun(job, status string, duration time.Duration, processed, failed int) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(duration.Seconds())
	m.runsTotal.WithLabelValues(job, status).Inc()
	m.itemsProcessed.WithLabelValues(job).Add(float64(processed))
	m.itemsFailed.WithLabelValues(job).Add(float64(failed))
}
