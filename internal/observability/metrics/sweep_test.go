package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRunRecordsSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newSweepMetrics(reg, Config{Environment: "test"})

	m.ObserveRun("process_expiring_trials", "completed", 2*time.Second, 5, 1)
	m.ObserveRun("process_expiring_trials", "completed", time.Second, 3, 0)
	m.ObserveRun("process_expiring_trials", "partial", time.Second, 2, 2)

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("process_expiring_trials", "completed")); got != 2 {
		t.Fatalf("expected 2 completed runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("process_expiring_trials", "partial")); got != 1 {
		t.Fatalf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.itemsProcessed.WithLabelValues("process_expiring_trials")); got != 10 {
		t.Fatalf("expected 10 items processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.itemsFailed.WithLabelValues("process_expiring_trials")); got != 3 {
		t.Fatalf("expected 3 item failures, got %v", got)
	}
}

func TestDoubleRegistrationIsTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	newSweepMetrics(reg, Config{})
	// Re-registering the same series must reuse, not panic.
	m := newSweepMetrics(reg, Config{})
	m.ObserveRun("send_renewal_reminders", "completed", time.Second, 1, 0)
}

func TestSweepSingletonAndNilReceiver(t *testing.T) {
	ResetSweepMetricsForTest()
	t.Cleanup(ResetSweepMetricsForTest)

	if Sweep() != Sweep() {
		t.Fatalf("expected one process-wide instance")
	}

	var m *SweepMetrics
	m.ObserveRun("check_usage_limits", "completed", time.Second, 1, 0)
}
