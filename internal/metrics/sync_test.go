package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSyncMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.IncFallback("sales", "cache")
	m.IncFallback("sales", "cache")
	m.IncQueued("orders", "")
	m.AddReplayed(3, 1)
	m.SetPending(4)

	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues("sales", "cache")); got != 2 {
		t.Fatalf("expected 2 cache fallbacks, got %v", got)
	}
	if got := testutil.ToFloat64(m.queued.WithLabelValues("orders", "unknown")); got != 1 {
		t.Fatalf("expected empty op type to normalize, got %v", got)
	}
	if got := testutil.ToFloat64(m.replayed.WithLabelValues("success")); got != 3 {
		t.Fatalf("expected 3 replayed successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.pending); got != 4 {
		t.Fatalf("expected pending gauge 4, got %v", got)
	}
}

func TestNilSyncMetricsIsSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncFallback("sales", "local")
	m.SetPending(1)
	NewSyncMetrics(nil).AddReplayed(1, 1)
}
