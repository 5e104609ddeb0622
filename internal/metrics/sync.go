package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks how often the storage layer falls back, queues and
// replays. A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	fallbacks *prometheus.CounterVec
	queued    *prometheus.CounterVec
	replayed  *prometheus.CounterVec
	pending   prometheus.Gauge
	drains    prometheus.Histogram
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soapstock_fallback_total",
			Help: "Reads served by a fallback source, by entity and source.",
		}, []string{"entity", "source"}),
		queued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soapstock_queued_operations_total",
			Help: "Mutations queued for later replay.",
		}, []string{"table", "type"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soapstock_replayed_operations_total",
			Help: "Queued mutations replayed against the remote store, by result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soapstock_pending_operations",
			Help: "Mutations waiting in the pending queue.",
		}),
		drains: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soapstock_drain_duration_seconds",
			Help:    "Duration of queue drains.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.fallbacks, m.queued, m.replayed, m.pending, m.drains)
	return m
}

func (m *SyncMetrics) IncFallback(entity, source string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(normalizeLabel(entity), normalizeLabel(source)).Inc()
}

func (m *SyncMetrics) IncQueued(table, opType string) {
	if m == nil || m.queued == nil {
		return
	}
	m.queued.WithLabelValues(normalizeLabel(table), normalizeLabel(opType)).Inc()
}

func (m *SyncMetrics) AddReplayed(succeeded, failed int) {
	if m == nil || m.replayed == nil {
		return
	}
	m.replayed.WithLabelValues("success").Add(float64(succeeded))
	m.replayed.WithLabelValues("failure").Add(float64(failed))
}

func (m *SyncMetrics) SetPending(n int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *SyncMetrics) ObserveDrain(seconds float64) {
	if m == nil || m.drains == nil {
		return
	}
	m.drains.Observe(seconds)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
