package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder captures the outcome of a named operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Metrics publishes validation, repair and statistics cache counters on a
// Prometheus registry. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	findings    *prometheus.CounterVec
	repaired    prometheus.Counter
	skipped     *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

var _ MetricsRecorder = (*Metrics)(nil)

// NewMetrics registers the collectors on reg. A nil reg uses a private
// registry so repeated construction never collides.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nucleicore",
			Name:      "operations_total",
			Help:      "Operations run, by operation and outcome.",
		}, []string{"operation", "status"}),
		durations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nucleicore",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		findings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nucleicore",
			Name:      "validation_findings_total",
			Help:      "Blocking validation findings, by check.",
		}, []string{"check"}),
		repaired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nucleicore",
			Name:      "repaired_nuclei_total",
			Help:      "Nuclei whose reference landmark was moved by repair.",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nucleicore",
			Name:      "repair_skipped_total",
			Help:      "Nuclei skipped during repair, by cause.",
		}, []string{"cause"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nucleicore",
			Name:      "stats_cache_hits_total",
			Help:      "Statistics served from cache.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nucleicore",
			Name:      "stats_cache_misses_total",
			Help:      "Statistics computed from members.",
		}),
	}
}

// Observe records an operation outcome.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if m == nil || operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) finding(check string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.findings.WithLabelValues(check).Add(float64(n))
}

func (m *Metrics) repairedNucleus() {
	if m != nil {
		m.repaired.Inc()
	}
}

func (m *Metrics) skippedNucleus(cause SkipCause) {
	if m != nil {
		m.skipped.WithLabelValues(string(cause)).Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}
