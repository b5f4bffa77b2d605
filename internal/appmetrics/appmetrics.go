// Package appmetrics defines the gateway's domain Prometheus metrics and
// registers them onto the pkg/metrics.Server's registry, the same way the
// teacher's cron/task-queue metrics packages registered onto that
// registry before being dropped as out of scope for this domain (see
// DESIGN.md).
package appmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter, gauge, and histogram the gateway exports.
type Metrics struct {
	BuildsStarted     *prometheus.CounterVec
	BuildsCompleted   *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	SSEConnections    prometheus.Gauge
	BuildDurationSecs *prometheus.HistogramVec
}

// Outcome labels for BuildsCompleted.
const (
	OutcomeComplete  = "complete"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// New constructs the metrics set without registering it anywhere.
func New() *Metrics {
	return &Metrics{
		BuildsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadgateway_builds_started_total",
			Help: "Number of build workers started, by assembly endpoint.",
		}, []string{"assembly"}),
		BuildsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadgateway_builds_completed_total",
			Help: "Number of observer submissions that reached a terminal outcome, by assembly endpoint and outcome.",
		}, []string{"assembly", "outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cadgateway_cache_hits_total",
			Help: "Number of submissions that joined or returned a cached entry instead of starting a worker.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cadgateway_cache_misses_total",
			Help: "Number of submissions that installed a fresh entry and started a worker.",
		}),
		SSEConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cadgateway_sse_connections",
			Help: "Number of currently open SSE observer connections.",
		}),
		BuildDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cadgateway_build_duration_seconds",
			Help:    "Wall-clock time from an observer's submission to its terminal event, by assembly endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"assembly"}),
	}
}

// MustRegister registers every metric on registerer, panicking on
// duplicate registration (mirrors prometheus.MustRegister's own contract).
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		m.BuildsStarted,
		m.BuildsCompleted,
		m.CacheHits,
		m.CacheMisses,
		m.SSEConnections,
		m.BuildDurationSecs,
	)
}
