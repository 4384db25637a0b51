// Package metrics provides Prometheus metrics for the assistant service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// Chat pipeline metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatRequestDuration *prometheus.HistogramVec
	IntentsTotal        *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheEntries     prometheus.Gauge

	// Quota and breaker metrics
	QuotaRejectionsTotal prometheus.Counter
	BreakerState         prometheus.Gauge

	// Remote model metrics
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration prometheus.Histogram
	RemoteErrorsTotal     *prometheus.CounterVec

	// Insights metrics
	InsightsTotal *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. Tests pass a
// private registry so repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.ChatRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "butler_chat_requests_total",
			Help: "Total number of chat requests by answering backend",
		},
		[]string{"backend"},
	)

	m.ChatRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "butler_chat_request_duration_seconds",
			Help:    "Duration of chat requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	m.IntentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "butler_intents_total",
			Help: "Total number of classified intents",
		},
		[]string{"intent"},
	)

	m.CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "butler_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	m.CacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "butler_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	m.CacheEntries = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "butler_cache_entries",
			Help: "Current number of response cache entries",
		},
	)

	m.QuotaRejectionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "butler_quota_rejections_total",
			Help: "Total number of requests denied remote access by the daily quota",
		},
	)

	m.BreakerState = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "butler_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	m.RemoteRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "butler_remote_requests_total",
			Help: "Total number of remote model requests",
		},
		[]string{"model", "status"},
	)

	m.RemoteRequestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "butler_remote_request_duration_seconds",
			Help:    "Duration of remote model requests in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.RemoteErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "butler_remote_errors_total",
			Help: "Total number of remote model errors by kind",
		},
		[]string{"kind"},
	)

	m.InsightsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "butler_insights_total",
			Help: "Total number of insight generations by source",
		},
		[]string{"source"},
	)

	return m
}

// RecordChat records a completed chat request.
func (m *Metrics) RecordChat(backend string, intent string, duration time.Duration) {
	m.ChatRequestsTotal.WithLabelValues(backend).Inc()
	m.ChatRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
	m.IntentsTotal.WithLabelValues(intent).Inc()
}

// RecordRemoteRequest records a remote model round trip.
func (m *Metrics) RecordRemoteRequest(model string, status string, duration time.Duration) {
	m.RemoteRequestsTotal.WithLabelValues(model, status).Inc()
	m.RemoteRequestDuration.Observe(duration.Seconds())
}
