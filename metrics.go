package quillsign

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline and
// its resilience layers. All methods are nil-safe so metrics stay optional.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheRevalidations *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheSize          prometheus.Gauge

	tokenRefreshes *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_requests_total",
				Help: "Total number of API requests made",
			},
			[]string{"method", "status_code", "group"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quillsign_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "group"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quillsign_requests_in_flight",
				Help: "Number of API requests currently in flight",
			},
			[]string{"method", "group"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "group"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quillsign_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"group"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_cache_hits_total",
				Help: "Total number of 304 revalidations served from cache",
			},
			[]string{"group"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_cache_misses_total",
				Help: "Total number of cacheable GETs with no stored validator",
			},
			[]string{"group"},
		),
		cacheRevalidations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_cache_revalidations_total",
				Help: "Conditional request outcomes",
			},
			[]string{"outcome"},
		),
		cacheInvalidations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_cache_invalidations_total",
				Help: "Total number of prefix invalidations after mutations",
			},
			[]string{"group"},
		),
		cacheSize: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "quillsign_cache_size",
				Help: "Current number of entries in the response cache",
			},
		),
		tokenRefreshes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_token_refreshes_total",
				Help: "Token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quillsign_errors_total",
				Help: "Total number of classified errors",
			},
			[]string{"kind", "method", "group"},
		),
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, group string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode), group).Inc()
	mc.requestDuration.WithLabelValues(method, group).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, group string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, group).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, group string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, group).Dec()
}

// RecordRetry increments the retry counter.
func (mc *MetricsCollector) RecordRetry(method, group string) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, group).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge for a group.
func (mc *MetricsCollector) RecordCircuitBreakerState(group string, state BreakerState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(group).Set(float64(state))
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(group string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(group).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(group string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(group).Inc()
}

// RecordRevalidation records a conditional request outcome
// ("not_modified" or "modified").
func (mc *MetricsCollector) RecordRevalidation(outcome string) {
	if mc == nil {
		return
	}
	mc.cacheRevalidations.WithLabelValues(outcome).Inc()
}

// RecordCacheInvalidation increments the invalidation counter for a group.
func (mc *MetricsCollector) RecordCacheInvalidation(group string) {
	if mc == nil {
		return
	}
	mc.cacheInvalidations.WithLabelValues(group).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.Set(float64(size))
}

// RecordTokenRefresh records a refresh attempt outcome
// ("success", "failure" or "terminal").
func (mc *MetricsCollector) RecordTokenRefresh(outcome string) {
	if mc == nil {
		return
	}
	mc.tokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind, method, group string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(kind, method, group).Inc()
}
