// Package observability holds the Prometheus collectors shared by the relay.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var backendLabel atomic.Value

func init() {
	backendLabel.Store("rpc")
	register(prometheus.DefaultRegisterer)
}

func SetBackend(s string) {
	if s == "" {
		s = "rpc"
	}
	backendLabel.Store(s)
}

func getBackend() string {
	if v := backendLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "rpc"
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "backend"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "backend"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "backend"},
	)

	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Failed upstream calls by kind.",
		},
		[]string{"upstream", "kind"},
	)

	intersectionResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intersection_results",
			Help:    "Number of zoning regions returned per successful check.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"backend"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_build_info",
			Help: "Relay version (value is always 1).",
		},
		[]string{"version"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome.",
		},
		[]string{"outcome", "backend"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Zoning change events processed by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidationKeysDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invalidation_keys_deleted_total",
			Help: "Cached result keys deleted by invalidation.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		upstreamLatencySeconds, upstreamErrorsTotal, intersectionResults,
		buildInfo, cacheResults, cacheOpTotal, redisOpDurationSeconds,
		invalidationEvents, invalidationKeysDeleted,
	}
}

// Init registers the collectors with reg as well. Collectors are always
// registered with the default registry.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	register(reg)
}

func register(reg prometheus.Registerer) {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	s := getBackend()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, s).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, s).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, getBackend()).Observe(durationSeconds)
}

func IncUpstreamError(upstream, kind string) {
	upstreamErrorsTotal.WithLabelValues(upstream, kind).Inc()
}

func ObserveResults(n int) {
	intersectionResults.WithLabelValues(getBackend()).Observe(float64(n))
}

// ObserveCacheOutcome records hit, miss or bypass.
func ObserveCacheOutcome(outcome string) {
	cacheResults.WithLabelValues(outcome, getBackend()).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveInvalidation(op string, keys int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	invalidationEvents.WithLabelValues(op, result).Inc()
	if keys > 0 {
		invalidationKeysDeleted.Add(float64(keys))
	}
}

// IncInvalidationSkipped counts events dropped without work (reason: decode, invalid, stale).
func IncInvalidationSkipped(reason string) {
	invalidationEvents.WithLabelValues("none", reason).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
