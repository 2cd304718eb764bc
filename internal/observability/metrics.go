package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/geoweather-gateway/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Calls to Open-Meteo by upstream (geocoding, forecast) and status class.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per upstream. High values mean an unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Upstream failures by error category.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Candidate resolutions by the tier that answered (cache, local, remote_primary, remote_secondary).
	GeocodeResolutionsTotal *prometheus.CounterVec

	// Number of candidates returned per resolution. Many zeros mean unknown places.
	GeocodeCandidatesReturned prometheus.Histogram

	// Gazetteer builds by result. Watch for: repeated failures (missing dataset).
	GazetteerBuildsTotal *prometheus.CounterVec

	// Gazetteer build latency.
	GazetteerBuildDuration prometheus.Histogram

	// Rows held by the gazetteer index after the last successful build.
	GazetteerRows prometheus.Gauge

	// Forecast lookups. Watch for: traffic volume.
	ForecastRequestsTotal prometheus.Counter

	// Forecast lookups that waited on an in-flight upstream call for the same key.
	RequestCoalescingHitsTotal prometheus.Counter

	// Concurrent misses for the same forecast key.
	CacheStampedeDetectedTotal prometheus.Counter

	// Entries removed by the periodic cleanup sweep, per cache.
	CacheCleanupRemovedTotal *prometheus.CounterVec

	// Cache warm runs, durations and failures.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram
	CacheWarmingErrorsTotal     prometheus.Counter

	// MCP tool invocations by tool and result.
	ToolCallsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of Open-Meteo API calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Open-Meteo API latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for Open-Meteo API calls",
		},
		[]string{"upstream"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Open-Meteo API failures by error category",
		},
		[]string{"upstream", "category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		},
		[]string{"upstream"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"upstream", "from", "to"},
	)
	GeocodeResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocodeResolutionsTotal",
			Help: "Candidate resolutions by answering tier",
		},
		[]string{"tier"},
	)
	GeocodeCandidatesReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocodeCandidatesReturned",
			Help:    "Candidates returned per resolution",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)
	GazetteerBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gazetteerBuildsTotal",
			Help: "Gazetteer index builds by result",
		},
		[]string{"result"},
	)
	GazetteerBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gazetteerBuildDurationSeconds",
			Help:    "Gazetteer index build latency in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	GazetteerRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gazetteerRows",
			Help: "Rows held by the gazetteer index",
		},
	)
	ForecastRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastRequestsTotal",
			Help: "Total number of forecast lookups",
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Forecast lookups served by joining an in-flight upstream call",
		},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Forecast cache misses that found another miss in progress for the same key",
		},
	)
	CacheCleanupRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheCleanupRemovedTotal",
			Help: "Expired entries removed by the cleanup sweep",
		},
		[]string{"cache"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warm runs",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warm run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warm runs with at least one failed place",
		},
	)
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolCallsTotal",
			Help: "MCP tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal, UpstreamErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		GeocodeResolutionsTotal, GeocodeCandidatesReturned,
		GazetteerBuildsTotal, GazetteerBuildDuration, GazetteerRows,
		ForecastRequestsTotal, RequestCoalescingHitsTotal, CacheStampedeDetectedTotal,
		CacheCleanupRemovedTotal,
		CacheWarmingTotal, CacheWarmingDurationSeconds, CacheWarmingErrorsTotal,
		ToolCallsTotal,
		RateLimitDeniedTotal,
	)
}

// CacheStatsFunc reports a cache's hit and miss counters and entry count.
type CacheStatsFunc func() (hits, misses uint64, size int)

// RegisterCacheStats exposes a named cache's counters. Registering the same
// name twice is a no-op.
func RegisterCacheStats(name string, stats CacheStatsFunc) {
	labels := prometheus.Labels{"cache": name}
	for _, c := range []prometheus.Collector{
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: "cacheHitsTotal", Help: "Cache hits", ConstLabels: labels},
			func() float64 { h, _, _ := stats(); return float64(h) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: "cacheMissesTotal", Help: "Cache misses (absent or expired)", ConstLabels: labels},
			func() float64 { _, m, _ := stats(); return float64(m) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "cacheEntries", Help: "Entries currently held", ConstLabels: labels},
			func() float64 { _, _, s := stats(); return float64(s) },
		),
	} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

// RegisterRateLimitGauges registers load and reject gauges over the given window.
// Call from main after config load.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting the rate-limited path in the sliding window",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
