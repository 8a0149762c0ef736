package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate by endpoint (onecall, current, forecast, air_pollution, geo_direct, geo_reverse).
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s (upstream degradation), p99 near the 10s timeout.
	UpstreamDuration *prometheus.HistogramVec

	// Circuit breaker state per upstream endpoint: 0 closed, 1 half-open, 2 open.
	UpstreamCircuitState *prometheus.GaugeVec

	// Breaker transitions by endpoint and edge. Watch for: flapping between open and half-open.
	UpstreamCircuitTransitionsTotal *prometheus.CounterVec

	// Cache lookups by result (hit_metric, hit_imperial, miss).
	CacheLookupsTotal *prometheus.CounterVec

	// Entries evicted by sweep.
	CacheEvictionsTotal prometheus.Counter

	// Live entries after the last sweep or store.
	CacheEntries prometheus.Gauge

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Records assembled through the current+forecast fallback path.
	WeatherFallbackTotal prometheus.Counter

	// Optional fields that were degraded to a default (air_quality, city, ...).
	WeatherDegradedFieldsTotal *prometheus.CounterVec

	// Bulk favorites outcomes per favorite (cached, fetched, failed, skipped).
	FavoritesResultsTotal *prometheus.CounterVec

	// Requests that joined an in-flight upstream fetch instead of starting one.
	CoalescedRequestsTotal prometheus.Counter

	// Total weather lookups. Watch for: traffic volume, rate() for QPS.
	WeatherQueriesTotal prometheus.Counter

	// Per-location query count (allow-list; others go to "other").
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// City search requests by backing source (dataset, geocoder, none).
	CitySearchTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// trackedLocations is built from config; used to resolve location for metrics.
	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

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
			Help: "Total number of OpenWeather API calls by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "OpenWeather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	UpstreamCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstreamCircuitState",
			Help: "Circuit breaker state per upstream endpoint (0 closed, 1 half-open, 2 open)",
		},
		[]string{"endpoint"},
	)
	UpstreamCircuitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCircuitTransitionsTotal",
			Help: "Circuit breaker state transitions per upstream endpoint",
		},
		[]string{"endpoint", "from", "to"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Weather cache lookups by result",
		},
		[]string{"result"},
	)
	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Total number of expired cache entries removed by sweep",
		},
	)
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cacheEntries",
			Help: "Number of entries held by the weather cache",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	WeatherFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherFallbackTotal",
			Help: "Weather records assembled from the current and forecast fallback endpoints",
		},
	)
	WeatherDegradedFieldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherDegradedFieldsTotal",
			Help: "Optional weather fields replaced by their default after an upstream failure",
		},
		[]string{"field"},
	)
	FavoritesResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favoritesResultsTotal",
			Help: "Bulk favorites entries by outcome",
		},
		[]string{"result"},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Weather requests that shared an in-flight upstream fetch",
		},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups",
		},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	CitySearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citySearchTotal",
			Help: "City search requests by backing source",
		},
		[]string{"source"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamCircuitState, UpstreamCircuitTransitionsTotal,
		CacheLookupsTotal, CacheEvictionsTotal, CacheEntries,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		WeatherFallbackTotal, WeatherDegradedFieldsTotal, FavoritesResultsTotal, CoalescedRequestsTotal,
		WeatherQueriesTotal, WeatherQueriesByLocationTotal,
		CitySearchTotal,
		RateLimitDeniedTotal,
	)
}

// WindowCounter reports outcome counts over a sliding window.
type WindowCounter interface {
	RequestCount(window time.Duration) int
	DenialCount(window time.Duration) int
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call once from main after config load.
func RegisterRateLimitGauges(window time.Duration, counter WindowCounter) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(counter.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(counter.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordWeatherQuery records a weather query for the given location name.
func RecordWeatherQuery(location string) {
	WeatherQueriesTotal.Inc()
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if ok {
		WeatherQueriesByLocationTotal.WithLabelValues(loc).Inc()
	} else {
		WeatherQueriesByLocationTotal.WithLabelValues("other").Inc()
	}
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
