package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Includes the upstream call and the store write.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Open-Meteo call rate by outcome label.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Open-Meteo latency per call. Watch for: p99 near weather_api.timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Retry attempts. Stays at zero unless reliability.retry_max_attempts > 1.
	WeatherAPIRetriesTotal prometheus.Counter

	// Upstream failures by category (timeout, upstream_5xx, parsing, ...).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Store inserts by backend and outcome. Errors here never reach the caller.
	StoreWritesTotal *prometheus.CounterVec

	// Store insert latency by backend.
	StoreWriteDuration *prometheus.HistogramVec

	// Observations built, split by whether the weather code had a dedicated label.
	ObservationsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Scheduled ingestion runs per location by outcome.
	SchedulerRunsTotal *prometheus.CounterVec
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of Open-Meteo API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Open-Meteo API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherApiRetriesTotal",
			Help: "Total number of retry attempts for weather API calls",
		},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather API failures by error category",
		},
		[]string{"category"},
	)
	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeWritesTotal",
			Help: "Observation inserts by store backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
	StoreWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeWriteDurationSeconds",
			Help:    "Observation insert latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"backend"},
	)
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observationsTotal",
			Help: "Observations built; conditionsKnown=false means the code fell back to the default label",
		},
		[]string{"conditionsKnown"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	SchedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schedulerRunsTotal",
			Help: "Scheduled ingestions per location by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIRetriesTotal, WeatherAPIErrorsTotal,
		StoreWritesTotal, StoreWriteDuration,
		ObservationsTotal,
		RateLimitDeniedTotal,
		SchedulerRunsTotal,
	)
}

// RecordStoreWrite counts one insert attempt against backend.
func RecordStoreWrite(backend string, err error, seconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	StoreWritesTotal.WithLabelValues(backend, outcome).Inc()
	StoreWriteDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordObservation counts a built observation.
func RecordObservation(conditionsKnown bool) {
	label := "false"
	if conditionsKnown {
		label = "true"
	}
	ObservationsTotal.WithLabelValues(label).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
