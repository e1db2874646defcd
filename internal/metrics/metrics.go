// Package metrics exposes Prometheus collectors for the radar pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	adapterRunsTotal           *prometheus.CounterVec
	postsIngestedTotal         *prometheus.CounterVec
	postsDuplicateTotal        *prometheus.CounterVec
	retryAttemptsTotal         *prometheus.CounterVec
	classificationsTotal       *prometheus.CounterVec
	modelQueriesTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pacingDelaySeconds         *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		adapterRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_adapter_runs_total",
				Help: "Total adapter and classifier runs, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		postsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_posts_ingested_total",
				Help: "Posts newly stored, labeled by source.",
			},
			[]string{"source"},
		)

		postsDuplicateTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_posts_duplicate_total",
				Help: "Candidate posts rejected as already stored, labeled by source.",
			},
			[]string{"source"},
		)

		retryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_retry_attempts_total",
				Help: "Retries scheduled after a failed remote call, labeled by operation.",
			},
			[]string{"operation"},
		)

		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_classifications_total",
				Help: "Posts sent to the classifier, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		modelQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_model_queries_total",
				Help: "Keyword suggestion queries, labeled by model and outcome.",
			},
			[]string{"model", "outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_pacing_delay_seconds",
				Help:    "Histogram of pacing waits between requests to one upstream.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
			},
			[]string{"upstream"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdapterRun records one batch run.
func ObserveAdapterRun(source string, success bool, stored int) {
	Init()
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	adapterRunsTotal.WithLabelValues(source, outcome).Inc()
	if stored > 0 {
		postsIngestedTotal.WithLabelValues(source).Add(float64(stored))
	}
}

// ObserveDuplicate counts a candidate that was already stored.
func ObserveDuplicate(source string) {
	Init()
	postsDuplicateTotal.WithLabelValues(source).Inc()
}

// ObserveRetry counts a scheduled retry for operation.
func ObserveRetry(operation string) {
	Init()
	retryAttemptsTotal.WithLabelValues(operation).Inc()
}

// ObserveClassification counts one classifier call by outcome (classified, skipped, failed).
func ObserveClassification(outcome string) {
	Init()
	classificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelQuery counts one consensus model query.
func ObserveModelQuery(model string, success bool) {
	Init()
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	modelQueriesTotal.WithLabelValues(model, outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(upstream string, duration time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(upstream).Observe(duration.Seconds())
}
