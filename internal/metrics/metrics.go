// Package metrics exposes Prometheus collectors for the indexing service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	indexerBusinessesTotal *prometheus.CounterVec
	indexerRunsTotal       *prometheus.CounterVec
	adapterRequestsTotal   *prometheus.CounterVec
	activeJobs             prometheus.Gauge
	rateLimitWaitSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		indexerBusinessesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_businesses_total",
				Help: "Total businesses processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		indexerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_runs_total",
				Help: "Total indexing runs, labeled by final status.",
			},
			[]string{"status"},
		)

		adapterRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adapter_requests_total",
				Help: "Total upstream API requests, labeled by source and status class.",
			},
			[]string{"source", "status"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_active_jobs",
				Help: "Number of indexing jobs currently pending or running.",
			},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adapter_rate_limit_wait_seconds",
				Help:    "Histogram of pacing delays before upstream requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBusiness increments the per-source outcome counter.
func ObserveBusiness(source, outcome string) {
	if indexerBusinessesTotal == nil {
		return
	}
	indexerBusinessesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRun increments the run counter for the given final status.
func ObserveRun(status string) {
	if indexerRunsTotal == nil {
		return
	}
	indexerRunsTotal.WithLabelValues(status).Inc()
}

// ObserveAdapterRequest increments the upstream request counter.
func ObserveAdapterRequest(source, status string) {
	if adapterRequestsTotal == nil {
		return
	}
	adapterRequestsTotal.WithLabelValues(source, status).Inc()
}

// IncActiveJobs increments the active jobs gauge.
func IncActiveJobs() {
	if activeJobs == nil {
		return
	}
	activeJobs.Inc()
}

// DecActiveJobs decrements the active jobs gauge.
func DecActiveJobs() {
	if activeJobs == nil {
		return
	}
	activeJobs.Dec()
}

// ObserveRateLimitWait records the duration of a pacing delay.
func ObserveRateLimitWait(source string, duration time.Duration) {
	if rateLimitWaitSeconds == nil {
		return
	}
	rateLimitWaitSeconds.WithLabelValues(source).Observe(duration.Seconds())
}
