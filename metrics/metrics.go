// Package metrics provides Prometheus metrics for the NHANES API.
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Loader metrics:
//   - nhanes_fetch_total: Counter with dataset and status labels
//   - nhanes_fetch_duration_seconds: Histogram with dataset label
//   - nhanes_fetch_skipped_total: Counter of duplicate locations skipped
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (clients seen since the last cleanup)",
		},
	)

	LoaderFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhanes_fetch_total",
			Help: "NHANES file fetch attempts",
		},
		[]string{"dataset", "status"},
	)

	// Survey files run from a few KB to tens of MB
	LoaderFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nhanes_fetch_duration_seconds",
			Help:    "NHANES file download and parse time",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"dataset"},
	)

	LoaderSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhanes_fetch_skipped_total",
			Help: "Locations skipped because they were already attempted in the same load",
		},
		[]string{"dataset"},
	)

	DatasetRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nhanes_dataset_rows",
			Help: "Rows held for each loaded dataset",
		},
		[]string{"dataset"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(LoaderFetchTotal)
	prometheus.MustRegister(LoaderFetchDuration)
	prometheus.MustRegister(LoaderSkippedTotal)
	prometheus.MustRegister(DatasetRows)
}
