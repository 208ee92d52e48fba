package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	TelemetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "towtrace_telemetry_total",
			Help: "Telemetry records received, by outcome",
		},
		[]string{"outcome"},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "towtrace_ingest_duration_seconds",
			Help:    "Telemetry ingest duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	// Interval state machine metrics
	TransitionRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "towtrace_transition_retries_total",
			Help: "Duty status transitions retried after a conflict or storage error",
		},
		[]string{"reason"},
	)

	DeviceCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "towtrace_device_cache_lookups_total",
			Help: "Device resolution cache lookups, by result",
		},
		[]string{"result"},
	)

	// Compliance metrics
	// Counted once per summary read, so a driver polled N times counts N times
	SummaryViolationsObserved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "towtrace_summary_violations_observed_total",
			Help: "Violations reported by compliance summary reads",
		},
		[]string{"type"},
	)

	LiveFeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "towtrace_live_feed_clients",
			Help: "Number of connected dispatcher websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TelemetryTotal,
		IngestDuration,
		TransitionRetries,
		DeviceCacheLookups,
		SummaryViolationsObserved,
		LiveFeedClients,
	)
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
