// Package metrics registers Prometheus instrumentation for the practice panel.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shsh_practice_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shsh_practice_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Upstream platform API
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shsh_practice_upstream_request_duration_seconds",
			Help:    "Platform API request duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "status"},
	)

	// Practice views
	LiveViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shsh_practice_live_views",
			Help: "Practice views currently connected",
		},
	)

	HistoryLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shsh_practice_history_loads_total",
			Help: "Chat history loads by direction and outcome",
		},
		[]string{"direction", "outcome"}, // outcome: ok, error, superseded, skipped
	)

	TimerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shsh_practice_timer_actions_total",
			Help: "Timer control actions",
		},
		[]string{"action"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shsh_practice_submissions_total",
			Help: "Answer submissions by outcome",
		},
		[]string{"outcome"}, // correct, incorrect, error, rate_limited
	)

	JournalWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shsh_practice_journal_write_failures_total",
			Help: "Activity journal writes that failed after retries",
		},
	)
)
