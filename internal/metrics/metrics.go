package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lunasched",
		Name:      "job_executions_total",
		Help:      "Total executions started, by job and terminal outcome.",
	}, []string{"job", "outcome"})

	SchedulerTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lunasched",
		Name:      "scheduler_ticks_total",
		Help:      "Total Scheduler tick loop iterations.",
	})

	SchedulerErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lunasched",
		Name:      "scheduler_errors_total",
		Help:      "Total unexpected errors during per-job tick evaluation.",
	})

	StoreErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lunasched",
		Name:      "store_errors_total",
		Help:      "Total JobStore/ExecutionStore/WindowStore faults.",
	})

	HookFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lunasched",
		Name:      "hook_failures_total",
		Help:      "Total on_success/on_failure hook commands that failed.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lunasched",
		Name:      "queue_depth",
		Help:      "Number of ExecRequests currently queued in the Dispatcher.",
	})

	JobDurationMillis = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lunasched",
		Name:      "job_duration_ms",
		Help:      "Execution wall-clock duration in milliseconds, by job.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"job"})

	// HTTP metrics, for the read-only transport/http mirror.

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lunasched",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lunasched",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

// Register registers every metric against prometheus.DefaultRegisterer.
func Register() {
	prometheus.MustRegister(
		JobExecutionsTotal,
		SchedulerTicksTotal,
		SchedulerErrorsTotal,
		StoreErrorsTotal,
		HookFailuresTotal,
		QueueDepth,
		JobDurationMillis,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer returns an *http.Server exposing /metrics via promhttp, the
// shape of the teacher's metrics.NewServer.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
