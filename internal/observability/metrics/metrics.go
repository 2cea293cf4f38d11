// Package metrics provides Prometheus instrumentation for xdeploy.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	initOnce    sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Run metrics
	runsTotal        *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec

	// Deployment metrics
	deploymentsTotal   *prometheus.CounterVec
	deployAttemptsHist *prometheus.HistogramVec

	// Verification metrics
	verificationsTotal        *prometheus.CounterVec
	verificationAttemptsTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle recording.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	initOnce.Do(register)
}

func register() {
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xdeploy_runs_total",
			Help: "Total number of orchestration runs by outcome",
		},
		[]string{"result"},
	)

	// Pipelines include the verification settle delay and polling, so the
	// buckets reach well past the HTTP defaults
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xdeploy_pipeline_duration_seconds",
			Help:    "Duration of one chain pipeline by final state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"chain", "state"},
	)

	deploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xdeploy_deployments_total",
			Help: "Total number of deployments by chain and outcome",
		},
		[]string{"chain", "status"},
	)

	deployAttemptsHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xdeploy_deploy_attempts",
			Help:    "Number of attempts a deployment needed",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"chain"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xdeploy_verifications_total",
			Help: "Total number of verification tasks by explorer and outcome",
		},
		[]string{"chain", "explorer", "result"},
	)

	verificationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xdeploy_verification_attempts_total",
			Help: "Total number of explorer submissions by outcome",
		},
		[]string{"explorer", "outcome"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
