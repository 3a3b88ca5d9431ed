package procmgr

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	// State transition metrics
	stateTransitions *prometheus.CounterVec
	state            prometheus.Gauge

	// Startup metrics
	startupDuration   *prometheus.HistogramVec
	readinessAttempts *prometheus.HistogramVec
	readinessDuration *prometheus.HistogramVec

	// Output metrics
	outputLines *prometheus.CounterVec

	// Termination metrics
	terminations        *prometheus.CounterVec
	terminationDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "prism_sidecar"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_state_transitions_total",
			Help:      "Total number of backend lifecycle state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pmc.state = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_state",
			Help:      "Current backend lifecycle state (0=Uninitialized ... 4=Terminated)",
		},
	)

	pmc.startupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "startup_duration_seconds",
			Help:      "Duration of supervisor startup",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	pmc.readinessAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_probe_attempts",
			Help:      "Number of health polls issued per readiness probe",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 300},
		},
		[]string{"status"},
	)

	pmc.readinessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_probe_duration_seconds",
			Help:      "Time spent waiting for the backend health endpoint",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	pmc.outputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Total number of child output lines forwarded to the log",
		},
		[]string{"stream"},
	)

	pmc.terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Total number of terminate calls by result",
		},
		[]string{"result"},
	)

	pmc.terminationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "termination_duration_seconds",
			Help:      "Duration of terminate calls",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pmc.registry.MustRegister(
		pmc.stateTransitions,
		pmc.state,
		pmc.startupDuration,
		pmc.readinessAttempts,
		pmc.readinessDuration,
		pmc.outputLines,
		pmc.terminations,
		pmc.terminationDuration,
	)

	return pmc
}

// BackendStateTransition records a state transition
func (pmc *PrometheusMetricsCollector) BackendStateTransition(fromState, toState BackendState) {
	pmc.stateTransitions.WithLabelValues(
		fromState.String(),
		toState.String(),
	).Inc()
	pmc.state.Set(float64(toState))
}

// StartupDuration records the duration of OnStartup
func (pmc *PrometheusMetricsCollector) StartupDuration(outcome string, duration time.Duration) {
	pmc.startupDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ReadinessProbe records the attempts and wait time of a readiness probe
func (pmc *PrometheusMetricsCollector) ReadinessProbe(attempts int, duration time.Duration, err error) {
	status := ReadinessStatus(err)

	pmc.readinessAttempts.WithLabelValues(status).Observe(float64(attempts))
	pmc.readinessDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// OutputLine records one forwarded output line
func (pmc *PrometheusMetricsCollector) OutputLine(stream string) {
	pmc.outputLines.WithLabelValues(stream).Inc()
}

// Termination records a terminate call
func (pmc *PrometheusMetricsCollector) Termination(result string, duration time.Duration) {
	pmc.terminations.WithLabelValues(result).Inc()
	pmc.terminationDuration.Observe(duration.Seconds())
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
