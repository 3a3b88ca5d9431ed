package procmgr

import (
	"context"
	"errors"
	"time"
)

// MetricsCollector defines the interface for collecting supervisor metrics
type MetricsCollector interface {
	// BackendStateTransition records a registry state transition
	BackendStateTransition(fromState, toState BackendState)

	// StartupDuration records how long OnStartup took and how it ended
	StartupDuration(outcome string, duration time.Duration)

	// ReadinessProbe records the number of polls and total wait of a readiness probe
	ReadinessProbe(attempts int, duration time.Duration, err error)

	// OutputLine records one forwarded line of child output
	OutputLine(stream string)

	// Termination records a terminate call and whether it signalled a child
	Termination(result string, duration time.Duration)
}

// Termination results
const (
	TerminationSignalled = "signalled"
	TerminationNoProcess = "no_process"
	TerminationNoop      = "noop"
	TerminationError     = "error"
)

// Readiness probe statuses
const (
	ReadinessSuccess   = "success"
	ReadinessTimeout   = "timeout"
	ReadinessCancelled = "cancelled"
)

// ReadinessStatus classifies the result of a readiness probe. A probe whose
// context was cancelled or expired is "cancelled", any other error "timeout".
func ReadinessStatus(err error) string {
	switch {
	case err == nil:
		return ReadinessSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReadinessCancelled
	default:
		return ReadinessTimeout
	}
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) BackendStateTransition(fromState, toState BackendState) {}
func (n *noopMetricsCollector) StartupDuration(outcome string, duration time.Duration)  {}
func (n *noopMetricsCollector) ReadinessProbe(attempts int, duration time.Duration, err error) {
}
func (n *noopMetricsCollector) OutputLine(stream string)                          {}
func (n *noopMetricsCollector) Termination(result string, duration time.Duration) {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
