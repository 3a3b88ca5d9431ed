package launcher

import (
	"context"
	"log/slog"
	"sort"
)

// Lifecycle event types reported by the supervisor
const (
	EventStarting = "starting" // startup began
	EventLaunched = "launched" // child spawned
	EventReady    = "ready"    // backend reachable, or startup finished without one
	EventDegraded = "degraded" // running without a backend (missing binary)
	EventFailed   = "failed"   // startup aborted
	EventStopping = "stopping" // shutdown trigger received
	EventStopped  = "stopped"  // child terminated and output drained
)

// EventPublisher defines the interface for publishing lifecycle events to
// the host shell, which may surface them in its UI.
type EventPublisher interface {
	// ReportLifecycleEvent sends a lifecycle event
	//
	// Parameters:
	//   ctx: Context for the operation
	//   eventType: Type of event (starting, ready, degraded, stopped, ...)
	//   message: Human-readable description of the event
	//   metadata: Additional context (port, pid, error, ...)
	//
	// Returns error if the event could not be delivered.
	ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error
}

// NoopEventPublisher discards events
type NoopEventPublisher struct{}

// ReportLifecycleEvent does nothing
func (n *NoopEventPublisher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	return nil
}

// SlogEventPublisher writes lifecycle events to a structured logger
type SlogEventPublisher struct {
	Logger *slog.Logger
}

// ReportLifecycleEvent logs the event; failed and degraded events are warnings
func (p *SlogEventPublisher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	switch eventType {
	case EventFailed:
		level = slog.LevelError
	case EventDegraded:
		level = slog.LevelWarn
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, 2+2*len(keys))
	attrs = append(attrs, "event", eventType)
	for _, k := range keys {
		attrs = append(attrs, k, metadata[k])
	}

	logger.Log(ctx, level, message, attrs...)
	return nil
}
