package procmgr

import (
	"log/slog"
	"time"
)

// Option configures the Registry
type Option func(*Registry)

// WithGracePeriod sets how long Terminate waits after SIGTERM before force killing
func WithGracePeriod(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.gracePeriod = d
		}
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(r *Registry) {
		if mc != nil {
			r.metrics = mc
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source used for StartedAt
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}
