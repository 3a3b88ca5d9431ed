package launcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jrepp/prism-sidecar/pkg/procmgr"
)

// Builder provides a fluent interface for constructing a Supervisor.
//
// Usage:
//
//	supervisor, err := launcher.NewBuilder().
//	    WithResourceDir("/Applications/App.app/Contents/Resources").
//	    WithEphemeralPort().
//	    WithReadinessTimeout(60 * time.Second).
//	    Build()
//
// All builder methods return the builder for method chaining. The first
// invalid setting is remembered and reported by Build.
type Builder struct {
	config *Config
	opts   []SupervisorOption
	err    error
}

// NewBuilder creates a new Builder with sensible defaults.
//
// Defaults:
//   - Mode: packaged
//   - PortPolicy: ephemeral (fixed port 8765 kept for development)
//   - BinaryName: "backend-server"
//   - HealthPath: "/health"
//   - PollInterval: 200ms
//   - ReadinessTimeout: 60 seconds
//   - GracePeriod: 5 seconds
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithMode sets development or packaged mode.
func (b *Builder) WithMode(mode Mode) *Builder {
	if b.err != nil {
		return b
	}
	switch mode {
	case ModeDevelopment, ModePackaged:
	default:
		b.err = fmt.Errorf("unknown mode %q", mode)
		return b
	}
	b.config.Mode = mode
	return b
}

// WithDevelopmentMode expects a developer-run backend on the fixed port.
//
// Example:
//
//	builder.WithDevelopmentMode(8765)
func (b *Builder) WithDevelopmentMode(port uint16) *Builder {
	return b.WithMode(ModeDevelopment).WithFixedPort(port)
}

// WithFixedPort always uses port so external clients can reconnect across restarts.
func (b *Builder) WithFixedPort(port uint16) *Builder {
	if b.err != nil {
		return b
	}
	if port == 0 {
		b.err = fmt.Errorf("fixed port must be between 1 and 65535")
		return b
	}
	b.config.PortPolicy = PortPolicyFixed
	b.config.Port = port
	return b
}

// WithEphemeralPort lets the OS choose a free loopback port at startup.
func (b *Builder) WithEphemeralPort() *Builder {
	if b.err != nil {
		return b
	}
	b.config.PortPolicy = PortPolicyEphemeral
	return b
}

// WithResourceDir sets the directory the backend binary is bundled in.
func (b *Builder) WithResourceDir(dir string) *Builder {
	if b.err != nil {
		return b
	}
	if dir == "" {
		b.err = fmt.Errorf("resource directory cannot be empty")
		return b
	}
	b.config.ResourceDir = dir
	return b
}

// WithBinaryName sets the bundled backend executable name.
func (b *Builder) WithBinaryName(name string) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" {
		b.err = fmt.Errorf("binary name cannot be empty")
		return b
	}
	b.config.BinaryName = name
	return b
}

// WithArgs sets arguments placed before --port.
func (b *Builder) WithArgs(args ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.config.Args = append([]string(nil), args...)
	return b
}

// WithEnv adds one environment variable for the backend.
func (b *Builder) WithEnv(key, value string) *Builder {
	if b.err != nil {
		return b
	}
	if key == "" {
		b.err = fmt.Errorf("environment variable name cannot be empty")
		return b
	}
	if b.config.Env == nil {
		b.config.Env = make(map[string]string)
	}
	b.config.Env[key] = value
	return b
}

// WithWorkDir sets the backend's working directory.
func (b *Builder) WithWorkDir(dir string) *Builder {
	if b.err != nil {
		return b
	}
	b.config.WorkDir = dir
	return b
}

// WithHealthPath sets the readiness endpoint path.
func (b *Builder) WithHealthPath(path string) *Builder {
	if b.err != nil {
		return b
	}
	if len(path) == 0 || path[0] != '/' {
		b.err = fmt.Errorf("health path must start with /, got %q", path)
		return b
	}
	b.config.HealthPath = path
	return b
}

// WithPollInterval sets the delay between health polls.
//
// Lower values: backend seen sooner, more requests during warm-up
// Higher values: fewer requests, slower startup
func (b *Builder) WithPollInterval(interval time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if interval <= 0 {
		b.err = fmt.Errorf("poll interval must be positive, got %v", interval)
		return b
	}
	b.config.PollInterval = interval
	return b
}

// WithReadinessTimeout sets how long startup waits for the backend.
func (b *Builder) WithReadinessTimeout(timeout time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if timeout <= 0 {
		b.err = fmt.Errorf("readiness timeout must be positive, got %v", timeout)
		return b
	}
	b.config.ReadinessTimeout = timeout
	return b
}

// WithRequestTimeout bounds each individual health request.
func (b *Builder) WithRequestTimeout(timeout time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if timeout <= 0 {
		b.err = fmt.Errorf("request timeout must be positive, got %v", timeout)
		return b
	}
	b.config.RequestTimeout = timeout
	return b
}

// WithGracePeriod sets how long termination waits after SIGTERM before killing.
// Zero kills immediately.
func (b *Builder) WithGracePeriod(period time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if period < 0 {
		b.err = fmt.Errorf("grace period cannot be negative, got %v", period)
		return b
	}
	b.config.GracePeriod = period
	return b
}

// WithLogger sets the structured logger used by the supervisor.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if b.err != nil {
		return b
	}
	b.opts = append(b.opts, WithLogger(logger))
	return b
}

// WithMetrics sets the metrics collector.
//
// Example:
//
//	builder.WithMetrics(procmgr.NewPrometheusMetricsCollector("prism_sidecar"))
func (b *Builder) WithMetrics(mc procmgr.MetricsCollector) *Builder {
	if b.err != nil {
		return b
	}
	b.opts = append(b.opts, WithMetrics(mc))
	return b
}

// WithLineSink sets where child output lines go.
func (b *Builder) WithLineSink(sink LineSink) *Builder {
	if b.err != nil {
		return b
	}
	b.opts = append(b.opts, WithLineSink(sink))
	return b
}

// WithEventPublisher sets where lifecycle events go.
func (b *Builder) WithEventPublisher(p EventPublisher) *Builder {
	if b.err != nil {
		return b
	}
	b.opts = append(b.opts, WithEventPublisher(p))
	return b
}

// WithConfig directly sets the configuration object.
//
// Note: This replaces all previous configuration settings.
func (b *Builder) WithConfig(config *Config) *Builder {
	if b.err != nil {
		return b
	}
	if config == nil {
		b.err = fmt.Errorf("config cannot be nil")
		return b
	}
	b.config = config
	return b
}

// Build validates the configuration and creates the Supervisor.
//
// Example:
//
//	supervisor, err := launcher.NewBuilder().
//	    WithResourceDir(resources).
//	    Build()
//	if err != nil {
//	    log.Fatalf("Failed to build supervisor: %v", err)
//	}
//	defer supervisor.OnShutdownTrigger()
func (b *Builder) Build() (*Supervisor, error) {
	if b.err != nil {
		return nil, fmt.Errorf("builder validation failed: %w", b.err)
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	supervisor, err := NewSupervisor(b.config, b.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor: %w", err)
	}

	return supervisor, nil
}

// MustBuild creates the Supervisor and panics on error.
func (b *Builder) MustBuild() *Supervisor {
	supervisor, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build supervisor: %v", err))
	}
	return supervisor
}

// GetConfig returns the current configuration without building the supervisor.
func (b *Builder) GetConfig() *Config {
	return b.config
}
