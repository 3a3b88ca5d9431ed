package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jrepp/prism-sidecar/pkg/procmgr"
)

// drainWindow bounds how long shutdown waits for the last output lines
const drainWindow = 2 * time.Second

// Supervisor owns the backend for the life of the host application.
//
// The host calls OnStartup once before showing its window, GetBackendPort
// whenever the UI needs to address the backend, and OnShutdownTrigger on
// every shutdown-worthy event.
type Supervisor struct {
	config   *Config
	registry *procmgr.Registry
	metrics  procmgr.MetricsCollector
	events   EventPublisher
	sink     LineSink
	logger   *slog.Logger
	runID    string

	mu      sync.Mutex
	started bool
	process *Process

	// stopping is set by the first shutdown trigger; later ones return at once
	stopping atomic.Bool
	// stopped is closed by the shutdown trigger that terminated the registry
	stopped chan struct{}
}

// SupervisorOption configures a Supervisor
type SupervisorOption func(*Supervisor)

// WithRegistry injects the lifecycle registry (tests use this to share or inspect it)
func WithRegistry(r *procmgr.Registry) SupervisorOption {
	return func(s *Supervisor) {
		s.registry = r
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(mc procmgr.MetricsCollector) SupervisorOption {
	return func(s *Supervisor) {
		s.metrics = mc
	}
}

// WithEventPublisher sets where lifecycle events go
func WithEventPublisher(p EventPublisher) SupervisorOption {
	return func(s *Supervisor) {
		s.events = p
	}
}

// WithLineSink sets where child output lines go
func WithLineSink(sink LineSink) SupervisorOption {
	return func(s *Supervisor) {
		s.sink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// NewSupervisor creates a supervisor for config
func NewSupervisor(config *Config, opts ...SupervisorOption) (*Supervisor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		config:  config,
		runID:   uuid.NewString(),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "supervisor", "run_id", s.runID)

	if s.metrics == nil {
		s.metrics = procmgr.NewNoopMetricsCollector()
	}
	if s.events == nil {
		s.events = &SlogEventPublisher{Logger: s.logger}
	}
	if s.sink == nil {
		s.sink = NewSlogSink(s.logger, config.BinaryName)
	}
	s.sink = &metricsSink{next: s.sink, metrics: s.metrics}

	if s.registry == nil {
		s.registry = procmgr.NewRegistry(
			procmgr.WithGracePeriod(config.GracePeriod),
			procmgr.WithMetricsCollector(s.metrics),
			procmgr.WithLogger(s.logger),
		)
	}

	return s, nil
}

// OnStartup resolves the port, launches the backend and waits for it to
// become ready. A returned error is fatal and should abort application
// launch; any child spawned before the failure has already been stopped.
// A missing bundled binary is not an error: startup succeeds without a
// backend attached.
func (s *Supervisor) OnStartup(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted(s.registry.State().String())
	}
	s.started = true
	s.mu.Unlock()

	start := time.Now()
	err := s.startup(ctx)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.StartupDuration(outcome, time.Since(start))

	return err
}

func (s *Supervisor) startup(ctx context.Context) error {
	s.publish(ctx, EventStarting, "backend startup", map[string]string{
		"mode":        string(s.config.Mode),
		"port_policy": string(s.config.EffectivePortPolicy()),
	})

	assignment, err := ResolvePort(s.config.EffectivePortPolicy(), s.config.Port)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.logger.Info("resolved backend port", "assignment", assignment.String())

	if err := s.registry.Begin(assignment.Port); err != nil {
		return s.fail(ctx, s.lifecycleError(err))
	}

	portMeta := map[string]string{"port": strconv.Itoa(int(assignment.Port))}

	if s.config.Mode == ModeDevelopment {
		s.logger.Info("development mode, expecting an externally started backend", "port", assignment.Port)
		return s.ready(ctx, portMeta)
	}

	execPath, err := ResolveExecutable(s.config.ResourceDir, s.config.BinaryName)
	if err != nil {
		if IsErrorCode(err, ErrorCodeExecutableNotFound) {
			s.logger.Warn("backend binary not bundled, continuing without a backend",
				"path", execPath,
				"error", err)
			s.publish(ctx, EventDegraded, "running without a backend", map[string]string{
				"port": portMeta["port"],
				"path": execPath,
			})
			return s.ready(ctx, portMeta)
		}
		return s.fail(ctx, err)
	}

	proc, err := Launch(LaunchSpec{
		Name:    s.config.BinaryName,
		Path:    execPath,
		Args:    s.config.Args,
		Env:     s.config.Env,
		WorkDir: s.config.WorkDir,
		Port:    assignment.Port,
	}, s.sink, s.logger)
	if err != nil {
		return s.fail(ctx, err)
	}

	s.mu.Lock()
	s.process = proc
	s.mu.Unlock()

	if err := s.registry.Attach(ctx, proc); err != nil {
		if !errors.Is(err, procmgr.ErrTerminated) {
			// The registry did not take ownership, so stop the child here
			_ = proc.Terminate(ctx, s.config.GracePeriod)
		}
		return s.fail(ctx, s.lifecycleError(err))
	}
	s.publish(ctx, EventLaunched, "backend process launched", map[string]string{
		"port": portMeta["port"],
		"pid":  strconv.Itoa(proc.Pid()),
		"path": execPath,
	})

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-probeCtx.Done():
		}
	}()

	probe := NewReadinessProbe(assignment.Port, s.config, s.logger)
	probeStart := time.Now()
	attempts, err := probe.Wait(probeCtx)
	s.metrics.ReadinessProbe(attempts, time.Since(probeStart), err)
	if err != nil {
		if s.registry.State() == procmgr.BackendStateTerminated && ctx.Err() == nil {
			err = ErrSupervisorTerminated(err)
		}
		return s.fail(ctx, err)
	}

	portMeta["pid"] = strconv.Itoa(proc.Pid())
	portMeta["attempts"] = strconv.Itoa(attempts)
	return s.ready(ctx, portMeta)
}

func (s *Supervisor) ready(ctx context.Context, metadata map[string]string) error {
	state, err := s.registry.MarkReady()
	if err != nil {
		return s.fail(ctx, s.lifecycleError(err))
	}
	metadata["state"] = state.String()
	s.publish(ctx, EventReady, "backend startup complete", metadata)
	return nil
}

// fail stops anything already launched and reports the fatal error
func (s *Supervisor) fail(ctx context.Context, err error) error {
	s.registry.Terminate(ctx)
	s.drainOutput()

	s.logger.Error("backend startup failed", "error", err)
	s.publish(ctx, EventFailed, "backend startup failed", map[string]string{
		"error": err.Error(),
		"code":  string(GetErrorCode(err)),
	})
	return err
}

func (s *Supervisor) lifecycleError(err error) error {
	if errors.Is(err, procmgr.ErrTerminated) {
		return ErrSupervisorTerminated(err)
	}
	return fmt.Errorf("backend lifecycle: %w", err)
}

// OnShutdownTrigger stops the backend. It is safe to call any number of
// times from any goroutine; only the first call signals the child.
func (s *Supervisor) OnShutdownTrigger() {
	_ = s.Shutdown(context.Background())
}

// Shutdown is OnShutdownTrigger with a caller-supplied context bounding the
// grace period. It always returns nil; termination is best effort.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s.registry.State() == procmgr.BackendStateTerminated {
		return nil
	}
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}
	s.publish(ctx, EventStopping, "shutdown triggered", nil)

	if !s.registry.Terminate(ctx) {
		return nil
	}
	close(s.stopped)

	s.drainOutput()

	port, _ := s.registry.Port()
	s.publish(ctx, EventStopped, "backend stopped", map[string]string{
		"port": strconv.Itoa(int(port)),
	})
	return nil
}

// drainOutput waits for the last buffered lines so no pump goroutine leaks
func (s *Supervisor) drainOutput() {
	s.mu.Lock()
	proc := s.process
	s.mu.Unlock()

	if proc == nil {
		return
	}
	if !proc.DrainOutput(drainWindow) {
		s.logger.Warn("backend output did not drain", "pid", proc.Pid())
	}
}

func (s *Supervisor) publish(ctx context.Context, eventType, message string, metadata map[string]string) {
	if err := s.events.ReportLifecycleEvent(ctx, eventType, message, metadata); err != nil {
		s.logger.Debug("lifecycle event not delivered", "event", eventType, "error", err)
	}
}

// GetBackendPort returns the resolved port. It never fails: after startup
// it is the port whether or not a child is running, before startup it is 0.
func (s *Supervisor) GetBackendPort() uint16 {
	port, _ := s.registry.Port()
	return port
}

// HealthURL returns the health endpoint of the backend (empty before startup)
func (s *Supervisor) HealthURL() string {
	port, ok := s.registry.Port()
	if !ok {
		return ""
	}
	return HealthURL(port, s.config.HealthPath)
}

// State returns the registry lifecycle state
func (s *Supervisor) State() procmgr.BackendState {
	return s.registry.State()
}

// Handle returns a snapshot of the backend handle
func (s *Supervisor) Handle() procmgr.BackendHandle {
	return s.registry.Handle()
}

// Registry returns the lifecycle registry
func (s *Supervisor) Registry() *procmgr.Registry {
	return s.registry
}

// RunID identifies this supervisor instance in logs and events
func (s *Supervisor) RunID() string {
	return s.runID
}

// Config returns the supervisor configuration
func (s *Supervisor) Config() *Config {
	return s.config
}

// metricsSink counts lines per stream before forwarding them
type metricsSink struct {
	next    LineSink
	metrics procmgr.MetricsCollector
}

func (m *metricsSink) HandleLine(line OutputLine) {
	m.metrics.OutputLine(line.Stream.String())
	m.next.HandleLine(line)
}
