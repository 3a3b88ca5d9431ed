package procmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrTerminated is returned when the registry has already been terminated
	ErrTerminated = errors.New("backend registry terminated")

	// ErrInvalidTransition is returned for out-of-order lifecycle calls
	ErrInvalidTransition = errors.New("invalid backend state transition")
)

// NewRegistry creates an empty registry in the Uninitialized state
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		state:       BackendStateUninitialized,
		gracePeriod: 5 * time.Second,
		metrics:     NewNoopMetricsCollector(),
		logger:      slog.Default(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With("component", "registry")

	return r
}

// Begin publishes the resolved port and moves Uninitialized -> Starting.
// The port is write-once.
func (r *Registry) Begin(port uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == BackendStateTerminated {
		return ErrTerminated
	}
	if r.state != BackendStateUninitialized {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, r.state)
	}

	r.port = port
	r.portSet = true
	r.startedAt = r.now()
	r.transitionLocked(BackendStateStarting)

	return nil
}

// Attach stores the launched child while Starting.
//
// If the registry was terminated while the child was being spawned, the
// child is terminated immediately and ErrTerminated is returned so that
// nothing outlives a shutdown trigger.
func (r *Registry) Attach(ctx context.Context, p Process) error {
	if p == nil {
		return fmt.Errorf("attach: nil process")
	}

	r.mu.Lock()
	switch {
	case r.state == BackendStateTerminated:
		grace := r.gracePeriod
		r.mu.Unlock()

		r.logger.Warn("process attached after termination, stopping it", "pid", p.Pid())
		if err := p.Terminate(ctx, grace); err != nil {
			r.logger.Debug("late process termination error", "pid", p.Pid(), "error", err)
		}
		return ErrTerminated

	case r.state != BackendStateStarting:
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: attach in %s", ErrInvalidTransition, state)

	case r.process != nil:
		r.mu.Unlock()
		return fmt.Errorf("%w: process already attached", ErrInvalidTransition)
	}

	r.process = p
	r.mu.Unlock()

	r.logger.Info("process attached", "pid", p.Pid())
	return nil
}

// MarkReady moves Starting -> Ready, choosing the variant from whether a
// process is attached.
func (r *Registry) MarkReady() (BackendState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == BackendStateTerminated {
		return r.state, ErrTerminated
	}
	if r.state != BackendStateStarting {
		return r.state, fmt.Errorf("%w: ready from %s", ErrInvalidTransition, r.state)
	}

	next := BackendStateReadyWithoutProcess
	if r.process != nil {
		next = BackendStateReadyWithProcess
	}
	r.transitionLocked(next)

	return next, nil
}

// Terminate clears the process handle and stops the child.
//
// Only the first call does anything; it returns true. Every other call,
// concurrent or later, observes the Terminated state and returns false.
// Errors from the OS are logged and swallowed.
func (r *Registry) Terminate(ctx context.Context) bool {
	start := time.Now()

	r.mu.Lock()
	if r.state == BackendStateTerminated {
		r.mu.Unlock()
		r.metrics.Termination(TerminationNoop, time.Since(start))
		return false
	}

	p := r.process
	r.process = nil
	grace := r.gracePeriod
	r.transitionLocked(BackendStateTerminated)
	r.mu.Unlock()

	if p == nil {
		r.logger.Info("terminated with no process attached")
		r.metrics.Termination(TerminationNoProcess, time.Since(start))
		return true
	}

	r.logger.Info("terminating backend process", "pid", p.Pid(), "grace_period", grace)
	if err := p.Terminate(ctx, grace); err != nil {
		r.logger.Warn("backend termination reported an error", "pid", p.Pid(), "error", err)
		r.metrics.Termination(TerminationError, time.Since(start))
		return true
	}

	r.metrics.Termination(TerminationSignalled, time.Since(start))
	return true
}

// Port returns the resolved port; ok is false until Begin has run
func (r *Registry) Port() (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port, r.portSet
}

// State returns the current lifecycle state
func (r *Registry) State() BackendState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HasProcess returns true while a child is attached
func (r *Registry) HasProcess() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.process != nil
}

// Handle returns a snapshot of the backend handle
func (r *Registry) Handle() BackendHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := BackendHandle{
		Port:      r.port,
		StartedAt: r.startedAt,
		State:     r.state,
	}
	if r.process != nil {
		h.HasProcess = true
		h.Pid = r.process.Pid()
	}
	return h
}

// GracePeriod returns the configured termination grace period
func (r *Registry) GracePeriod() time.Duration {
	return r.gracePeriod
}

// transitionLocked must be called with mu held
func (r *Registry) transitionLocked(next BackendState) {
	prev := r.state
	if prev == next {
		return
	}
	r.state = next
	r.metrics.BackendStateTransition(prev, next)
	r.logger.Debug("backend state transition", "from", prev.String(), "to", next.String())
}
