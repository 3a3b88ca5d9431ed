package procmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BackendState represents the lifecycle state of the supervised backend
type BackendState int

const (
	// BackendStateUninitialized - nothing resolved yet
	BackendStateUninitialized BackendState = iota
	// BackendStateStarting - port resolved, child may be launching or warming up
	BackendStateStarting
	// BackendStateReadyWithProcess - startup complete and a child is attached
	BackendStateReadyWithProcess
	// BackendStateReadyWithoutProcess - startup complete, no child under our control
	BackendStateReadyWithoutProcess
	// BackendStateTerminated - handle cleared; absorbing
	BackendStateTerminated
)

// String returns the string representation of a BackendState
func (bs BackendState) String() string {
	switch bs {
	case BackendStateUninitialized:
		return "Uninitialized"
	case BackendStateStarting:
		return "Starting"
	case BackendStateReadyWithProcess:
		return "ReadyWithProcess"
	case BackendStateReadyWithoutProcess:
		return "ReadyWithoutProcess"
	case BackendStateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// IsReady returns true for both Ready variants
func (bs BackendState) IsReady() bool {
	return bs == BackendStateReadyWithProcess || bs == BackendStateReadyWithoutProcess
}

// Process is the OS-level handle the registry terminates.
//
// Terminate must deliver at most one termination request per call and
// treat an already-exited process as success.
type Process interface {
	// Pid returns the OS process id
	Pid() int

	// Terminate stops the process, waiting up to grace before force killing
	Terminate(ctx context.Context, grace time.Duration) error
}

// BackendHandle is a point-in-time copy of the registry's handle
type BackendHandle struct {
	Port       uint16
	Pid        int
	HasProcess bool
	StartedAt  time.Time
	State      BackendState
}

// Registry holds the single backend handle for the life of the application.
//
// All mutation happens under mu. The port is written once by Begin; the
// only later write to the process field is the one-shot clear performed by
// Terminate.
type Registry struct {
	mu sync.Mutex

	state     BackendState
	port      uint16
	portSet   bool
	process   Process
	startedAt time.Time

	// Configuration
	gracePeriod time.Duration
	metrics     MetricsCollector
	logger      *slog.Logger
	now         func() time.Time
}
