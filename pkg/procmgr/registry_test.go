package procmgr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess counts termination requests instead of signalling an OS process
type fakeProcess struct {
	pid        int
	terminated atomic.Int32
	delay      time.Duration
	err        error

	mu    sync.Mutex
	grace time.Duration
}

func (fp *fakeProcess) Pid() int { return fp.pid }

func (fp *fakeProcess) Terminate(ctx context.Context, grace time.Duration) error {
	fp.terminated.Add(1)
	fp.mu.Lock()
	fp.grace = grace
	fp.mu.Unlock()

	if fp.delay > 0 {
		select {
		case <-time.After(fp.delay):
		case <-ctx.Done():
		}
	}
	return fp.err
}

func (fp *fakeProcess) count() int {
	return int(fp.terminated.Load())
}

func startedRegistry(t *testing.T, p Process, opts ...Option) *Registry {
	t.Helper()

	r := NewRegistry(opts...)
	require.NoError(t, r.Begin(8765))
	if p != nil {
		require.NoError(t, r.Attach(context.Background(), p))
	}
	_, err := r.MarkReady()
	require.NoError(t, err)
	return r
}

// TestRegistry_Lifecycle tests the normal Uninitialized -> Ready -> Terminated path
func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, BackendStateUninitialized, r.State())

	_, ok := r.Port()
	assert.False(t, ok, "Port should not be available before Begin")

	require.NoError(t, r.Begin(41234))
	assert.Equal(t, BackendStateStarting, r.State())

	port, ok := r.Port()
	require.True(t, ok)
	assert.Equal(t, uint16(41234), port)

	proc := &fakeProcess{pid: 42}
	require.NoError(t, r.Attach(context.Background(), proc))

	state, err := r.MarkReady()
	require.NoError(t, err)
	assert.Equal(t, BackendStateReadyWithProcess, state)

	h := r.Handle()
	assert.True(t, h.HasProcess)
	assert.Equal(t, 42, h.Pid)
	assert.False(t, h.StartedAt.IsZero())

	assert.True(t, r.Terminate(context.Background()))
	assert.Equal(t, BackendStateTerminated, r.State())
	assert.False(t, r.HasProcess())
	assert.Equal(t, 1, proc.count())

	// Port survives termination
	port, ok = r.Port()
	assert.True(t, ok)
	assert.Equal(t, uint16(41234), port)
}

// TestRegistry_ReadyWithoutProcess tests the degraded path with no child attached
func TestRegistry_ReadyWithoutProcess(t *testing.T) {
	r := startedRegistry(t, nil)
	assert.Equal(t, BackendStateReadyWithoutProcess, r.State())
	assert.False(t, r.Handle().HasProcess)

	assert.True(t, r.Terminate(context.Background()), "first terminate still transitions")
	assert.False(t, r.Terminate(context.Background()))
	assert.Equal(t, BackendStateTerminated, r.State())
}

// TestRegistry_TerminateIdempotent tests repeated sequential terminate calls
func TestRegistry_TerminateIdempotent(t *testing.T) {
	proc := &fakeProcess{pid: 7}
	r := startedRegistry(t, proc)

	assert.True(t, r.Terminate(context.Background()))
	for i := 0; i < 5; i++ {
		assert.False(t, r.Terminate(context.Background()), "call %d should be a no-op", i+2)
	}

	assert.Equal(t, 1, proc.count(), "exactly one termination signal")
	assert.False(t, r.HasProcess())
}

// TestRegistry_TerminateConcurrent tests racing shutdown triggers
func TestRegistry_TerminateConcurrent(t *testing.T) {
	proc := &fakeProcess{pid: 7, delay: 20 * time.Millisecond}
	r := startedRegistry(t, proc)

	const callers = 64
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.Terminate(context.Background()) {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "only one caller performs termination")
	assert.Equal(t, 1, proc.count(), "exactly one termination signal")
	assert.Equal(t, BackendStateTerminated, r.State())
	assert.False(t, r.HasProcess())
}

// TestRegistry_TerminateSwallowsErrors tests that OS errors never surface
func TestRegistry_TerminateSwallowsErrors(t *testing.T) {
	proc := &fakeProcess{pid: 7, err: errors.New("process already finished")}
	r := startedRegistry(t, proc)

	assert.True(t, r.Terminate(context.Background()))
	assert.Equal(t, BackendStateTerminated, r.State())
	assert.False(t, r.Terminate(context.Background()))
	assert.Equal(t, 1, proc.count())
}

// TestRegistry_TerminatedIsAbsorbing tests that no transition leaves Terminated
func TestRegistry_TerminatedIsAbsorbing(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Terminate(context.Background()))

	assert.ErrorIs(t, r.Begin(9000), ErrTerminated)
	_, err := r.MarkReady()
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, BackendStateTerminated, r.State())
}

// TestRegistry_AttachAfterTerminate tests that a late child is stopped immediately
func TestRegistry_AttachAfterTerminate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Begin(9000))
	assert.True(t, r.Terminate(context.Background()))

	late := &fakeProcess{pid: 99}
	err := r.Attach(context.Background(), late)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, 1, late.count(), "late process should be terminated")
	assert.False(t, r.HasProcess(), "handle is never repopulated")
}

// TestRegistry_InvalidTransitions tests out-of-order lifecycle calls
func TestRegistry_InvalidTransitions(t *testing.T) {
	r := NewRegistry()

	err := r.Attach(context.Background(), &fakeProcess{pid: 1})
	assert.ErrorIs(t, err, ErrInvalidTransition, "attach before begin")

	_, err = r.MarkReady()
	assert.ErrorIs(t, err, ErrInvalidTransition, "ready before begin")

	require.NoError(t, r.Begin(9000))
	assert.ErrorIs(t, r.Begin(9001), ErrInvalidTransition, "port is write-once")

	port, _ := r.Port()
	assert.Equal(t, uint16(9000), port)

	require.NoError(t, r.Attach(context.Background(), &fakeProcess{pid: 1}))
	err = r.Attach(context.Background(), &fakeProcess{pid: 2})
	assert.ErrorIs(t, err, ErrInvalidTransition, "second process")

	assert.Error(t, r.Attach(context.Background(), nil))
}

// TestRegistry_GracePeriod tests that the configured grace period reaches the process
func TestRegistry_GracePeriod(t *testing.T) {
	proc := &fakeProcess{pid: 3}
	r := startedRegistry(t, proc, WithGracePeriod(250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, r.GracePeriod())

	r.Terminate(context.Background())

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 250*time.Millisecond, proc.grace)
}

// TestRegistry_Clock tests the injected time source
func TestRegistry_Clock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return fixed }))
	require.NoError(t, r.Begin(1))
	assert.Equal(t, fixed, r.Handle().StartedAt)
}

// TestBackendState_String tests state names
func TestBackendState_String(t *testing.T) {
	assert.Equal(t, "Uninitialized", BackendStateUninitialized.String())
	assert.Equal(t, "Starting", BackendStateStarting.String())
	assert.Equal(t, "ReadyWithProcess", BackendStateReadyWithProcess.String())
	assert.Equal(t, "ReadyWithoutProcess", BackendStateReadyWithoutProcess.String())
	assert.Equal(t, "Terminated", BackendStateTerminated.String())
	assert.Equal(t, "Unknown", BackendState(99).String())

	assert.True(t, BackendStateReadyWithProcess.IsReady())
	assert.True(t, BackendStateReadyWithoutProcess.IsReady())
	assert.False(t, BackendStateStarting.IsReady())
}
