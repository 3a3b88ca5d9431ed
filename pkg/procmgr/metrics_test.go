package procmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMetricsCollector records all metrics calls for testing
type mockMetricsCollector struct {
	mu sync.Mutex

	stateTransitions []stateTransition
	startups         []string
	probes           []int
	outputLines      map[string]int
	terminations     []string
}

type stateTransition struct {
	fromState BackendState
	toState   BackendState
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{outputLines: make(map[string]int)}
}

func (m *mockMetricsCollector) BackendStateTransition(fromState, toState BackendState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateTransitions = append(m.stateTransitions, stateTransition{fromState, toState})
}

func (m *mockMetricsCollector) StartupDuration(outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startups = append(m.startups, outcome)
}

func (m *mockMetricsCollector) ReadinessProbe(attempts int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, attempts)
}

func (m *mockMetricsCollector) OutputLine(stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputLines[stream]++
}

func (m *mockMetricsCollector) Termination(result string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminations = append(m.terminations, result)
}

func (m *mockMetricsCollector) getTransitions() []stateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateTransition(nil), m.stateTransitions...)
}

func (m *mockMetricsCollector) getTerminations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.terminations...)
}

// TestMetrics_StateTransitions tests that the registry reports every transition
func TestMetrics_StateTransitions(t *testing.T) {
	mc := newMockMetricsCollector()
	r := NewRegistry(WithMetricsCollector(mc))

	require.NoError(t, r.Begin(1234))
	require.NoError(t, r.Attach(context.Background(), &fakeProcess{pid: 1}))
	_, err := r.MarkReady()
	require.NoError(t, err)
	r.Terminate(context.Background())

	assert.Equal(t, []stateTransition{
		{BackendStateUninitialized, BackendStateStarting},
		{BackendStateStarting, BackendStateReadyWithProcess},
		{BackendStateReadyWithProcess, BackendStateTerminated},
	}, mc.getTransitions())
}

// TestMetrics_TerminationResults tests termination result labels
func TestMetrics_TerminationResults(t *testing.T) {
	mc := newMockMetricsCollector()
	r := NewRegistry(WithMetricsCollector(mc))
	require.NoError(t, r.Begin(1234))
	require.NoError(t, r.Attach(context.Background(), &fakeProcess{pid: 1}))

	r.Terminate(context.Background())
	r.Terminate(context.Background())
	r.Terminate(context.Background())

	assert.Equal(t, []string{TerminationSignalled, TerminationNoop, TerminationNoop}, mc.getTerminations())
}

// TestMetrics_NoProcessTermination tests terminating a registry with no child
func TestMetrics_NoProcessTermination(t *testing.T) {
	mc := newMockMetricsCollector()
	r := NewRegistry(WithMetricsCollector(mc))
	require.NoError(t, r.Begin(1234))

	r.Terminate(context.Background())

	assert.Equal(t, []string{TerminationNoProcess}, mc.getTerminations())
}

// TestNoopMetricsCollector tests that the no-op collector accepts every call
func TestNoopMetricsCollector(t *testing.T) {
	mc := NewNoopMetricsCollector()

	assert.NotPanics(t, func() {
		mc.BackendStateTransition(BackendStateStarting, BackendStateTerminated)
		mc.StartupDuration("success", time.Second)
		mc.ReadinessProbe(3, time.Second, nil)
		mc.OutputLine("stdout")
		mc.Termination(TerminationSignalled, time.Millisecond)
	})
}
