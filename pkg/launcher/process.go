package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrepp/prism-sidecar/pkg/procmgr"
)

// killWait bounds how long Terminate waits for the OS to reap a killed child
const killWait = 5 * time.Second

// LaunchSpec describes how to start the backend
type LaunchSpec struct {
	// Name is used in logs and errors
	Name string

	// Path is the resolved executable
	Path string

	// Args are placed before the --port flag
	Args []string

	// Env is appended to the supervisor's environment
	Env map[string]string

	// WorkDir is the child's working directory (empty inherits ours)
	WorkDir string

	// Port is passed as --port <n>
	Port uint16
}

// CommandArgs returns the full argument list passed to the child
func (ls LaunchSpec) CommandArgs() []string {
	args := make([]string, 0, len(ls.Args)+2)
	args = append(args, ls.Args...)
	return append(args, "--port", strconv.Itoa(int(ls.Port)))
}

// Process is a running backend child with captured output
type Process struct {
	name      string
	cmd       *exec.Cmd
	startedAt time.Time

	stdout *os.File
	stderr *os.File
	pump   *OutputPump

	exited      chan struct{}
	exitErr     error
	terminating atomic.Bool
	closeOnce   sync.Once

	logger *slog.Logger
}

// Compile-time interface compliance check
var _ procmgr.Process = (*Process)(nil)

// Launch starts the backend with its stdout and stderr connected to pipes
// owned by the supervisor and starts the output pump.
func Launch(spec LaunchSpec, sink LineSink, logger *slog.Logger) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NewSlogSink(logger, spec.Name)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, ErrProcessStartFailed(spec.Name, spec.Path, fmt.Errorf("create stdout pipe: %w", err))
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, ErrProcessStartFailed(spec.Name, spec.Path, fmt.Errorf("create stderr pipe: %w", err))
	}

	cmd := exec.Command(spec.Path, spec.CommandArgs()...)
	cmd.Env = buildEnv(spec.Env)
	cmd.Dir = spec.WorkDir
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, ErrProcessStartFailed(spec.Name, spec.Path, err)
	}

	// The child holds its own copies of the write ends
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		name:      spec.Name,
		cmd:       cmd,
		startedAt: time.Now(),
		stdout:    stdoutR,
		stderr:    stderrR,
		exited:    make(chan struct{}),
		logger:    logger.With("pid", cmd.Process.Pid),
	}

	p.pump = StartOutputPump(stdoutR, stderrR, sink, logger)

	go func() {
		<-p.pump.Done()
		p.closeOutput()
	}()
	go p.wait()

	p.logger.Info("launched backend process",
		"name", spec.Name,
		"path", spec.Path,
		"port", spec.Port)

	return p, nil
}

// buildEnv appends extra variables in a stable order
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}

// wait reaps the child and reports unexpected exits without restarting
func (p *Process) wait() {
	err := p.cmd.Wait()
	p.exitErr = err
	close(p.exited)

	if p.terminating.Load() {
		p.logger.Info("backend process exited", "status", exitStatus(err))
		return
	}
	p.logger.Warn("backend process exited unexpectedly", "status", exitStatus(err))
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// Pid returns the OS process id
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// StartedAt returns when the child was spawned
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Exited is closed once the child has been reaped
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the result of waiting on the child; valid after Exited is closed
func (p *Process) ExitErr() error {
	<-p.exited
	return p.exitErr
}

// Output returns the pump draining the child's streams
func (p *Process) Output() *OutputPump {
	return p.pump
}

// Terminate sends SIGTERM to the child's process group, waits up to grace
// for the child to exit, then kills the group. A zero grace kills
// immediately. On Windows only the child itself is killed. An already-exited
// child is not an error; anything it left in its group is killed.
func (p *Process) Terminate(ctx context.Context, grace time.Duration) error {
	p.terminating.Store(true)

	select {
	case <-p.exited:
		p.killLeftovers()
		return nil
	default:
	}

	if grace > 0 {
		if err := signalTerminate(p.cmd.Process); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				return nil
			}
			p.logger.Debug("SIGTERM not delivered, killing", "error", err)
		} else {
			timer := time.NewTimer(grace)
			defer timer.Stop()

			select {
			case <-p.exited:
				p.logger.Info("backend exited gracefully")
				p.killLeftovers()
				return nil
			case <-ctx.Done():
				p.logger.Warn("termination cancelled, force killing", "error", ctx.Err())
			case <-timer.C:
				p.logger.Warn("backend did not exit within grace period, force killing", "grace_period", grace)
			}
		}
	}

	if err := killProcessTree(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("force kill: %w", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("process %d did not exit after kill", p.Pid())
	}
}

// killLeftovers kills descendants still in the group after the child exited
func (p *Process) killLeftovers() {
	if err := killProcessTree(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Debug("could not kill leftover processes", "error", err)
	}
}

// DrainOutput waits up to d for the pump to finish after the child exited.
// Streams still open afterwards (a grandchild holding the pipe) are closed
// so no pump goroutine outlives the supervisor.
func (p *Process) DrainOutput(d time.Duration) bool {
	if p.pump.WaitTimeout(d) {
		return true
	}

	p.logger.Debug("output still open after drain window, closing pipes")
	p.closeOutput()
	return p.pump.WaitTimeout(d)
}

func (p *Process) closeOutput() {
	p.closeOnce.Do(func() {
		p.stdout.Close()
		p.stderr.Close()
	})
}
