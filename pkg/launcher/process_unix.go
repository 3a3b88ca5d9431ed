//go:build !windows

package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup makes the child the leader of a new process group so
// signals also reach anything it spawns (wrapper scripts, bootloaders).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTerminate sends SIGTERM to the child's process group.
func signalTerminate(process *os.Process) error {
	return signalGroup(process, syscall.SIGTERM)
}

// killProcessTree sends SIGKILL to the child's process group.
func killProcessTree(process *os.Process) error {
	return signalGroup(process, syscall.SIGKILL)
}

func signalGroup(process *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-process.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}
