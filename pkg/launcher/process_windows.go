//go:build windows

package launcher

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on Windows.
func setProcessGroup(cmd *exec.Cmd) {}

// signalTerminate kills the child; Windows has no SIGTERM.
func signalTerminate(process *os.Process) error {
	return process.Kill()
}

// killProcessTree kills the child.
func killProcessTree(process *os.Process) error {
	return process.Kill()
}
