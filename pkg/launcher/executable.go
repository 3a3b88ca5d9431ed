package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ExecutablePath returns the bundled backend path for this platform
func ExecutablePath(resourceDir, name string) string {
	if runtime.GOOS == "windows" && !strings.EqualFold(filepath.Ext(name), ".exe") {
		name += ".exe"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(resourceDir, name)
}

// ResolveExecutable locates the bundled backend.
//
// A missing file yields an EXECUTABLE_NOT_FOUND error, which callers treat
// as recoverable. Whether the file is actually runnable is left to the OS
// at spawn time.
func ResolveExecutable(resourceDir, name string) (string, error) {
	execPath := ExecutablePath(resourceDir, name)

	info, err := os.Stat(execPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return execPath, ErrExecutableNotFound(name, execPath, err)
		}
		return execPath, ErrProcessStartFailed(name, execPath, fmt.Errorf("stat executable: %w", err))
	}

	if info.IsDir() {
		return execPath, ErrExecutableNotFound(name, execPath,
			fmt.Errorf("%s is a directory", execPath))
	}

	return execPath, nil
}
