package launcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// LauncherError represents an error with additional context for troubleshooting.
type LauncherError struct {
	// Code identifies the error type
	Code ErrorCode

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// ErrorCode identifies categories of errors
type ErrorCode string

const (
	// Startup errors
	ErrorCodePortAllocationFailed ErrorCode = "PORT_ALLOCATION_FAILED"
	ErrorCodeExecutableNotFound   ErrorCode = "EXECUTABLE_NOT_FOUND"
	ErrorCodeProcessStartFailed   ErrorCode = "PROCESS_START_FAILED"
	ErrorCodeReadinessTimeout     ErrorCode = "READINESS_TIMEOUT"

	// Lifecycle errors
	ErrorCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"
	ErrorCodeTerminated     ErrorCode = "TERMINATED"
	ErrorCodeCancelled      ErrorCode = "CANCELLED"

	// Configuration errors
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"
)

// Error implements the error interface
func (e *LauncherError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *LauncherError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error must abort application launch.
// A missing executable degrades to running without a backend instead.
func (e *LauncherError) Fatal() bool {
	return e.Code != ErrorCodeExecutableNotFound
}

// NewError creates a new LauncherError with the given code and message
func NewError(code ErrorCode, message string) *LauncherError {
	return &LauncherError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *LauncherError) WithContext(key string, value interface{}) *LauncherError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *LauncherError) WithCause(cause error) *LauncherError {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *LauncherError) WithSuggestion(suggestion string) *LauncherError {
	e.Suggestion = suggestion
	return e
}

// Common error constructors with helpful suggestions

// ErrPortAllocationFailed creates an error for a refused ephemeral bind
func ErrPortAllocationFailed(address string, cause error) *LauncherError {
	return NewError(ErrorCodePortAllocationFailed,
		"Failed to allocate an ephemeral port for the backend").
		WithContext("address", address).
		WithCause(cause).
		WithSuggestion(
			"The OS refused to bind a loopback listener. Common causes:\n" +
				"  1. Ephemeral port range exhausted\n" +
				"  2. File descriptor limit reached (ulimit -n)\n" +
				"  3. Loopback interface unavailable\n" +
				"Alternatively configure port_policy: fixed")
}

// ErrExecutableNotFound creates an error for a missing bundled backend binary
func ErrExecutableNotFound(name, execPath string, cause error) *LauncherError {
	return NewError(ErrorCodeExecutableNotFound,
		fmt.Sprintf("Backend executable '%s' not found", name)).
		WithContext("binary_name", name).
		WithContext("executable_path", execPath).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf(
			"Bundle the backend into the resource directory:\n"+
				"  ls -la %s\n"+
				"The application keeps running without a backend attached",
			execPath))
}

// ErrProcessStartFailed creates an error for a refused spawn
func ErrProcessStartFailed(name, execPath string, cause error) *LauncherError {
	return NewError(ErrorCodeProcessStartFailed,
		fmt.Sprintf("Failed to start backend '%s' process", name)).
		WithContext("binary_name", name).
		WithContext("executable_path", execPath).
		WithCause(cause).
		WithSuggestion(
			"Common causes:\n" +
				"  1. Executable is not runnable (chmod +x)\n" +
				"  2. Wrong architecture for this machine\n" +
				"  3. Insufficient permissions\n" +
				"  4. Missing shared libraries")
}

// ErrReadinessTimeout creates an error for a backend that never became healthy
func ErrReadinessTimeout(healthURL string, attempts int, cause error) *LauncherError {
	return NewError(ErrorCodeReadinessTimeout,
		"Backend did not become ready before the readiness timeout").
		WithContext("health_url", healthURL).
		WithContext("attempts", attempts).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf(
			"Verify the backend is listening and healthy:\n"+
				"  curl %s\n"+
				"Check the [backend] lines in the log for startup errors",
			healthURL))
}

// ErrAlreadyStarted creates an error for a repeated startup call
func ErrAlreadyStarted(state string) *LauncherError {
	return NewError(ErrorCodeAlreadyStarted, "Supervisor startup already ran").
		WithContext("state", state)
}

// ErrSupervisorTerminated creates an error for startup after a shutdown trigger
func ErrSupervisorTerminated(cause error) *LauncherError {
	return NewError(ErrorCodeTerminated, "Supervisor was terminated during startup").
		WithCause(cause)
}

// ErrCancelled creates an error for an operation aborted by its context
func ErrCancelled(operation string, cause error) *LauncherError {
	return NewError(ErrorCodeCancelled, fmt.Sprintf("%s cancelled", operation)).
		WithContext("operation", operation).
		WithCause(cause)
}

// ErrInvalidConfiguration creates an error for configuration validation failures
func ErrInvalidConfiguration(field string, value interface{}, reason string) *LauncherError {
	return NewError(ErrorCodeInvalidConfiguration,
		fmt.Sprintf("Invalid configuration: %s", reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSuggestion(
			"Review sidecar configuration and ensure all values are valid.\n" +
				"See Config struct documentation for valid ranges.")
}

// IsErrorCode checks if an error (or anything it wraps) has the specified error code
func IsErrorCode(err error, code ErrorCode) bool {
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or empty string if not a LauncherError
func GetErrorCode(err error) ErrorCode {
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Code
	}
	return ""
}

// GetSuggestion returns the suggestion from an error, or empty string if not available
func GetSuggestion(err error) string {
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Suggestion
	}
	return ""
}

// IsFatal reports whether err must abort application launch. Unknown errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var launcherErr *LauncherError
	if errors.As(err, &launcherErr) {
		return launcherErr.Fatal()
	}
	return true
}
