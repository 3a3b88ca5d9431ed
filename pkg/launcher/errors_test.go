package launcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLauncherError(t *testing.T) {
	err := NewError(ErrorCodeReadinessTimeout, "Backend not ready")

	if err.Code != ErrorCodeReadinessTimeout {
		t.Errorf("Expected code %s, got %s", ErrorCodeReadinessTimeout, err.Code)
	}

	if err.Message != "Backend not ready" {
		t.Errorf("Expected message 'Backend not ready', got %s", err.Message)
	}

	errStr := err.Error()
	if !strings.Contains(errStr, string(ErrorCodeReadinessTimeout)) {
		t.Errorf("Error string should contain error code: %s", errStr)
	}

	if !strings.Contains(errStr, "Backend not ready") {
		t.Errorf("Error string should contain message: %s", errStr)
	}
}

func TestLauncherErrorWithContext(t *testing.T) {
	err := NewError(ErrorCodeExecutableNotFound, "Backend executable not found").
		WithContext("resource_dir", "/opt/app").
		WithContext("binary_name", "backend-server")

	errStr := err.Error()

	if !strings.Contains(errStr, "binary_name=backend-server, resource_dir=/opt/app") {
		t.Errorf("Error should contain sorted context: %s", errStr)
	}
}

func TestLauncherErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrorCodeReadinessTimeout, "Backend not ready").
		WithCause(cause)

	if err.Cause != cause {
		t.Error("Cause should be set")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "connection refused") {
		t.Errorf("Error should contain cause: %s", errStr)
	}

	// Test Unwrap for errors.Is/As compatibility
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestLauncherErrorWithSuggestion(t *testing.T) {
	err := NewError(ErrorCodePortAllocationFailed, "No port").
		WithSuggestion("Use a fixed port")

	if !strings.Contains(err.Error(), "Suggestion: Use a fixed port") {
		t.Errorf("Error should contain suggestion: %s", err.Error())
	}

	if GetSuggestion(err) != "Use a fixed port" {
		t.Errorf("GetSuggestion returned %q", GetSuggestion(err))
	}
}

func TestErrorConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name  string
		err   *LauncherError
		code  ErrorCode
		fatal bool
	}{
		{"port allocation", ErrPortAllocationFailed("127.0.0.1:0", cause), ErrorCodePortAllocationFailed, true},
		{"executable not found", ErrExecutableNotFound("backend-server", "/opt/app/backend-server", cause), ErrorCodeExecutableNotFound, false},
		{"process start", ErrProcessStartFailed("backend-server", "/opt/app/backend-server", cause), ErrorCodeProcessStartFailed, true},
		{"readiness timeout", ErrReadinessTimeout("http://127.0.0.1:8765/health", 12, cause), ErrorCodeReadinessTimeout, true},
		{"already started", ErrAlreadyStarted("ReadyWithProcess"), ErrorCodeAlreadyStarted, true},
		{"terminated", ErrSupervisorTerminated(cause), ErrorCodeTerminated, true},
		{"cancelled", ErrCancelled("readiness probe", context.Canceled), ErrorCodeCancelled, true},
		{"invalid configuration", ErrInvalidConfiguration("port", 0, "bad port"), ErrorCodeInvalidConfiguration, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Fatal() != tt.fatal {
				t.Errorf("Expected Fatal() = %v", tt.fatal)
			}
		})
	}
}

func TestIsErrorCode(t *testing.T) {
	err := ErrExecutableNotFound("backend-server", "/missing", nil)

	if !IsErrorCode(err, ErrorCodeExecutableNotFound) {
		t.Error("IsErrorCode should match")
	}

	if IsErrorCode(err, ErrorCodeProcessStartFailed) {
		t.Error("IsErrorCode should not match a different code")
	}

	wrapped := fmt.Errorf("startup: %w", err)
	if !IsErrorCode(wrapped, ErrorCodeExecutableNotFound) {
		t.Error("IsErrorCode should see through wrapping")
	}

	if IsErrorCode(errors.New("plain"), ErrorCodeExecutableNotFound) {
		t.Error("plain errors carry no code")
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(ErrAlreadyStarted("Starting")); code != ErrorCodeAlreadyStarted {
		t.Errorf("Expected %s, got %s", ErrorCodeAlreadyStarted, code)
	}

	if code := GetErrorCode(errors.New("plain")); code != "" {
		t.Errorf("Expected empty code, got %s", code)
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}

	if IsFatal(fmt.Errorf("wrapped: %w", ErrExecutableNotFound("x", "/x", nil))) {
		t.Error("missing executable is recoverable")
	}

	if !IsFatal(errors.New("unknown")) {
		t.Error("unknown errors are fatal")
	}
}
