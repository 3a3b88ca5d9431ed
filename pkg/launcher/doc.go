// Package launcher supervises the single backend server process that a
// desktop shell bundles next to its executable.
//
// The supervisor picks the backend's port, launches the bundled binary with
// --port <n>, forwards its stdout and stderr into the log, waits for its
// health endpoint and stops it exactly once when the host shuts down.
//
// # Quick Start
//
// Create a supervisor and hook it into the host lifecycle:
//
//	supervisor, err := launcher.NewBuilder().
//	    WithResourceDir(resourceDir).
//	    WithEphemeralPort().
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Before the window is shown
//	if err := supervisor.OnStartup(ctx); err != nil {
//	    log.Fatal(err)  // fatal: abort application launch
//	}
//
//	// Whenever the UI needs to talk to the backend
//	url := fmt.Sprintf("http://127.0.0.1:%d/api", supervisor.GetBackendPort())
//
//	// On every window-close, exit request and exit notification
//	supervisor.OnShutdownTrigger()
//
// # Modes and Port Policy
//
// Development mode assumes a developer already runs the backend on the fixed
// port (8765 by default); nothing is launched and startup never fails.
//
// Packaged mode launches <resource_dir>/<binary_name> (".exe" appended on
// Windows). The port is either fixed, so external clients can reconnect
// across restarts, or ephemeral: the OS picks a free loopback port which is
// released just before launch.
//
//	builder.WithDevelopmentMode(8765)
//	builder.WithFixedPort(9100)
//	builder.WithEphemeralPort()
//
// # Startup Outcomes
//
//   - Ready with a process: the backend answered 2xx on its health path
//   - Ready without a process: development mode, or the bundled binary is
//     missing; the port is still reported
//   - Fatal error: port allocation failed, the OS refused the spawn, or the
//     readiness timeout elapsed; any spawned child has already been stopped
//
// Errors are *LauncherError values carrying a code, context and an
// actionable suggestion:
//
//	if err := supervisor.OnStartup(ctx); err != nil {
//	    if launcher.IsErrorCode(err, launcher.ErrorCodeReadinessTimeout) {
//	        fmt.Println(launcher.GetSuggestion(err))
//	    }
//	}
//
// # Termination
//
// OnShutdownTrigger may be called any number of times from any goroutine.
// Exactly one call takes the process out of the registry and stops it:
// SIGTERM, then up to the grace period for the child to exit, then kill.
// On unix the backend runs in its own process group and both signals go to
// the whole group, so wrapper scripts take their children with them. A zero
// grace period kills immediately; Windows kills the child directly. The
// backend is never restarted.
//
// # Output
//
// Each child stream is drained on its own goroutine. Lines are decoded as
// UTF-8 with invalid bytes replaced by U+FFFD and handed to a LineSink;
// the default sink logs stdout at Info and stderr at Warn, prefixed with
// the binary name. A slow sink applies backpressure instead of dropping
// lines.
//
// # Metrics and Observability
//
// Pass procmgr.NewPrometheusMetricsCollector to WithMetrics to export:
//   - prism_sidecar_backend_state_transitions_total{from_state,to_state}
//   - prism_sidecar_startup_duration_seconds{outcome}
//   - prism_sidecar_readiness_probe_attempts{status}
//   - prism_sidecar_output_lines_total{stream}
//   - prism_sidecar_terminations_total{result}
//
// Lifecycle events (starting, launched, ready, degraded, failed, stopping,
// stopped) go to an EventPublisher; the default logs them.
//
// # Testing
//
// Tests re-execute the test binary as a fake backend (see helper_test.go);
// run them with:
//
//	go test ./pkg/launcher/...
//	go test -short ./pkg/launcher/...  // skip tests that spawn processes
package launcher
