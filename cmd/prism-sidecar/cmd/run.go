package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jrepp/prism-sidecar/internal/config"
	"github.com/jrepp/prism-sidecar/pkg/launcher"
	"github.com/jrepp/prism-sidecar/pkg/procmgr"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the backend and supervise it until interrupted",
	Long: `Start the backend the way a desktop shell would: resolve the port, launch
the bundled binary (packaged mode) or expect one already running (development
mode), wait for readiness and keep it alive until SIGINT or SIGTERM.

Example:
  prism-sidecar run --resource-dir ./dist --metrics-addr 127.0.0.1:9464
  prism-sidecar run --mode development --port 8765`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addSupervisorFlags(runCmd)
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func runRun(cmd *cobra.Command, args []string) error {
	lc, err := cfg.LauncherConfig()
	if err != nil {
		return err
	}

	metrics := procmgr.NewPrometheusMetricsCollector("")

	supervisor, err := launcher.NewBuilder().
		WithConfig(lc).
		WithLogger(logger).
		WithMetrics(metrics).
		Build()
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	watched, err := config.Watch(configFile, cmd.Flags(), logger, func(c *config.Config) {
		logLevel.Set(config.ParseLevel(c.LogLevel))
		logger.Info("configuration reloaded", "log_level", c.LogLevel)
	})
	if err != nil {
		logger.Warn("config file not watched", "error", err)
	} else if watched != "" {
		logger.Debug("watching config file for log level changes", "path", watched)
	}

	// Signals may arrive while startup is still waiting for readiness; the
	// trigger is safe to run concurrently with OnStartup.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		supervisor.OnShutdownTrigger()
		close(stopped)
	}()

	if err := supervisor.OnStartup(cmd.Context()); err != nil {
		shutdownMetrics(metricsServer)
		return err
	}

	port := supervisor.GetBackendPort()
	handle := supervisor.Handle()

	uiInstance.Success("Backend ready")
	uiInstance.KeyValue("Port", strconv.Itoa(int(port)))
	uiInstance.KeyValue("Health", supervisor.HealthURL())
	uiInstance.KeyValue("State", handle.State.String())
	if handle.HasProcess {
		uiInstance.KeyValue("PID", strconv.Itoa(handle.Pid))
	} else {
		uiInstance.Warning("No backend process attached")
	}

	<-stopped

	shutdownMetrics(metricsServer)
	uiInstance.Success("Backend stopped")
	return nil
}

func shutdownMetrics(server *http.Server) {
	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
}
