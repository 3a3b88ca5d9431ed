package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-sidecar/pkg/launcher"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Wait for a backend's health endpoint",
	Long: `Poll the backend health endpoint on 127.0.0.1 until it answers 2xx or the
readiness timeout elapses.

Example:
  prism-sidecar probe --port 8765 --readiness-timeout 10s`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Int("port", 0, "backend port (required)")
	probeCmd.Flags().String("health-path", "", "backend readiness endpoint")
	probeCmd.Flags().Duration("readiness-timeout", 0, "how long to keep polling")
	_ = probeCmd.MarkFlagRequired("port")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return launcher.ErrInvalidConfiguration("port", cfg.Port, "port must be between 1 and 65535")
	}

	lc := launcher.DefaultConfig()
	lc.HealthPath = cfg.HealthPath
	lc.PollInterval = cfg.PollInterval
	lc.ReadinessTimeout = cfg.ReadinessTimeout
	lc.RequestTimeout = cfg.RequestTimeout

	probe := launcher.NewReadinessProbe(uint16(cfg.Port), lc, logger)

	start := time.Now()
	attempts, err := probe.Wait(cmd.Context())
	if err != nil {
		return err
	}

	uiInstance.Success(fmt.Sprintf("Backend ready at %s", probe.URL))
	uiInstance.KeyValue("Attempts", strconv.Itoa(attempts))
	uiInstance.KeyValue("Elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}
