// Package cmd provides the CLI commands for prism-sidecar
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-sidecar/internal/config"
	"github.com/jrepp/prism-sidecar/internal/ui"
	"github.com/jrepp/prism-sidecar/pkg/launcher"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	uiInstance *ui.UI
	configFile string
	logLevel   = new(slog.LevelVar)
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prism-sidecar",
	Short: "Supervise a bundled backend server for a desktop shell",
	Long: `prism-sidecar owns the lifecycle of one backend server process on behalf of
a desktop application: it picks the port, launches the bundled binary,
forwards its output into the log, waits for /health and stops it exactly
once when the application exits.

Configuration is read from sidecar.yaml ($HOME/.prism-sidecar or the working
directory), PRISM_SIDECAR_* environment variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize UI
		uiInstance = ui.New()

		// Load configuration
		var err error
		cfg, err = config.Load(configFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err = cfg.NewLogger(os.Stderr, logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if uiInstance == nil {
			uiInstance = ui.New()
		}
		uiInstance.Error(err.Error())
		if suggestion := launcher.GetSuggestion(err); suggestion != "" {
			uiInstance.Hint(suggestion)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = "0.1.0"

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default sidecar.yaml in $HOME/.prism-sidecar or .)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text)")
}

// addSupervisorFlags registers the flags that override supervisor configuration
func addSupervisorFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "development or packaged")
	cmd.Flags().String("port-policy", "", "fixed or ephemeral (packaged mode)")
	cmd.Flags().Int("port", 0, "fixed backend port")
	cmd.Flags().String("resource-dir", "", "directory holding the bundled backend")
	cmd.Flags().String("binary-name", "", "bundled backend executable name")
	cmd.Flags().String("health-path", "", "backend readiness endpoint")
	cmd.Flags().Duration("readiness-timeout", 0, "how long to wait for the backend to become ready")
	cmd.Flags().Duration("grace-period", 0, "how long to wait after SIGTERM before killing")
}
