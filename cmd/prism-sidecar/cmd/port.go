package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-sidecar/pkg/launcher"
)

var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Resolve a backend port under the configured policy",
	Long: `Resolve the port the backend would be given and print it.

Fixed policy (and development mode) prints the configured port. Ephemeral
policy asks the OS for a free loopback port; the port is released before
printing, so it is only a hint for scripts.

Example:
  prism-sidecar port --port-policy ephemeral`,
	RunE: runPort,
}

func init() {
	rootCmd.AddCommand(portCmd)
	portCmd.Flags().String("mode", "", "development or packaged")
	portCmd.Flags().String("port-policy", "", "fixed or ephemeral")
	portCmd.Flags().Int("port", 0, "fixed backend port")
}

func runPort(cmd *cobra.Command, args []string) error {
	lc, err := cfg.LauncherConfig()
	if err != nil {
		return err
	}

	assignment, err := launcher.ResolvePort(lc.EffectivePortPolicy(), lc.Port)
	if err != nil {
		return err
	}

	logger.Debug("resolved port", "assignment", assignment.String())
	uiInstance.Raw(strconv.Itoa(int(assignment.Port)))
	return nil
}
