package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, sidecar.yaml, environment
variables and flags, in the sidecar.yaml format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.WriteYAML(uiInstance.Out())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	addSupervisorFlags(configCmd)
}
