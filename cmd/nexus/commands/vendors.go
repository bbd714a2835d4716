package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/nexus/cmd/nexus/handlers"
)

// Vendors returns the command that lists the configured vendors.
func Vendors() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "List configured vendors and their drivers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Vendors(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: nexus.yaml)")

	return cmd
}
