package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/nexus/cmd/nexus/handlers"
)

// History returns the command that lists past runs, or shows one run when
// a run id is given.
func History() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past provisioning runs",
		Long: `Show past provisioning runs from the local run history.

Without arguments the most recent runs are listed. With a run id the vendor
tasks of that run are shown.

Examples:
  nexus history
  nexus history --limit 5
  nexus history 3f6c2a1e-8b7d-4c1e-9a0f-2d5b6c7e8f90`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return handlers.ShowRun(cmd.Context(), configPath, args[0])
			}
			return handlers.History(cmd.Context(), configPath, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: nexus.yaml)")
	cmd.Flags().IntVarP(&limit, "limit", "n", handlers.DefaultHistoryLimit, "Number of runs to list")

	return cmd
}
