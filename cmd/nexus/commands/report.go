package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imamik/nexus/cmd/nexus/handlers"
)

// Report returns the command that prints a saved run report.
func Report() *cobra.Command {
	opts := handlers.ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report [path|key]",
		Short: "Print a saved run report",
		Long: `Print the summary of a saved run report.

Reports are read from the local report directory, or from the S3 bucket
with --remote. A bare file name is looked up under the report prefix.

Examples:
  nexus report reports/nexus-20260302T090000Z-3f6c2a1e.json
  nexus report --list
  nexus report --remote nexus-20260302T090000Z-3f6c2a1e.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Path = args[0]
			}
			if opts.Path == "" && !opts.List {
				return fmt.Errorf("a report path is required unless --list is set")
			}
			return handlers.Report(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: nexus.yaml)")
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "Read the report from the S3 bucket")
	cmd.Flags().BoolVar(&opts.List, "list", false, "List reports stored in the S3 bucket")

	return cmd
}
