package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/nexus/cmd/nexus/handlers"
)

// Run returns the command that provisions one user across the vendor list.
//
// Optional flags:
//
//	--config, -c: Path to configuration file (default: auto-detect nexus.yaml)
//	--vendors: Subset of vendor ids, in the order to run them
//	--dry-run: Use the simulated driver for every vendor
//	--no-tui: Print progress lines instead of the dashboard
//	--metrics-addr: Serve Prometheus metrics on this address during the run
//
// Environment variables:
//
//	NEXUS_SECRET_<VENDOR>_<TYPE>: Vendor admin secrets for the env credential source
func Run(logLevel, logFormat *string) *cobra.Command {
	opts := handlers.RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision a user on every configured vendor",
		Long: `Provision a user's accounts on the configured vendor portals.

Vendors are processed one at a time in config order. When a portal asks for
MFA or a CAPTCHA the run waits for you to complete it in the browser. When
the username or email is already taken you are asked for an alternate value
or can skip the vendor.

The dashboard supports p (pause), r (resume), c (cancel) and q (quit).

Examples:
  # Provision a user on every enabled vendor
  nexus run --user jane.doe@example.com

  # Only two vendors, in this order
  nexus run --user jdoe --vendors globex,acme

  # Rehearse the run without touching any portal
  nexus run --user jdoe --dry-run --no-tui`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.LogLevel = *logLevel
			opts.LogFormat = *logFormat
			return handlers.Run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: nexus.yaml)")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "User to provision: email, UPN or directory id")
	cmd.Flags().StringSliceVar(&opts.Vendors, "vendors", nil, "Vendor ids to run, in order (default: all enabled)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Run every vendor on the simulated driver")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Disable the interactive dashboard")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	_ = cmd.MarkFlagRequired("user")

	return cmd
}
