// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/nexus/cmd/nexus/handlers"
)

// Root returns the root command for the nexus CLI.
//
// The root command owns the logging flags. Every subcommand receives a
// context carrying the configured logger.
func Root() *cobra.Command {
	var logLevel, logFormat string

	cmd := &cobra.Command{
		Use:   "nexus",
		Short: "Provision user accounts across vendor portals",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := handlers.SetupLogging(cmd.Context(), logLevel, logFormat)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn or error (env: NEXUS_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (env: NEXUS_LOG_FORMAT)")

	// Core commands
	cmd.AddCommand(Run(&logLevel, &logFormat))
	cmd.AddCommand(Vendors())
	cmd.AddCommand(History())
	cmd.AddCommand(Report())

	// Utility commands
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
