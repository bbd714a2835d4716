// Package main is the entry point for the nexus CLI.
//
// nexus provisions a user's accounts across a list of vendor admin portals
// in one supervised run. It drives one portal session at a time, pauses for
// MFA or CAPTCHA challenges and asks the operator when an identity is
// already taken.
//
// Commands: run, vendors, history, report, version, completion.
//
// For detailed usage information, run:
//
//	nexus --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/nexus/cmd/nexus/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
