/*
main.go - finpath command line

COMMANDS:
  serve      Run the HTTP API (config file + environment)
  simulate   Play a scripted game headlessly and print the outcome
  version    Print build information

EXAMPLES:
  # Run with the default SQLite database
  finpath serve

  # Run against PostgreSQL
  DATABASE_URL=postgres://localhost/finpath FINPATH_DB_DRIVER=postgres finpath serve

  # Replay a script
  finpath simulate scripts/business.yaml

SEE ALSO:
  - config/config.go: Configuration keys and environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "finpath",
		Short:         "Personal finance simulation game",
		Long:          "Server and tools for a turn-based personal finance game with job-saving, business and early-retirement paths",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), simulateCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finpath %s (commit %s, built %s)\n", version, commit, date)
			if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
				fmt.Fprintln(cmd.OutOrStdout(), bi.GoVersion)
			}
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
