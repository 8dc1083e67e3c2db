package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opsctl",
	Short: "Operator tooling for the opsdash auth core",
	Long: `Maintenance commands for opsdash: schema migration, refresh ledger
sweeps and password hashing for principal provisioning.

Commands that touch storage read the same environment as the server.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
