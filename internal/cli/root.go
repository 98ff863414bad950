// Package cli implements the fusion-bridge command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/zapletal-martin/fusion-idea-addin/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "fusion-bridge",
	Short: "Authenticated bridge for remote script execution and debugging",
	Long: `fusion-bridge accepts signed run-script and attach-debugger requests from
an IDE-side plugin on the same machine.

It answers multicast discovery queries so the plugin can find the right
instance, verifies every request's RSA signature, and asks the operator to
confirm a key digest the first time a new key connects. Confirmed keys are
trusted for the rest of the session, with a strictly increasing nonce
guarding against replays.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("fusion-bridge version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
