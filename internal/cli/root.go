package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Inbound traffic gate for shared nonprofit compute",
	Long:  "Classifies inbound requests as bot or human, scores commercial intent,\ntracks repeat offenders with time decay, and allocates queued project\nwork by weighted priority. Nonprofit workloads in, resellers out.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
