package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "aidp",
	Short: "Drive a fix-forward coding-agent work loop",
	Long: `aidp runs a coding agent through a bounded fix-forward state machine:
apply a patch, run the project's checks, and on failure feed the
diagnostic straight back into the next patch rather than rolling back.
A deterministic/agentic unit scheduler decides, each iteration, whether
to run a configured command or hand control to the agent, and an
append-only task ledger tracks work discovered along the way.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aidp %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
