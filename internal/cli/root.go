// Package cli implements the cordon command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cordon",
	Short: "Policy mediation for AI agent traffic",
	Long:  "Intercepts agent calls to LLM providers and MCP tool servers, obtains allow/block/sanitize decisions from a policy service, and enforces them before payloads cross the boundary.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to cordon config YAML")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
