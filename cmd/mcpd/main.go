// mcpd serves MCP capabilities declared in a configuration file over
// stdio or WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "mcpd",
	Short: "mcpd is a Model Context Protocol server runtime",
	Long: `mcpd serves MCP tools, resources, and prompts to AI assistants over
newline-delimited stdio or WebSocket.

Resources and prompt templates are declared in a YAML configuration file;
environment variables prefixed with MCPD_ override individual settings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcpd %s (%s)\n", version, commit)
	},
}

func main() {
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
