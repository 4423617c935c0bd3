// Package main provides the CLI entry point for the corebridge tool
// execution substrate.
//
// corebridge exposes a fixed set of cataloged tools to MCP-speaking
// callers over stdio or HTTP+SSE, enforcing per-tier rate limits, caching
// read-heavy lookups, and guarding outbound credentials behind an
// AEAD-sealed vault.
//
// # Basic Usage
//
// Start the server:
//
//	corebridge serve --config corebridge.yaml
//
// Inspect the registered tool catalog:
//
//	corebridge tools list --config corebridge.yaml
//
// Report task queue depth:
//
//	corebridge tasks stats --config corebridge.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "corebridge",
		Short:        "corebridge - tool execution substrate for MCP callers",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildToolsCmd(),
		buildTasksCmd(),
		buildVaultCmd(),
	)

	return rootCmd
}
