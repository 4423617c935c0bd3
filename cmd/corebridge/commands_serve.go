package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "corebridge.yaml"

// buildServeCmd creates the "serve" command that starts the server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the corebridge server",
		Long: `Start the corebridge server with every configured tier, cache category,
and ingress transport.

The server will:
1. Load configuration from the specified file (or corebridge.yaml)
2. Build the rate limiter, cache manager, token vault, task queue, and
   conversation store
3. Start the enabled ingress transports (stdio, HTTP+SSE)
4. Start the task queue worker pool and the config hot-reload watcher

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  corebridge serve

  # Start with custom config
  corebridge serve --config /etc/corebridge/production.yaml

  # Start with debug logging
  corebridge serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}
