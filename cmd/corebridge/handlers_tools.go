package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corebridge/platform-core/internal/config"
	"github.com/corebridge/platform-core/internal/observability"
	"github.com/corebridge/platform-core/internal/server"
	"github.com/corebridge/platform-core/internal/toolspec"
)

func runToolsList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "text"})
	srv, err := server.New(cfg, configPath, log)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer srv.Stop(context.Background())

	tools, err := srv.Dispatcher().ListTools(toolspec.CasingDotted)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(tools) == 0 {
		fmt.Fprintln(out, "no tools registered")
		return nil
	}
	for _, t := range tools {
		fmt.Fprintf(out, "%s\t%s\n", t.Name, t.Description)
	}
	return nil
}
