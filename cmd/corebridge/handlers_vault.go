package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corebridge/platform-core/internal/config"
	"github.com/corebridge/platform-core/internal/observability"
	"github.com/corebridge/platform-core/internal/server"
)

func runVaultStatus(cmd *cobra.Command, configPath string) error {
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

	status := srv.Vault().Status()

	out := cmd.OutOrStdout()
	if len(status.Kinds) == 0 {
		fmt.Fprintln(out, "no credentials stored")
	}
	for kind, rotatedAt := range status.Kinds {
		fmt.Fprintf(out, "%s\tlast rotated %s\n", kind, rotatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	fmt.Fprintln(out, "\nrecent activity:")
	for _, entry := range status.RecentLog {
		fmt.Fprintf(out, "%s\t%s\t%s\n", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Kind, entry.Action)
	}
	return nil
}
