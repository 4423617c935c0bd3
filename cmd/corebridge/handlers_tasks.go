package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corebridge/platform-core/internal/config"
	"github.com/corebridge/platform-core/internal/observability"
	"github.com/corebridge/platform-core/internal/server"
	"github.com/corebridge/platform-core/internal/taskqueue"
)

func runTasksStats(cmd *cobra.Command, configPath string) error {
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

	stats, err := srv.TaskQueue().Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("task queue stats: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, p := range []taskqueue.Priority{taskqueue.PriorityUrgent, taskqueue.PriorityHigh, taskqueue.PriorityMedium, taskqueue.PriorityLow} {
		fmt.Fprintf(out, "queued[%s]\t%d\n", p, stats.Queued[p])
	}
	fmt.Fprintf(out, "in_flight\t%d\n", stats.InFlight)
	fmt.Fprintf(out, "completed\t%d\n", stats.Completed)
	fmt.Fprintf(out, "failed\t%d\n", stats.Failed)
	return nil
}
