package main

import (
	"github.com/spf13/cobra"
)

// buildTasksCmd creates the "tasks" command group.
func buildTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect the distributed task queue",
	}
	cmd.AddCommand(buildTasksStatsCmd())
	return cmd
}

func buildTasksStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report queue depth by priority and in-flight/completed/failed counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasksStats(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}
