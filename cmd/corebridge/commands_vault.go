package main

import (
	"github.com/spf13/cobra"
)

// buildVaultCmd creates the "vault" command group.
func buildVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect the token vault",
	}
	cmd.AddCommand(buildVaultStatusCmd())
	return cmd
}

func buildVaultStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List stored credential kinds and recent masked audit activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVaultStatus(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}
