package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the lead store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
