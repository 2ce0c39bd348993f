package main

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull campaign analytics from the outbound platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Pipeline.SyncAnalytics(ctx)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
