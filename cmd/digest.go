package main

import (
	"github.com/spf13/cobra"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Email each company's daily activity digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "digest")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Pipeline.SendDigests(ctx)
	},
}

func init() {
	rootCmd.AddCommand(digestCmd)
}
