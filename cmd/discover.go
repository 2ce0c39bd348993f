package main

import (
	"github.com/spf13/cobra"
)

var discoverQueryID string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run lead discovery for pending queries",
	Long:  "Submits each company's freshest pending query as a webset search, polls it to completion, and stores deduplicated leads.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		if discoverQueryID != "" {
			return env.Pipeline.RunQuery(ctx, discoverQueryID)
		}
		return env.Pipeline.RunDiscovery(ctx)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverQueryID, "query", "", "run a single query id")
	rootCmd.AddCommand(discoverCmd)
}
