package main

import (
	"github.com/spf13/cobra"
)

var enrichLeadID string

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich pending leads with AI personas",
	Long:  "Derives a structured persona, fit score, and contact email for every pending lead, then asks the router for a campaign suggestion.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		if enrichLeadID != "" {
			return env.Pipeline.EnrichOne(ctx, enrichLeadID)
		}
		if err := env.Pipeline.EnrichLeads(ctx); err != nil {
			return err
		}
		return env.Pipeline.RouteLeads(ctx)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichLeadID, "lead", "", "enrich a single lead id")
	rootCmd.AddCommand(enrichCmd)
}
