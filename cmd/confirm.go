package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	confirmCompanyID string
	confirmLeadID    string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Attach suggested leads to their campaigns",
	Long:  "Confirms routing suggestions: adds each lead to its suggested campaign on the outbound platform and marks it routed. Confirming twice is a no-op.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "confirm")
		if err != nil {
			return err
		}
		defer env.Close()

		if confirmLeadID != "" {
			return env.Pipeline.AttachLead(ctx, confirmLeadID)
		}
		if confirmCompanyID == "" {
			return eris.New("either --company or --lead is required")
		}
		return env.Pipeline.ConfirmPending(ctx, confirmCompanyID)
	},
}

func init() {
	confirmCmd.Flags().StringVar(&confirmCompanyID, "company", "", "confirm every suggested lead of a company")
	confirmCmd.Flags().StringVar(&confirmLeadID, "lead", "", "confirm a single lead id")
	rootCmd.AddCommand(confirmCmd)
}
