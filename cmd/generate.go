package main

import (
	"github.com/spf13/cobra"
)

var generateCompanyID string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate search queries from pending instructions",
	Long:  "Turns each company's unprocessed instructions into focused search queries, or explores a new lead segment when no instructions are pending.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "generate")
		if err != nil {
			return err
		}
		defer env.Close()

		if generateCompanyID != "" {
			return env.Pipeline.GenerateForCompany(ctx, generateCompanyID)
		}
		return env.Pipeline.GenerateQueries(ctx)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateCompanyID, "company", "", "generate for a single company id")
	rootCmd.AddCommand(generateCmd)
}
