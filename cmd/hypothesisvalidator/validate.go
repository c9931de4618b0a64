package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"HypothesisValidator/internal/app"
)

var (
	validateHypothesis string
	validateURL        string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one article against a hypothesis and print the verdict as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer application.Close()

		result, err := application.Validator().Validate(cmd.Context(), validateHypothesis, validateURL)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"article_id":    result.ArticleID,
			"hypothesis_id": result.HypothesisID,
			"relevancy":     result.Verdict.Relevancy,
			"key_take":      result.Verdict.KeyTake,
			"validity":      result.Verdict.Validity,
		})
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateHypothesis, "hypothesis", "", "hypothesis text")
	validateCmd.Flags().StringVar(&validateURL, "url", "", "article URL")
	_ = validateCmd.MarkFlagRequired("hypothesis")
	_ = validateCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(validateCmd)
}
