package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"HypothesisValidator/internal/config"
	"HypothesisValidator/internal/logging"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "hypothesisvalidator",
	Short:         "Validate research hypotheses against scientific articles",
	Long:          "Fetches scientific articles, asks an LLM how each one bears on a hypothesis and caches every verdict.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		logger = logging.New(cfg.Logging)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
