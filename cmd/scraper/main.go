package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "BancoEstado movements scraper",
	Long:  "Logs into the BancoEstado personas portal with a stealth browser, extracts accounts and movements, and publishes the results for the backend.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if err := cfg.Validate(cmd.Name()); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
