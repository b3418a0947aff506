package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/backend"
	"github.com/grez-lucas/bancoestado-scraper/internal/task"
)

var (
	runRUT      string
	runPassword string
	runOut      string
	runDeliver  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction and print the result as JSON",
	Long:  "Runs a single extraction outside the queue. The password falls back to SCRAPER_PASSWORD so it does not have to appear in the shell history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		password := runPassword
		if password == "" {
			password = os.Getenv("SCRAPER_PASSWORD")
		}

		log := zap.L().Named("run")
		t := task.Task{
			ID:   uuid.NewString(),
			Site: cfg.Site,
			Data: map[string]any{
				"rut_or_username": runRUT,
				"password":        password,
			},
		}

		p := newPipeline(cfg, task.LogSink{Log: log}, runDeliver, log)
		out, err := p.Execute(ctx, t)
		if err != nil {
			return err
		}

		if runOut != "" {
			path, err := backend.SaveJSON(runOut, out.Result, out.Result.ExtractedAt, t.ID)
			if err != nil {
				return err
			}
			log.Info("result saved", zap.String("path", path))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runRUT, "rut", "", "RUT or username")
	runCmd.Flags().StringVar(&runPassword, "password", "", "portal password (default $SCRAPER_PASSWORD)")
	runCmd.Flags().StringVar(&runOut, "out", "", "directory for a timestamped copy of the result")
	runCmd.Flags().BoolVar(&runDeliver, "deliver", false, "also send the normalized movements to the backend")
	_ = runCmd.MarkFlagRequired("rut")
	rootCmd.AddCommand(runCmd)
}
