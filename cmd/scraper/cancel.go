package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grez-lucas/bancoestado-scraper/internal/task/redisqueue"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Ask the workers to cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rdb, err := redisqueue.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		q := redisqueue.New(rdb, redisqueue.WithKeys(redisqueue.Keys{
			Queue:      cfg.Queue.Key,
			TaskPrefix: cfg.Queue.TaskKeyPrefix,
			Control:    cfg.Queue.ControlKey,
		}))
		if err := q.Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
