package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grez-lucas/bancoestado-scraper/internal/task"
	"github.com/grez-lucas/bancoestado-scraper/internal/task/redisqueue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process scraping tasks from the Redis queue until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().Named("worker")

		rdb, err := redisqueue.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		q := redisqueue.New(rdb,
			redisqueue.WithLogger(log),
			redisqueue.WithKeys(redisqueue.Keys{
				Queue:      cfg.Queue.Key,
				TaskPrefix: cfg.Queue.TaskKeyPrefix,
				Control:    cfg.Queue.ControlKey,
			}),
		)

		p := newPipeline(cfg, q, true, log)
		w := task.NewWorker(q, q, q, p,
			task.WithLogger(log),
			task.WithSite(cfg.Site),
			task.WithPollInterval(cfg.Queue.Poll()),
			task.WithControl(q),
		)

		log.Info("waiting for tasks", zap.String("queue", cfg.Queue.Key), zap.String("redis", cfg.Redis.Addr))
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
