package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/custodia-fin/custodia/internal/app"
	jobmetrics "github.com/custodia-fin/custodia/internal/jobs"
	"github.com/custodia-fin/custodia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dispatcher := jobs.NewWebhookDispatcher(cfg.WebhookURL, logger, jobmetrics.NewMetrics(nil))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Queues:    map[string]int{jobs.QueueEvents: 1},
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeWebhookDeliver, Handler: dispatcher.HandleTask},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec: "*/15 * * * *",
				Task: jobs.NewPermissionSweepTask(),
				Options: []asynq.Option{
					asynq.Queue(jobs.QueueMaintenance),
					asynq.MaxRetry(1),
				},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
