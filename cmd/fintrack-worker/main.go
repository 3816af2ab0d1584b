package main

import (
	"context"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/inbox"
	applog "fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentWorker)
	cli.LogStartup(logger, cfg, "fintrack-worker")

	if !cfg.AMQPEnabled() && cfg.InboxDir == "" {
		logger.Error("Nothing to do: set AMQP_URL and/or INBOX_DIR")
		os.Exit(1)
	}

	store := cli.OpenStore(context.Background(), logger, cfg)
	amqpClient := cli.ConnectAMQP(logger, cfg, false)
	svc := cli.NewService(store, amqpClient)
	runner, closeRunner := cli.NewRunner(logger, cfg, svc)

	// Typed nils must not reach the worker's interfaces.
	var consumer worker.Consumer
	if amqpClient != nil {
		consumer = amqpClient
	}
	var scanner worker.Inbox
	if cfg.InboxDir != "" {
		scanner = inbox.New(cfg.InboxDir, runner)
	}

	w := worker.NewImportWorker(consumer, runner, scanner, worker.Config{
		InboxSchedule: cfg.InboxSchedule,
		Location:      time.Local,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", "error", err)
	}

	closeRunner()
	if amqpClient != nil {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
	}
	if err := store.Cleanup(); err != nil {
		logger.Warn("Failed to close store", "error", err)
	}

	if ctx.Err() == nil {
		os.Exit(1)
	}
	<-done
	logger.Info("Worker shutdown complete")
}
