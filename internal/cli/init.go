// Package cli provides common CLI initialization utilities shared by
// cmd/fintrack, cmd/fintrack-worker and cmd/fintrack-import.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/extract"
	applog "fintrack/internal/log"
	"fintrack/internal/services"

	"github.com/joho/godotenv"
)

// maxCachedJobs bounds the finished-job cache.
const maxCachedJobs = 10_000

// SetupLogger builds the process logger and installs it as the slog default.
// An unknown level falls back to info.
func SetupLogger(level, format, component string) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Format:    format,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info log level", "error", err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the configured backend or exits the process.
func OpenStore(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// ConnectAMQP returns nil when AMQP is disabled. A broker that cannot be
// reached is fatal only when required is set.
func ConnectAMQP(logger *applog.Logger, cfg *config.Config, required bool) *amqp.Client {
	if !cfg.AMQPEnabled() {
		if required {
			logger.Error("AMQP_URL is required")
			os.Exit(1)
		}
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPEventsRoutingKey)
	if err != nil {
		if required {
			logger.Error("Failed to connect to AMQP", "error", err)
			os.Exit(1)
		}
		logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"events_routing_key", cfg.AMQPEventsRoutingKey)
	return client
}

// NewService wires the transaction service with an optional event publisher.
func NewService(store *backend.BackendResult, client *amqp.Client) *services.TransactionService {
	if client == nil {
		return services.NewTransactionService(store.Store, nil)
	}
	return services.NewTransactionService(store.Store, client)
}

// NewRunner builds the extraction job runner and its finished-job cache.
func NewRunner(logger *applog.Logger, cfg *config.Config, svc *services.TransactionService) (*extract.Runner, func()) {
	jobs, err := cache.NewTTLCache[extract.Job](maxCachedJobs, cfg.JobTTL)
	if err != nil {
		logger.Error("Failed to create job cache", "error", err)
		os.Exit(1)
	}
	runner := extract.NewRunner(extract.NewAuto(), svc, jobs, cfg.ExtractTimeout)
	return runner, func() {
		runner.Close()
		jobs.Close()
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when cleanup is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// LogStartup records the effective configuration without secrets.
func LogStartup(logger *applog.Logger, cfg *config.Config, binary string) {
	logger.Info("Starting "+binary,
		slog.String("backend", cfg.DataBackend),
		slog.Bool("amqp_enabled", cfg.AMQPEnabled()),
		slog.String("inbox_dir", cfg.InboxDir),
		slog.Duration("extract_timeout", cfg.ExtractTimeout))
}
