package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/inbox"
)

// Consumer delivers import requests. *amqp.Client implements it.
type Consumer interface {
	ConsumeImportRequests(ctx context.Context, handler amqp.HandlerFunc) error
}

// Inbox is the scheduled directory scanner. *inbox.Scanner implements it.
type Inbox interface {
	ScanOnce(ctx context.Context) (inbox.Report, error)
	Start(schedule string, loc *time.Location) error
	Stop()
}

type Config struct {
	InboxSchedule string
	Location      *time.Location
}

// ImportWorker feeds queued import requests and inbox files into the
// ingestion pipeline. Either source may be absent.
type ImportWorker struct {
	consumer Consumer
	handler  amqp.HandlerFunc
	inbox    Inbox
	config   Config

	wg sync.WaitGroup
}

func NewImportWorker(consumer Consumer, proc amqp.Processor, in Inbox, config Config) *ImportWorker {
	return &ImportWorker{
		consumer: consumer,
		handler:  amqp.ImportHandler(proc),
		inbox:    in,
		config:   config,
	}
}

// StartupScan imports files that arrived while the worker was down.
func (w *ImportWorker) StartupScan(ctx context.Context) error {
	if w.inbox == nil {
		return nil
	}
	rep, err := w.inbox.ScanOnce(ctx)
	if err != nil {
		return fmt.Errorf("startup inbox scan: %w", err)
	}
	if rep.Files == 0 {
		slog.InfoContext(ctx, "No pending inbox files found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup inbox scan completed",
		"files", rep.Files,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed)
	return nil
}

// Run starts the inbox schedule and the consumer and blocks until ctx is
// done or consumption fails for good.
func (w *ImportWorker) Run(ctx context.Context) error {
	if w.consumer == nil && w.inbox == nil {
		return errors.New("worker has neither a message consumer nor an inbox")
	}

	if err := w.StartupScan(ctx); err != nil {
		// A failed startup scan must not keep the consumer down.
		slog.ErrorContext(ctx, "Startup inbox scan failed", "error", err)
	}

	if w.inbox != nil {
		if err := w.inbox.Start(w.config.InboxSchedule, w.config.Location); err != nil {
			return err
		}
		defer w.inbox.Stop()
	} else {
		slog.InfoContext(ctx, "Inbox disabled - no INBOX_DIR provided")
	}

	if w.consumer == nil {
		slog.InfoContext(ctx, "Skipping AMQP message consumption - no broker configured")
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		errCh <- w.consumer.ConsumeImportRequests(ctx, w.handler)
	}()

	select {
	case <-ctx.Done():
		w.wg.Wait()
		return nil
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("message consumption failed: %w", err)
	}
}
