package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/extract"
	"fintrack/internal/inbox"
	"fintrack/internal/services"
)

type fakeConsumer struct {
	requests []*amqp.ImportRequest
	err      error

	mu      sync.Mutex
	results []error
}

func (f *fakeConsumer) ConsumeImportRequests(ctx context.Context, handler amqp.HandlerFunc) error {
	for _, req := range f.requests {
		err := handler(ctx, req)
		f.mu.Lock()
		f.results = append(f.results, err)
		f.mu.Unlock()
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeInbox struct {
	scans    int
	started  string
	stopped  bool
	scanErr  error
	startErr error
}

func (f *fakeInbox) ScanOnce(context.Context) (inbox.Report, error) {
	f.scans++
	return inbox.Report{Files: 2, Succeeded: 2}, f.scanErr
}

func (f *fakeInbox) Start(schedule string, _ *time.Location) error {
	f.started = schedule
	return f.startErr
}

func (f *fakeInbox) Stop() { f.stopped = true }

type recordingProcessor struct {
	mu    sync.Mutex
	users []string
}

func (p *recordingProcessor) Process(_ context.Context, userID string, src extract.Source) (services.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	return services.BatchResult{Inserted: 1}, nil
}

func request(userID string) *amqp.ImportRequest {
	return amqp.NewImportRequest(userID, "test", json.RawMessage(`[{"date":"2024-10-01","description":"x","amount":1,"type":"Debit"}]`))
}

func TestRunProcessesRequestsAndStartsInbox(t *testing.T) {
	consumer := &fakeConsumer{requests: []*amqp.ImportRequest{request("u1"), request("")}}
	in := &fakeInbox{}
	proc := &recordingProcessor{}
	w := NewImportWorker(consumer, proc, in, Config{InboxSchedule: "*/1 * * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		consumer.mu.Lock()
		n := len(consumer.results)
		consumer.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("requests were not handled")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if in.scans != 1 || in.started != "*/1 * * * *" || !in.stopped {
		t.Errorf("inbox lifecycle not followed: %+v", in)
	}
	if len(proc.users) != 1 || proc.users[0] != "u1" {
		t.Errorf("processed users = %v", proc.users)
	}
	if consumer.results[0] != nil {
		t.Errorf("valid request failed: %v", consumer.results[0])
	}
	if !amqp.IsPermanent(consumer.results[1]) {
		t.Errorf("request without user should fail permanently, got %v", consumer.results[1])
	}
}

func TestRunReportsConsumerFailure(t *testing.T) {
	consumer := &fakeConsumer{err: errors.New("access refused")}
	w := NewImportWorker(consumer, &recordingProcessor{}, nil, Config{})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected consumer failure to surface")
	}
}

func TestRunWithoutSources(t *testing.T) {
	w := NewImportWorker(nil, &recordingProcessor{}, nil, Config{})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error when nothing is configured")
	}
}

func TestRunInboxOnly(t *testing.T) {
	in := &fakeInbox{scanErr: errors.New("permission denied")}
	w := NewImportWorker(nil, &recordingProcessor{}, in, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if in.scans != 1 || !in.stopped {
		t.Errorf("failed startup scan should not stop the schedule: %+v", in)
	}
}

func TestRunInboxStartFailure(t *testing.T) {
	in := &fakeInbox{startErr: errors.New("bad schedule")}
	w := NewImportWorker(nil, &recordingProcessor{}, in, Config{})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}
