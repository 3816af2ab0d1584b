package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

var ErrRunnerClosed = errors.New("job runner closed")

// Job tracks one asynchronous extract-and-ingest run.
type Job struct {
	ID         string                `json:"id"`
	UserID     string                `json:"userId"`
	Source     string                `json:"source"`
	Status     JobStatus             `json:"status"`
	Result     *services.BatchResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Ingester stores extracted records. TransactionService implements it.
type Ingester interface {
	InsertBatch(ctx context.Context, userID string, txs []core.Transaction) (services.BatchResult, error)
}

// Runner executes extraction jobs in the background with a bounded timeout.
// In-flight jobs live in memory; finished jobs are kept in the cache until
// they expire.
type Runner struct {
	extractor Extractor
	ingester  Ingester
	finished  cache.Cache[Job]
	timeout   time.Duration

	mu      sync.Mutex
	active  map[string]Job
	done    map[string]chan struct{}
	closed  bool
	workers sync.WaitGroup
}

func NewRunner(extractor Extractor, ingester Ingester, finished cache.Cache[Job], timeout time.Duration) *Runner {
	return &Runner{
		extractor: extractor,
		ingester:  ingester,
		finished:  finished,
		timeout:   timeout,
		active:    map[string]Job{},
		done:      map[string]chan struct{}{},
	}
}

// Process extracts src and ingests the result synchronously.
func (r *Runner) Process(ctx context.Context, userID string, src Source) (services.BatchResult, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	txs, err := r.extractor.Extract(ctx, userID, src)
	if err != nil {
		return services.BatchResult{}, fmt.Errorf("extract %s: %w", src.Name, err)
	}
	return r.ingester.InsertBatch(ctx, userID, txs)
}

func (r *Runner) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Submit registers a job and starts it. The job outlives the caller's
// request but not the runner's timeout.
func (r *Runner) Submit(ctx context.Context, userID string, src Source) (Job, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Job{}, core.NewValidationError("userId", "is required")
	}
	if _, err := src.Format(); err != nil {
		return Job{}, core.NewValidationError("file", "%v", err)
	}

	job := Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Source:    src.Name,
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Job{}, ErrRunnerClosed
	}
	r.active[job.ID] = job
	r.done[job.ID] = make(chan struct{})
	r.workers.Add(1)
	r.mu.Unlock()

	go r.run(context.WithoutCancel(ctx), job, src)

	slog.InfoContext(ctx, "Extraction job submitted", "job_id", job.ID, "user_id", userID, "file", src.Name)
	return job, nil
}

func (r *Runner) run(ctx context.Context, job Job, src Source) {
	defer r.workers.Done()

	job.Status = JobRunning
	r.update(job)

	res, err := r.Process(ctx, job.UserID, src)
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		slog.ErrorContext(ctx, "Extraction job failed", "job_id", job.ID, "error", err)
	} else {
		job.Status = JobCompleted
		slog.InfoContext(ctx, "Extraction job completed",
			"job_id", job.ID,
			"inserted", res.Inserted,
			"duplicates", res.Duplicates,
			"errors", res.Errors)
	}
	// Partial progress is reported even when the batch was cut short.
	if err == nil || res.Total() > 0 {
		job.Result = &res
	}
	r.finish(job)
}

func (r *Runner) update(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[job.ID] = job
}

func (r *Runner) finish(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished != nil && r.finished.Set(job.ID, job) {
		delete(r.active, job.ID)
	} else {
		r.active[job.ID] = job
	}
	if ch, ok := r.done[job.ID]; ok {
		close(ch)
		delete(r.done, job.ID)
	}
}

// Get returns the current state of a job.
func (r *Runner) Get(id string) (Job, error) {
	r.mu.Lock()
	job, ok := r.active[id]
	r.mu.Unlock()
	if ok {
		return job, nil
	}
	if r.finished != nil {
		if job, ok := r.finished.Get(id); ok {
			return job, nil
		}
	}
	return Job{}, &core.NotFoundError{Resource: "job", ID: id}
}

// Wait blocks until the job finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.Lock()
	ch, ok := r.done[id]
	r.mu.Unlock()
	if ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
	return r.Get(id)
}

// Close stops accepting jobs and waits for running ones.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.workers.Wait()
}
