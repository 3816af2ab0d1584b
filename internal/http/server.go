package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/extract"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"

	"github.com/go-chi/chi/v5"
)

// TransactionService is the engine behind the transaction routes.
// *services.TransactionService implements it.
type TransactionService interface {
	export.Source
	InsertBatch(ctx context.Context, userID string, txs []core.Transaction) (services.BatchResult, error)
	GetByUser(ctx context.Context, userID string, f core.Filter) (core.Page, error)
	GetByMonth(ctx context.Context, userID string, year, month int, f core.Filter) (core.Page, error)
	DistinctCategories(ctx context.Context, userID string) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	Ping(ctx context.Context) error
}

// JobRunner queues statement extraction. *extract.Runner implements it.
type JobRunner interface {
	Submit(ctx context.Context, userID string, src extract.Source) (extract.Job, error)
	Get(id string) (extract.Job, error)
}

type exporter interface {
	Write(ctx context.Context, w io.Writer, userID string, f core.Filter) (int, error)
}

type Options struct {
	Addr                string
	UploadMaxBytes      int64
	UploadRatePerMinute int
	TrustedProxies      []string
	Logger              *applog.Logger
}

type Server struct {
	http.Server
	transactions   TransactionService
	jobs           JobRunner
	exporter       exporter
	uploadMaxBytes int64

	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options, txs TransactionService, jobs JobRunner) (*Server, error) {
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = 20 << 20
	}

	s := &Server{
		transactions:   txs,
		jobs:           jobs,
		exporter:       export.New(txs),
		uploadMaxBytes: opts.UploadMaxBytes,
		tracer:         trace.NewMiddleware(clientIP.Extract),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.UploadRatePerMinute,
		}),
	}

	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(logger, trace.GetRequestID))
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, core.KindValidation, "method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Route("/transactions/{userId}", func(r chi.Router) {
			r.Post("/", s.handleInsertBatch)
			r.Get("/", s.handleList)
			r.Delete("/", s.handleDeleteAll)
			r.Get("/month/{year}/{month}", s.handleListMonth)
			r.Get("/summary", s.handleSummary)
			r.Get("/categories", s.handleCategories)
			r.Get("/export", s.handleExport)
		})

		r.With(s.rateLimiter.Middleware(clientIP.Extract, handleRateLimited)).
			Post("/uploads/{userId}", s.handleUpload)
		r.Get("/jobs/{jobId}", s.handleGetJob)
	})

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and the limiter cleanup routine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes request counters gathered by the tracing middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.transactions.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, core.KindStorage, "store unavailable").Write(w)
		return
	}
	NewResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
