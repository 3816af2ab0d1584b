package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/extract"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage/memory"

	"github.com/xuri/excelize/v2"
)

type testEnv struct {
	srv    *Server
	svc    *services.TransactionService
	runner *extract.Runner
}

func newTestEnv(t *testing.T, ratePerMinute int) *testEnv {
	t.Helper()
	svc := services.NewTransactionService(memory.New(), nil)
	jobs, err := cache.NewTTLCache[extract.Job](100, time.Minute)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(jobs.Close)
	runner := extract.NewRunner(extract.NewAuto(), svc, jobs, 5*time.Second)
	t.Cleanup(runner.Close)

	srv, err := NewServer(Options{
		Addr:                ":0",
		UploadMaxBytes:      4 << 10,
		UploadRatePerMinute: ratePerMinute,
		Logger:              applog.New(applog.Config{Output: io.Discard}),
	}, svc, runner)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, svc: svc, runner: runner}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Kind       string          `json:"kind"`
	Pagination *Pagination     `json:"pagination"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope %q: %v", rr.Body.String(), err)
	}
	return env
}

const batchBody = `[
	{"date": "2024-10-01", "description": "Swiggy order", "amount": 250.50, "type": "Debit", "category": "Food"},
	{"date": "2024-10-05", "description": "Salary", "amount": "50000", "type": "Credit", "category": "Salary"},
	{"date": "2024-11-02", "description": "Uber ride", "amount": 120, "type": "Debit", "category": "Transport"},
	{"date": "2024-11-03", "description": "", "amount": 10, "type": "Debit"}
]`

func seed(t *testing.T, e *testEnv) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/transactions/u1", strings.NewReader(batchBody), "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t, 10)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := e.do(t, http.MethodGet, path, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if !decodeEnvelope(t, rr).Success {
			t.Fatalf("%s should succeed", path)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}
}

func TestInsertBatchEndpoint(t *testing.T) {
	e := newTestEnv(t, 10)

	rr := e.do(t, http.MethodPost, "/api/transactions/u1", strings.NewReader(batchBody), "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	var res services.BatchResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Inserted != 3 || res.Duplicates != 0 || res.Errors != 1 {
		t.Fatalf("unexpected first batch: %+v", res)
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 3 || res.Failures[0].Kind != core.KindValidation {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}

	// Replaying the batch only reports duplicates.
	rr = e.do(t, http.MethodPost, "/api/transactions/u1", strings.NewReader(batchBody), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("replay status=%d", rr.Code)
	}
	res = services.BatchResult{}
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &res)
	if res.Inserted != 0 || res.Duplicates != 3 || res.Errors != 1 {
		t.Fatalf("replay should be idempotent: %+v", res)
	}
}

func TestInsertBatchRejectsBadBodies(t *testing.T) {
	e := newTestEnv(t, 10)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed json", `[{"date":`, http.StatusBadRequest},
		{"too large", "[" + strings.Repeat(" ", 8<<10) + "]", http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/api/transactions/u1", strings.NewReader(tt.body), "application/json")
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			env := decodeEnvelope(t, rr)
			if env.Success || env.Message == "" {
				t.Fatalf("expected failure envelope, got %+v", env)
			}
		})
	}
}

func TestListEndpoint(t *testing.T) {
	e := newTestEnv(t, 10)
	seed(t, e)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantItems int
		wantTotal int64
		wantMore  bool
	}{
		{"all", "", http.StatusOK, 3, 3, false},
		{"paged", "?limit=2", http.StatusOK, 2, 3, true},
		{"skip past end", "?skip=10", http.StatusOK, 0, 3, false},
		{"category", "?category=Food", http.StatusOK, 1, 1, false},
		{"type", "?type=Debit", http.StatusOK, 2, 2, false},
		{"date range", "?startDate=2024-11-01&endDate=2024-11-30", http.StatusOK, 1, 1, false},
		{"amount range", "?minAmount=100&maxAmount=300", http.StatusOK, 2, 2, false},
		{"unknown keys ignored", "?color=blue", http.StatusOK, 3, 3, false},
		{"bad date", "?startDate=yesterday", http.StatusBadRequest, 0, 0, false},
		{"bad sort", "?sort=colour", http.StatusBadRequest, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, "/api/transactions/u1"+tt.query, nil, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			env := decodeEnvelope(t, rr)
			if tt.wantCode != http.StatusOK {
				if env.Success || env.Kind != string(core.KindValidation) {
					t.Fatalf("expected validation failure, got %+v", env)
				}
				return
			}
			var items []core.Transaction
			if err := json.Unmarshal(env.Data, &items); err != nil {
				t.Fatalf("decode items: %v", err)
			}
			if len(items) != tt.wantItems {
				t.Errorf("items=%d want %d", len(items), tt.wantItems)
			}
			if env.Pagination == nil || env.Pagination.Total != tt.wantTotal || env.Pagination.HasMore != tt.wantMore {
				t.Errorf("pagination=%+v want total %d hasMore %v", env.Pagination, tt.wantTotal, tt.wantMore)
			}
		})
	}
}

func TestListIsolatesUsers(t *testing.T) {
	e := newTestEnv(t, 10)
	seed(t, e)

	rr := e.do(t, http.MethodGet, "/api/transactions/u2", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if !env.Success || string(env.Data) != "[]" || env.Pagination.Total != 0 {
		t.Fatalf("another user's data leaked: %s", rr.Body.String())
	}
}

func TestMonthEndpoint(t *testing.T) {
	e := newTestEnv(t, 10)
	seed(t, e)

	month := e.do(t, http.MethodGet, "/api/transactions/u1/month/2024/10", nil, "")
	explicit := e.do(t, http.MethodGet,
		"/api/transactions/u1?startDate=2024-10-01T00:00:00Z&endDate=2024-10-31T23:59:59.999Z", nil, "")
	if month.Code != http.StatusOK || explicit.Code != http.StatusOK {
		t.Fatalf("status month=%d explicit=%d", month.Code, explicit.Code)
	}
	m, x := decodeEnvelope(t, month), decodeEnvelope(t, explicit)
	if string(m.Data) != string(x.Data) || m.Pagination.Total != 2 || x.Pagination.Total != 2 {
		t.Fatalf("month query should equal explicit range:\n%s\n%s", month.Body.String(), explicit.Body.String())
	}

	for _, path := range []string{"/api/transactions/u1/month/2024/13", "/api/transactions/u1/month/abc/1"} {
		rr := e.do(t, http.MethodGet, path, nil, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s status=%d want 400", path, rr.Code)
		}
	}
}

func TestSummaryEndpoint(t *testing.T) {
	e := newTestEnv(t, 10)

	rr := e.do(t, http.MethodGet, "/api/transactions/u1/summary", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("empty summary status=%d", rr.Code)
	}
	var empty core.Summary
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &empty)
	if !empty.Overview.TotalDebit.IsZero() || len(empty.Categories) != 0 {
		t.Fatalf("empty summary should be zero valued: %+v", empty)
	}

	seed(t, e)
	rr = e.do(t, http.MethodGet, "/api/transactions/u1/summary?startDate=2024-10-01&endDate=2024-10-31", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var s core.Summary
	if err := json.Unmarshal(decodeEnvelope(t, rr).Data, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if s.Overview.TotalDebit.String() != "250.5" || s.Overview.TotalCredit.String() != "50000" {
		t.Errorf("unexpected overview: %+v", s.Overview)
	}
	if len(s.Categories) != 2 {
		t.Errorf("expected two categories in October, got %+v", s.Categories)
	}

	rr = e.do(t, http.MethodGet, "/api/transactions/u1/summary?endDate=not-a-date", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad range status=%d want 400", rr.Code)
	}
}

func TestCategoriesAndDelete(t *testing.T) {
	e := newTestEnv(t, 10)
	seed(t, e)

	rr := e.do(t, http.MethodGet, "/api/transactions/u1/categories", nil, "")
	var cats []string
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &cats)
	if len(cats) != 3 {
		t.Fatalf("categories=%v", cats)
	}

	rr = e.do(t, http.MethodDelete, "/api/transactions/u1", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	var deleted map[string]int64
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &deleted)
	if deleted["deleted"] != 3 {
		t.Fatalf("deleted=%v", deleted)
	}

	rr = e.do(t, http.MethodDelete, "/api/transactions/u1", nil, "")
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &deleted)
	if rr.Code != http.StatusOK || deleted["deleted"] != 0 {
		t.Fatalf("second delete should succeed with zero: %d %v", rr.Code, deleted)
	}

	rr = e.do(t, http.MethodGet, "/api/transactions/u1/categories", nil, "")
	if body := string(decodeEnvelope(t, rr).Data); body != "[]" {
		t.Fatalf("categories should be empty after delete, got %s", body)
	}
}

func TestExportEndpoint(t *testing.T) {
	e := newTestEnv(t, 10)
	seed(t, e)

	rr := e.do(t, http.MethodGet, "/api/transactions/u1/export?startDate=2024-10-01", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("content type=%q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "transactions_u1_from_2024-10-01.xlsx") {
		t.Errorf("content disposition=%q", cd)
	}

	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows(export.TransactionsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus three rows, got %d", len(rows))
	}
}

func TestUploadAndJob(t *testing.T) {
	e := newTestEnv(t, 10)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "statement.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(batchBody))
	_ = mw.Close()

	rr := e.do(t, http.MethodPost, "/api/uploads/u1", &body, mw.FormDataContentType())
	if rr.Code != http.StatusAccepted {
		t.Fatalf("upload status=%d body=%s", rr.Code, rr.Body.String())
	}
	var job extract.Job
	if err := json.Unmarshal(decodeEnvelope(t, rr).Data, &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID == "" || job.Source != "statement.json" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/jobs/"+job.ID {
		t.Errorf("Location=%q", loc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.runner.Wait(ctx, job.ID); err != nil {
		t.Fatalf("wait: %v", err)
	}

	rr = e.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("job status=%d", rr.Code)
	}
	var done extract.Job
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &done)
	if done.Status != extract.JobCompleted || done.Result == nil || done.Result.Inserted != 3 {
		t.Fatalf("unexpected finished job: %+v", done)
	}

	rr = e.do(t, http.MethodGet, "/api/jobs/missing", nil, "")
	if rr.Code != http.StatusNotFound || decodeEnvelope(t, rr).Kind != string(core.KindNotFound) {
		t.Fatalf("missing job status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUploadValidation(t *testing.T) {
	e := newTestEnv(t, 10)
	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"empty raw body", "", "application/pdf", http.StatusBadRequest},
		{"unsupported format", "hello", "text/plain", http.StatusBadRequest},
		{"multipart without file", "--x--\r\n", "multipart/form-data; boundary=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, "/api/uploads/u1", strings.NewReader(tt.body), tt.contentType)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestUploadRawBodyUsesContentType(t *testing.T) {
	e := newTestEnv(t, 10)
	rr := e.do(t, http.MethodPost, "/api/uploads/u1", strings.NewReader(batchBody), "application/json")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var job extract.Job
	_ = json.Unmarshal(decodeEnvelope(t, rr).Data, &job)
	if job.Source != "upload.json" {
		t.Errorf("source=%q want upload.json", job.Source)
	}
}

func TestUploadRateLimited(t *testing.T) {
	e := newTestEnv(t, 1)

	first := e.do(t, http.MethodPost, "/api/uploads/u1", strings.NewReader(batchBody), "application/json")
	if first.Code != http.StatusAccepted {
		t.Fatalf("first upload status=%d", first.Code)
	}
	second := e.do(t, http.MethodPost, "/api/uploads/u1", strings.NewReader(batchBody), "application/json")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status=%d want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if env := decodeEnvelope(t, second); env.Success {
		t.Error("rate limited response should fail")
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	e := newTestEnv(t, 10)
	rr := e.do(t, http.MethodGet, "/nope", nil, "")
	if rr.Code != http.StatusNotFound || decodeEnvelope(t, rr).Success {
		t.Fatalf("unknown route status=%d", rr.Code)
	}
	rr = e.do(t, http.MethodPut, "/api/transactions/u1", nil, "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method status=%d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.NewValidationError("limit", "bad"), http.StatusBadRequest},
		{"not found", &core.NotFoundError{Resource: "job", ID: "x"}, http.StatusNotFound},
		{"duplicate", core.ErrDuplicate, http.StatusConflict},
		{"storage", core.NewStorageError("find", errors.New("down")), http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"runner closed", extract.ErrRunnerClosed, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

type failingService struct {
	*services.TransactionService
}

func (failingService) Ping(context.Context) error { return errors.New("db down") }

func (failingService) GetByUser(context.Context, string, core.Filter) (core.Page, error) {
	return core.Page{}, core.NewStorageError("find", errors.New("connection refused"))
}

func TestStorageFailuresAreNotEmptyResults(t *testing.T) {
	svc := failingService{services.NewTransactionService(memory.New(), nil)}
	srv, err := NewServer(Options{Logger: applog.New(applog.Config{Output: io.Discard})}, svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/transactions/u1", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.Success || env.Kind != string(core.KindStorage) || strings.Contains(env.Message, "connection refused") {
		t.Fatalf("storage failure should be an opaque failure envelope: %+v", env)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rr.Code)
	}
}
