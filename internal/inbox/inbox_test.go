package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/extract"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func count(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

func TestScanOnce(t *testing.T) {
	dir := t.TempDir()
	store := memory.New()
	svc := services.NewTransactionService(store, nil)
	runner := extract.NewRunner(extract.NewAuto(), svc, nil, time.Second)

	write(t, filepath.Join(dir, "u1", "october.json"), `[
		{"date": "2024-10-01", "description": "Rent", "amount": 900, "type": "Debit"},
		{"date": "2024-10-02", "description": "Salary", "amount": 2500, "type": "Credit"}
	]`)
	write(t, filepath.Join(dir, "u1", "broken.json"), `{not json`)
	write(t, filepath.Join(dir, "u1", "notes.txt"), `ignored`)
	write(t, filepath.Join(dir, "u2", "nov.json"), `[{"date": "2024-11-01", "description": "Coffee", "amount": "3.50", "type": "Debit"}]`)

	s := New(dir, runner)
	rep, err := s.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if rep.Files != 3 || rep.Succeeded != 2 || rep.Failed != 1 || rep.Inserted != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	if n, _ := store.Count(context.Background(), storage.Predicate{UserID: "u1"}); n != 2 {
		t.Fatalf("expected 2 records for u1, got %d", n)
	}
	if n, _ := store.Count(context.Background(), storage.Predicate{UserID: "u2"}); n != 1 {
		t.Fatalf("expected 1 record for u2, got %d", n)
	}

	if got := count(t, filepath.Join(dir, "u1", ProcessedDir)); got != 1 {
		t.Fatalf("expected 1 processed file, got %d", got)
	}
	if got := count(t, filepath.Join(dir, "u1", FailedDir)); got != 1 {
		t.Fatalf("expected 1 failed file, got %d", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "u1", "notes.txt")); err != nil {
		t.Fatalf("unrelated files must stay put: %v", err)
	}

	// A second scan finds nothing new.
	rep, err = s.ScanOnce(context.Background())
	if err != nil || rep.Files != 0 {
		t.Fatalf("expected empty rescan, got %+v %v", rep, err)
	}
}

func TestScanOnceMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent"), nil)
	rep, err := s.ScanOnce(context.Background())
	if err != nil || rep.Files != 0 {
		t.Fatalf("missing inbox should be a no-op: %+v %v", rep, err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(t.TempDir(), nil)
	if err := s.Start("not a schedule", nil); err == nil {
		t.Fatalf("expected schedule error")
	}
	if err := s.Start("@every 1h", time.UTC); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
