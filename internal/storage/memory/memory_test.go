package memory

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"path/filepath"
	"testing"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storagetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Store { return New() })
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	// No file -> empty store
	s := NewFromFiles(dir, nil)
	if n, _ := s.Count(context.Background(), storage.Predicate{UserID: "u1"}); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}

	seed := `[
		{"id": "a", "userId": "u1", "date": "2024-10-01", "description": "Rent", "amount": "900", "type": "Debit", "category": "Housing"},
		{"id": "a", "userId": "u1", "date": "2024-10-01", "description": "Rent again", "amount": "900", "type": "Debit"},
		{"userId": "u1", "date": "2024-10-02", "description": "Salary", "amount": "2500.00", "type": "credit"},
		{"userId": "u1", "date": "2024-10-03", "description": "", "amount": "1", "type": "Debit"}
	]`
	if err := os.WriteFile(filepath.Join(dir, seedFile), []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s = NewFromFiles(dir, nil)
	n, err := s.Count(context.Background(), storage.Predicate{UserID: "u1"})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 seeded records, got %d (err=%v)", n, err)
	}
	cats, _ := s.Distinct(context.Background(), storage.FieldCategory, storage.Predicate{UserID: "u1"})
	if len(cats) != 2 || cats[0] != "Housing" || cats[1] != "Other" {
		t.Fatalf("unexpected categories: %v", cats)
	}
}

func TestNewFromFilesLogsSkippedSeeds(t *testing.T) {
	cases := []struct {
		name  string
		seed  string
		count int64
		logs  []string
	}{
		{
			name: "malformed file",
			seed: `{"not": "an array"`,
			logs: []string{"Ignoring malformed seed file"},
		},
		{
			name: "duplicate and invalid records",
			seed: `[
				{"id": "a", "userId": "u1", "date": "2024-10-01", "description": "Rent", "amount": "900", "type": "Debit"},
				{"id": "a", "userId": "u1", "date": "2024-10-01", "description": "Rent", "amount": "900", "type": "Debit"},
				{"id": "b", "userId": "u1", "date": "2024-10-02", "description": "Bonus", "amount": "1", "type": "Refund"}
			]`,
			count: 1,
			logs:  []string{"Skipping seed record", "Skipping invalid seed record", "records=1", "skipped=2"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, seedFile), []byte(tc.seed), 0o644); err != nil {
				t.Fatalf("write seed: %v", err)
			}
			var buf bytes.Buffer
			s := NewFromFiles(dir, slog.New(slog.NewTextHandler(&buf, nil)))

			n, err := s.Count(context.Background(), storage.Predicate{UserID: "u1"})
			if err != nil || n != tc.count {
				t.Fatalf("expected %d records, got %d (err=%v)", tc.count, n, err)
			}
			for _, want := range tc.logs {
				if !strings.Contains(buf.String(), want) {
					t.Fatalf("expected log to contain %q, got:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	s := New()
	s.Close()
	if err := s.Ping(context.Background()); err != storage.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Count(context.Background(), storage.Predicate{UserID: "u1"}); err != storage.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
