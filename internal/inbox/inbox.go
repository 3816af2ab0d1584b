// Package inbox periodically imports statement files dropped into a
// directory laid out as <dir>/<userId>/<file>.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/extract"
	"fintrack/internal/services"

	"github.com/robfig/cron/v3"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	DefaultSchedule = "*/5 * * * *"
)

// Processor extracts and ingests one file. extract.Runner implements it.
type Processor interface {
	Process(ctx context.Context, userID string, src extract.Source) (services.BatchResult, error)
}

// Report summarises one scan.
type Report struct {
	Files      int
	Succeeded  int
	Failed     int
	Inserted   int
	Duplicates int
	Errors     int
}

type Scanner struct {
	dir  string
	proc Processor

	scanning sync.Mutex
	cron     *cron.Cron
}

func New(dir string, proc Processor) *Scanner {
	return &Scanner{dir: dir, proc: proc}
}

// Start schedules ScanOnce with a standard five-field cron expression.
func (s *Scanner) Start(schedule string, loc *time.Location) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.ScanOnce(context.Background()); err != nil {
			slog.Error("Inbox scan failed", "dir", s.dir, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("unable to schedule inbox scan: %w", err)
	}
	s.cron = c
	c.Start()
	slog.Info("Inbox scanner started", "dir", s.dir, "schedule", schedule, "timezone", loc.String())
	return nil
}

// Stop halts scheduling and waits for a running scan.
func (s *Scanner) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// ScanOnce imports every pending file. Overlapping scans are skipped.
func (s *Scanner) ScanOnce(ctx context.Context) (Report, error) {
	var rep Report
	if !s.scanning.TryLock() {
		slog.WarnContext(ctx, "Inbox scan already running, skipping")
		return rep, nil
	}
	defer s.scanning.Unlock()

	users, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("read inbox %s: %w", s.dir, err)
	}

	for _, u := range users {
		if !u.IsDir() || strings.HasPrefix(u.Name(), ".") {
			continue
		}
		userDir := filepath.Join(s.dir, u.Name())
		files, err := pendingFiles(userDir)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list user inbox", "dir", userDir, "error", err)
			continue
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.Files++
			s.importFile(ctx, u.Name(), path, &rep)
		}
	}

	if rep.Files > 0 {
		slog.InfoContext(ctx, "Inbox scan completed",
			"files", rep.Files,
			"succeeded", rep.Succeeded,
			"failed", rep.Failed,
			"inserted", rep.Inserted,
			"duplicates", rep.Duplicates,
			"errors", rep.Errors)
	}
	return rep, nil
}

func pendingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".pdf", ".xlsx":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scanner) importFile(ctx context.Context, userID, path string, rep *Report) {
	data, err := os.ReadFile(path)
	if err == nil {
		var res services.BatchResult
		res, err = s.proc.Process(ctx, userID, extract.Source{Name: filepath.Base(path), Data: data})
		rep.Inserted += res.Inserted
		rep.Duplicates += res.Duplicates
		rep.Errors += res.Errors
	}

	target := ProcessedDir
	if err != nil {
		target = FailedDir
		rep.Failed++
		slog.ErrorContext(ctx, "Inbox file failed", "user_id", userID, "file", path, "error", err)
	} else {
		rep.Succeeded++
	}
	if err := move(path, target); err != nil {
		slog.ErrorContext(ctx, "Failed to move inbox file", "file", path, "error", err)
	}
}

// move relocates path into a sibling directory, prefixing a timestamp so
// repeated uploads of the same name never collide.
func move(path, sub string) error {
	dir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	name := time.Now().UTC().Format("20060102T150405.000") + "_" + filepath.Base(path)
	return os.Rename(path, filepath.Join(dir, name))
}
