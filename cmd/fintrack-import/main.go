package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/extract"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

var supported = map[string]bool{".pdf": true, ".json": true, ".xlsx": true}

func main() {
	userID := flag.String("user", "", "user id the records belong to (required)")
	dryRun := flag.Bool("dry-run", false, "extract into an in-memory store instead of the configured backend")
	outDir := flag.String("out", "", "directory to write the extracted records as JSON")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -user ID [flags] FILE|DIR...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*userID) == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentIngest)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentIngest)
	if *dryRun {
		cfg.DataBackend = config.BackendMemory
		cfg.AMQPURL = ""
	}

	files, err := collectFiles(flag.Args())
	if err != nil {
		logger.Error("Failed to list input files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Error("No PDF, XLSX or JSON files found", "paths", flag.Args())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := cli.OpenStore(ctx, logger, cfg)
	defer store.Cleanup()
	amqpClient := cli.ConnectAMQP(logger, cfg, false)
	if amqpClient != nil {
		defer amqpClient.Close()
	}
	svc := cli.NewService(store, amqpClient)
	runner, closeRunner := cli.NewRunner(logger, cfg, svc)
	defer closeRunner()

	var (
		total    services.BatchResult
		imported []core.Transaction
		failed   int
	)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read file", applog.FieldFile, path, "error", err)
			failed++
			continue
		}
		res, err := runner.Process(ctx, *userID, extract.Source{Name: filepath.Base(path), Data: data})
		if err != nil {
			logger.Error("Failed to import file", applog.FieldFile, path, "error", err)
			failed++
			continue
		}
		logger.LogBatch(ctx, *userID, res.Inserted, res.Duplicates, res.Errors)
		total.Inserted += res.Inserted
		total.Duplicates += res.Duplicates
		total.Errors += res.Errors
		total.Failures = append(total.Failures, res.Failures...)
		imported = append(imported, res.InsertedRecords...)

		if *outDir != "" {
			if err := writeRecords(*outDir, *userID, path, res.InsertedRecords); err != nil {
				logger.Error("Failed to write extracted records", applog.FieldFile, path, "error", err)
			}
		}
	}

	if err := printSummary(ctx, svc, *userID, len(files), failed, total, imported); err != nil {
		logger.Error("Failed to summarise import", "error", err)
		os.Exit(1)
	}
	if failed == len(files) {
		os.Exit(1)
	}
}

// collectFiles expands directories one level deep and keeps supported files.
func collectFiles(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && supported[strings.ToLower(filepath.Ext(e.Name()))] {
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeRecords(dir, userID, path string, txs []core.Transaction) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Date.After(txs[j].Date.Time) })
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("transactions_%s_%s_%s.json", userID, base, time.Now().Format("20060102_150405"))
	data, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// printSummary reports the batch counters, then totals and categories over
// the date span of the newly inserted records.
func printSummary(ctx context.Context, svc *services.TransactionService, userID string, files, failed int, res services.BatchResult, imported []core.Transaction) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Files processed:\t%d (%d failed)\n", files, failed)
	fmt.Fprintf(w, "Inserted:\t%d\n", res.Inserted)
	fmt.Fprintf(w, "Duplicates:\t%d\n", res.Duplicates)
	fmt.Fprintf(w, "Errors:\t%d\n", res.Errors)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  record %d:\t%s\n", f.Index, f.Message)
	}
	if len(imported) == 0 {
		return nil
	}

	start, end := imported[0].Date.Time, imported[0].Date.Time
	for _, tx := range imported[1:] {
		if tx.Date.Before(start) {
			start = tx.Date.Time
		}
		if tx.Date.After(end) {
			end = tx.Date.Time
		}
	}
	end = end.Add(24*time.Hour - time.Millisecond)

	summary, err := svc.Summary(ctx, userID, &start, &end)
	if err != nil {
		return err
	}
	ov := summary.Overview
	fmt.Fprintf(w, "\nDate range:\t%s to %s\n", core.DateOf(start), core.DateOf(end))
	fmt.Fprintf(w, "Total debits:\t%s\t(%d transactions)\n", ov.TotalDebit.StringFixed(2), ov.DebitCount)
	fmt.Fprintf(w, "Total credits:\t%s\t(%d transactions)\n", ov.TotalCredit.StringFixed(2), ov.CreditCount)
	fmt.Fprintf(w, "Net amount:\t%s\n", ov.NetAmount.StringFixed(2))

	fmt.Fprintln(w, "\nCategory\tCount\tDebit\tCredit")
	for _, c := range summary.Categories {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.Category, c.Count, c.Debit.StringFixed(2), c.Credit.StringFixed(2))
	}
	return nil
}
