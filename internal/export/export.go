// Package export renders a user's transactions as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fintrack/internal/core"

	"github.com/xuri/excelize/v2"
)

const (
	TransactionsSheet = "Transactions"
	SummarySheet      = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var transactionHeader = []any{"Date", "Description", "Category", "Type", "Amount", "Net", "Balance", "ID"}

// Source is the read side needed for an export. services.TransactionService
// implements it.
type Source interface {
	Collect(ctx context.Context, userID string, f core.Filter) ([]core.Transaction, error)
	Summary(ctx context.Context, userID string, start, end *time.Time) (core.Summary, error)
}

type Exporter struct {
	src Source
}

func New(src Source) *Exporter {
	return &Exporter{src: src}
}

// FileName is the suggested attachment name for userID's export.
func FileName(userID string, f core.Filter) string {
	name := "transactions_" + userID
	if f.StartDate != nil {
		name += "_from_" + core.DateOf(*f.StartDate).String()
	}
	if f.EndDate != nil {
		name += "_to_" + core.DateOf(*f.EndDate).String()
	}
	return name + ".xlsx"
}

// Write streams every record matching f plus the period summary to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, userID string, f core.Filter) (int, error) {
	txs, err := e.src.Collect(ctx, userID, f)
	if err != nil {
		return 0, err
	}
	summary, err := e.src.Summary(ctx, userID, f.StartDate, f.EndDate)
	if err != nil {
		return 0, err
	}

	book, err := Build(txs, summary)
	if err != nil {
		return 0, err
	}
	defer book.Close()

	if err := book.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	slog.InfoContext(ctx, "Transactions exported", "user_id", userID, "rows", len(txs))
	return len(txs), nil
}

// Build lays out the workbook in memory.
func Build(txs []core.Transaction, summary core.Summary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), TransactionsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeTransactions(f, txs); err != nil {
		f.Close()
		return nil, fmt.Errorf("transactions sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, summary); err != nil {
		f.Close()
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	return f, nil
}

func writeTransactions(f *excelize.File, txs []core.Transaction) error {
	if err := f.SetSheetRow(TransactionsSheet, "A1", &transactionHeader); err != nil {
		return err
	}
	for i, tx := range txs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var balance any
		if tx.Balance != nil {
			balance = tx.Balance.InexactFloat64()
		}
		row := []any{
			tx.Date.String(),
			tx.Description,
			tx.Category,
			string(tx.Type),
			tx.Amount.InexactFloat64(),
			tx.Signed().InexactFloat64(),
			balance,
			tx.ID,
		}
		if err := f.SetSheetRow(TransactionsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(TransactionsSheet, "B", "B", 48)
}

func writeSummary(f *excelize.File, s core.Summary) error {
	ov := s.Overview
	rows := [][]any{
		{"Total credit", ov.TotalCredit.InexactFloat64(), ov.CreditCount},
		{"Total debit", ov.TotalDebit.InexactFloat64(), ov.DebitCount},
		{"Net", ov.NetAmount.InexactFloat64()},
		{},
		{"Category", "Debit", "Credit", "Count"},
	}
	for _, c := range s.Categories {
		rows = append(rows, []any{c.Category, c.Debit.InexactFloat64(), c.Credit.InexactFloat64(), c.Count})
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}
