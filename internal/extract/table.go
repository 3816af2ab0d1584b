package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	dateColumns        = []string{"date", "transaction date", "txn date", "value date"}
	descriptionColumns = []string{"description", "particulars", "narration", "details", "remarks"}
	debitColumns       = []string{"debit", "withdrawal", "debit amount"}
	creditColumns      = []string{"credit", "deposit", "credit amount"}
	balanceColumns     = []string{"balance", "closing balance", "available balance"}
)

// TableParser maps statement tables with a header row onto transactions.
type TableParser struct{}

// ParseRows treats the first row as the header. Rows without a parseable
// date or a positive debit/credit amount are skipped.
func (TableParser) ParseRows(userID string, rows [][]string) []core.Transaction {
	out := make([]core.Transaction, 0)
	if len(rows) < 2 {
		return out
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for _, row := range rows[1:] {
		cells := map[string]string{}
		for i, v := range row {
			if i < len(header) && header[i] != "" {
				cells[header[i]] = strings.TrimSpace(v)
			}
		}
		if tx, ok := rowTransaction(userID, cells); ok {
			out = append(out, tx)
		}
	}
	return out
}

func firstCell(cells map[string]string, keys []string) string {
	for _, k := range keys {
		if v := cells[k]; v != "" {
			return v
		}
	}
	return ""
}

func rowTransaction(userID string, cells map[string]string) (core.Transaction, bool) {
	date, ok := cellDate(firstCell(cells, dateColumns))
	if !ok {
		return core.Transaction{}, false
	}

	amount, typ := decimal.Zero, core.Debit
	if v := firstCell(cells, debitColumns); v != "" {
		amount, _ = core.ParseAmount(v)
	}
	if !amount.IsPositive() {
		typ = core.Credit
		if v := firstCell(cells, creditColumns); v != "" {
			amount, _ = core.ParseAmount(v)
		}
	}
	if !amount.IsPositive() {
		return core.Transaction{}, false
	}

	tx := core.Transaction{
		UserID:      userID,
		Date:        date,
		Description: firstCell(cells, descriptionColumns),
		Amount:      amount,
		Type:        typ,
	}
	if v := firstCell(cells, balanceColumns); v != "" {
		if b, err := core.ParseAmount(v); err == nil {
			tx.Balance = &b
		}
	}
	tx.ID = core.NewTransactionID(userID, tx.Date, tx.Amount, tx.Description)
	return tx, true
}

// cellDate accepts statement date text or a raw spreadsheet date serial.
func cellDate(v string) (core.Date, bool) {
	if d, ok := parseStatementDate(v); ok {
		return d, true
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial <= 0 {
		return core.Date{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return core.Date{}, false
	}
	return core.DateOf(t), true
}

// XLSXExtractor reads the first sheet of a spreadsheet statement.
type XLSXExtractor struct {
	parser     TableParser
	classifier *Classifier
}

func NewXLSXExtractor(classifier *Classifier) *XLSXExtractor {
	return &XLSXExtractor{classifier: classifier}
}

func (e *XLSXExtractor) Extract(ctx context.Context, userID string, src Source) ([]core.Transaction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", src.Name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx %s has no sheets", src.Name)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	txs := e.parser.ParseRows(userID, rows)
	if e.classifier != nil {
		e.classifier.Apply(txs)
	}
	slog.InfoContext(ctx, "Spreadsheet parsed", "file", src.Name, "rows", len(rows), "transactions", len(txs))
	return txs, nil
}
