package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// record is the wire shape produced by external extractors. Both camelCase
// and snake_case raw line keys are accepted; amounts may be numbers or
// strings.
type record struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Balance     json.RawMessage `json:"balance"`
	RawLine     *string         `json:"rawLine"`
	RawLineAlt  *string         `json:"raw_line"`
}

// DecodeRecords reads a JSON array of records, or an object holding one
// under "transactions". Fields that fail to parse are left zero so that the
// ingestion validation reports them per record.
func DecodeRecords(data []byte) ([]core.Transaction, error) {
	data = bytes.TrimSpace(data)
	var recs []record
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Transactions []record `json:"transactions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		recs = wrapped.Transactions
	} else if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	out := make([]core.Transaction, 0, len(recs))
	for _, r := range recs {
		tx := core.Transaction{
			ID:          r.ID,
			UserID:      r.UserID,
			Description: r.Description,
			Type:        core.TransactionType(r.Type),
			Category:    r.Category,
			RawLine:     r.RawLine,
		}
		if tx.RawLine == nil {
			tx.RawLine = r.RawLineAlt
		}
		if d, err := core.ParseDate(r.Date); err == nil {
			tx.Date = d
		}
		if amt, ok := decodeNumber(r.Amount); ok {
			tx.Amount = amt
		} else if len(r.Amount) > 0 {
			// Unparseable amounts are surfaced as negative so validation rejects them.
			tx.Amount = decimal.NewFromInt(-1)
		}
		if bal, ok := decodeNumber(r.Balance); ok {
			tx.Balance = &bal
		}
		out = append(out, tx)
	}
	return out, nil
}

func decodeNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, false
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Zero, false
		}
		d, err := core.ParseAmount(str)
		return d, err == nil
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

// JSONDecoder extracts records from upstream JSON output files.
type JSONDecoder struct {
	Classifier *Classifier
}

func (j JSONDecoder) Extract(_ context.Context, userID string, src Source) ([]core.Transaction, error) {
	txs, err := DecodeRecords(src.Data)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		if txs[i].UserID == "" {
			txs[i].UserID = userID
		}
	}
	if j.Classifier != nil {
		j.Classifier.Apply(txs)
	}
	return txs, nil
}
