package extract

import (
	"regexp"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const (
	minLineLength        = 10
	maxParsedDescription = 200
	fallbackDescription  = "Transaction"
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[-/]\d{2}[-/]\d{2}\b`),
		regexp.MustCompile(`\b\d{2}[-/]\d{2}[-/]\d{4}\b`),
		regexp.MustCompile(`\b\d{2}[-/]\d{2}[-/]\d{2}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+\d{2,4}\b`),
	}

	// Each pattern captures the numeric part in group 1.
	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`₹\s*([\d,]+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\bRs\.?\s*([\d,]+(?:\.\d+)?)`),
		regexp.MustCompile(`\b(\d[\d,]*\.\d{2})\b`),
		regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(?:dr|cr|debit|credit)\b`),
	}

	balancePattern  = regexp.MustCompile(`(?i)balance[:\s]*₹?\s*([\d,]+(?:\.\d+)?)`)
	debitHint       = regexp.MustCompile(`(?i)\b(?:dr|debit)\b`)
	noiseWords      = regexp.MustCompile(`(?i)\b(?:dr|cr|debit|credit)\b`)
	spaces          = regexp.MustCompile(`\s+`)
	headerKeywords  = []string{"date", "description", "debit", "credit", "balance", "transaction", "particulars"}
	debitKeywords   = []string{"debit", "withdrawal", "payment", "paid", "purchase", "transfer to", "atm"}
	creditKeywords  = []string{"credit", "deposit", "received", "transfer from", "salary", "refund"}
	dayFirstLayouts = []string{"02-01-2006", "02/01/2006", "02-01-06", "02/01/06", "2006-01-02", "2006/01/02"}
	monthLayouts    = []string{"2 Jan 2006", "2 January 2006", "2 Jan 06", "2 January 06"}
)

// LineParser recognises statement lines of the form
// "<date> <description> <amount> [Dr|Cr] [balance]".
type LineParser struct{}

func NewLineParser() *LineParser {
	return &LineParser{}
}

// ParseLines parses every transaction-looking line. Headers, short lines and
// lines without a date or a positive amount are skipped.
func (p *LineParser) ParseLines(userID string, lines []string) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < minLineLength || isHeader(line) {
			continue
		}
		if tx, ok := p.ParseLine(userID, line); ok {
			out = append(out, tx)
		}
	}
	return out
}

// ParseLine extracts a single transaction. The category is left empty.
func (p *LineParser) ParseLine(userID, line string) (core.Transaction, bool) {
	date, ok := extractDate(line)
	if !ok {
		return core.Transaction{}, false
	}
	amount, ok := extractAmount(line)
	if !ok {
		return core.Transaction{}, false
	}

	hint := core.Credit
	if debitHint.MatchString(line) {
		hint = core.Debit
	}
	raw := line
	tx := core.Transaction{
		UserID:      userID,
		Date:        date,
		Description: extractDescription(line),
		Amount:      amount,
		Type:        transactionType(line, hint),
		Balance:     extractBalance(line),
		RawLine:     &raw,
	}
	tx.ID = core.NewTransactionID(userID, tx.Date, tx.Amount, tx.Description)
	return tx, true
}

func isHeader(line string) bool {
	l := strings.ToLower(line)
	n := 0
	for _, k := range headerKeywords {
		if strings.Contains(l, k) {
			n++
		}
	}
	return n >= 2
}

func extractDate(line string) (core.Date, bool) {
	for _, re := range datePatterns {
		m := re.FindString(line)
		if m == "" {
			continue
		}
		if d, ok := parseStatementDate(m); ok {
			return d, true
		}
	}
	return core.Date{}, false
}

// parseStatementDate reads day-first numeric dates and "2 Jan 2006" forms.
func parseStatementDate(s string) (core.Date, bool) {
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), true
		}
	}
	// Title-case the month so "01 OCT 2024" parses.
	fields := strings.Fields(s)
	if len(fields) == 3 {
		fields[1] = strings.ToUpper(fields[1][:1]) + strings.ToLower(fields[1][1:])
		s = strings.Join(fields, " ")
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), true
		}
	}
	return core.Date{}, false
}

func extractAmount(line string) (decimal.Decimal, bool) {
	// Dates would otherwise match the bare-number patterns.
	scrubbed := line
	for _, re := range datePatterns {
		scrubbed = re.ReplaceAllString(scrubbed, " ")
	}
	if loc := balancePattern.FindStringIndex(scrubbed); loc != nil {
		scrubbed = scrubbed[:loc[0]] + scrubbed[loc[1]:]
	}
	for _, re := range amountPatterns {
		for _, m := range re.FindAllStringSubmatch(scrubbed, -1) {
			d, err := core.ParseAmount(m[1])
			if err == nil && d.IsPositive() {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func extractBalance(line string) *decimal.Decimal {
	m := balancePattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	d, err := core.ParseAmount(m[1])
	if err != nil {
		return nil
	}
	return &d
}

func extractDescription(line string) string {
	desc := balancePattern.ReplaceAllString(line, " ")
	for _, re := range datePatterns {
		desc = re.ReplaceAllString(desc, " ")
	}
	for _, re := range amountPatterns {
		desc = re.ReplaceAllString(desc, " ")
	}
	desc = noiseWords.ReplaceAllString(desc, " ")
	desc = strings.TrimSpace(spaces.ReplaceAllString(desc, " "))
	if desc == "" {
		return fallbackDescription
	}
	if r := []rune(desc); len(r) > maxParsedDescription {
		desc = string(r[:maxParsedDescription])
	}
	return desc
}

func transactionType(line string, hint core.TransactionType) core.TransactionType {
	l := strings.ToLower(line)
	for _, k := range debitKeywords {
		if strings.Contains(l, k) {
			return core.Debit
		}
	}
	for _, k := range creditKeywords {
		if strings.Contains(l, k) {
			return core.Credit
		}
	}
	return hint
}
