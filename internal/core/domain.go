package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Credit TransactionType = "Credit"
	Debit  TransactionType = "Debit"

	// DefaultCategory is assigned to records the upstream classifier left empty.
	DefaultCategory = "Other"

	MaxDescriptionLength = 500

	dateLayout = "2006-01-02"
)

type (
	TransactionType string

	// Date is a day-precision, timezone-naive calendar date stored as UTC midnight.
	Date struct {
		time.Time
	}

	// Transaction is the unit of storage. Records are immutable once ingested.
	Transaction struct {
		ID          string           `json:"id"`
		UserID      string           `json:"userId"`
		Date        Date             `json:"date"`
		Description string           `json:"description"`
		Amount      decimal.Decimal  `json:"amount"`
		Type        TransactionType  `json:"type"`
		Category    string           `json:"category"`
		Balance     *decimal.Decimal `json:"balance,omitempty"`
		RawLine     *string          `json:"rawLine,omitempty"`
	}
)

var (
	ErrEmptyID          = errors.New("empty transaction id")
	ErrEmptyUserID      = errors.New("empty user id")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEmptyDescription = errors.New("empty description")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrInvalidType      = errors.New("type must be Credit or Debit")
)

// ParseTransactionType accepts the canonical names case-insensitively plus the
// Dr/Cr abbreviations found on statements.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "cr":
		return Credit, true
	case "debit", "dr":
		return Debit, true
	default:
		return TransactionType(s), false
	}
}

func (t TransactionType) Valid() bool {
	return t == Credit || t == Debit
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping the wall-clock date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string, falling back to RFC 3339.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Normalize trims free text, applies the category fallback, truncates the date
// to the day and rounds money to two decimal places. Records arriving without
// an id get the content-derived one.
func (t *Transaction) Normalize() {
	t.ID = strings.TrimSpace(t.ID)
	t.UserID = strings.TrimSpace(t.UserID)
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	if parsed, ok := ParseTransactionType(string(t.Type)); ok {
		t.Type = parsed
	}
	if !t.Date.IsZero() {
		t.Date = DateOf(t.Date.Time)
	}
	t.Amount = RoundAmount(t.Amount)
	if t.Balance != nil {
		b := RoundAmount(*t.Balance)
		t.Balance = &b
	}
	if t.UserID != "" && !t.Date.IsZero() && t.Description != "" {
		t.AssignID()
	}
}

func (t Transaction) Validate() error {
	if t.ID == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > MaxDescriptionLength {
		return errors.New("description too long (max 500 characters)")
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if RoundAmount(t.Amount).GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	if t.Balance != nil && RoundAmount(t.Balance.Abs()).GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Signed returns the amount with the direction applied: credits positive, debits negative.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}
