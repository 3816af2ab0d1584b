package core

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type SortField string

const (
	SortByDate        SortField = "date"
	SortByAmount      SortField = "amount"
	SortByDescription SortField = "description"
	SortByCategory    SortField = "category"
	SortByType        SortField = "type"
)

// Sort orders query results. Ties are always broken by id ascending.
type Sort struct {
	Field SortField
	Desc  bool
}

var DefaultSort = Sort{Field: SortByDate, Desc: true}

// ParseSort reads "field" or "-field".
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	desc := strings.HasPrefix(s, "-")
	field := SortField(strings.TrimPrefix(s, "-"))
	switch field {
	case SortByDate, SortByAmount, SortByDescription, SortByCategory, SortByType:
		return Sort{Field: field, Desc: desc}, nil
	}
	return Sort{}, NewValidationError("sort", "unknown sort field %q", s)
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + string(s.Field)
	}
	return string(s.Field)
}

// Filter is the closed set of options a transaction query accepts.
// Nil pointers and empty strings mean "no constraint".
type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Type      TransactionType
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Sort      *Sort
	Limit     int
	Skip      int
}

var filterKeys = map[string]bool{
	"startDate": true,
	"endDate":   true,
	"category":  true,
	"type":      true,
	"minAmount": true,
	"maxAmount": true,
	"sort":      true,
	"limit":     true,
	"skip":      true,
}

// ParseFilter builds a Filter from query parameters. Keys it does not
// recognise are returned sorted so the caller can report them; they never
// affect the query. Non-numeric minAmount/maxAmount values are treated as
// absent.
func ParseFilter(q url.Values) (Filter, []string, error) {
	var (
		f       Filter
		unknown []string
	)
	for k := range q {
		if !filterKeys[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)

	if v := q.Get("startDate"); v != "" {
		t, err := ParseInstant(v)
		if err != nil {
			return Filter{}, unknown, NewValidationError("startDate", "invalid date %q", v)
		}
		f.StartDate = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := ParseInstant(v)
		if err != nil {
			return Filter{}, unknown, NewValidationError("endDate", "invalid date %q", v)
		}
		f.EndDate = &t
	}
	f.Category = strings.TrimSpace(q.Get("category"))
	if v := q.Get("type"); v != "" {
		typ, ok := ParseTransactionType(v)
		if !ok {
			return Filter{}, unknown, NewValidationError("type", "must be Credit or Debit, got %q", v)
		}
		f.Type = typ
	}
	if v := q.Get("minAmount"); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			f.MinAmount = &d
		}
	}
	if v := q.Get("maxAmount"); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			f.MaxAmount = &d
		}
	}
	if v := q.Get("sort"); v != "" {
		s, err := ParseSort(v)
		if err != nil {
			return Filter{}, unknown, err
		}
		f.Sort = &s
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Filter{}, unknown, NewValidationError("limit", "must be a non-negative integer, got %q", v)
		}
		f.Limit = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Filter{}, unknown, NewValidationError("skip", "must be a non-negative integer, got %q", v)
		}
		f.Skip = n
	}
	return f, unknown, nil
}

// WithDefaults fills in pagination and ordering. It never touches the
// matching criteria.
func (f Filter) WithDefaults() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Sort == nil {
		s := DefaultSort
		f.Sort = &s
	}
	return f
}

func (f Filter) Validate() error {
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return NewValidationError("endDate", "must not be before startDate")
	}
	if f.Type != "" && !f.Type.Valid() {
		return NewValidationError("type", "must be Credit or Debit")
	}
	return nil
}

var instantLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// ParseInstant accepts a date, an RFC 3339 timestamp or a zone-less
// timestamp; zone-less values are read as UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range instantLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// MonthRange returns the first instant and the last millisecond of a month.
func MonthRange(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, NewValidationError("month", "must be between 1 and 12, got %d", month)
	}
	if year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, NewValidationError("year", "out of range: %d", year)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end, nil
}
