package storage

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

// ErrUniqueViolation is returned by Insert when a record with the same id is
// already stored.
var ErrUniqueViolation = errors.New("unique violation")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

type (
	// Field names a column Distinct can enumerate.
	Field string

	// Predicate is the closed set of constraints a store query supports.
	// UserID is mandatory; every other constraint is optional.
	Predicate struct {
		UserID    string
		StartDate *time.Time
		EndDate   *time.Time
		Category  string
		Type      core.TransactionType
		MinAmount *decimal.Decimal
		MaxAmount *decimal.Decimal
	}

	FindOptions struct {
		Sort  core.Sort
		Limit int
		Skip  int
	}

	// TypeTotal is a single-stage aggregate keyed by transaction type.
	TypeTotal struct {
		Type  core.TransactionType
		Total decimal.Decimal
		Count int64
	}

	// Store is the persistence contract the services depend on.
	Store interface {
		Exists(ctx context.Context, id string) (bool, error)
		Insert(ctx context.Context, tx core.Transaction) error
		Find(ctx context.Context, pred Predicate, opts FindOptions) ([]core.Transaction, error)
		Count(ctx context.Context, pred Predicate) (int64, error)
		AggregateByTypeThenCategory(ctx context.Context, pred Predicate) ([]core.CategoryTotal, error)
		AggregateByType(ctx context.Context, pred Predicate) ([]TypeTotal, error)
		DeleteMany(ctx context.Context, pred Predicate) (int64, error)
		Distinct(ctx context.Context, field Field, pred Predicate) ([]string, error)
		Ping(ctx context.Context) error
		Close() error
	}
)

const (
	FieldCategory Field = "category"
	FieldType     Field = "type"
)

var ErrUnknownField = errors.New("unknown field")

func (f Field) Valid() bool {
	return f == FieldCategory || f == FieldType
}

// PredicateFor translates a query filter into a store predicate. Pagination
// and ordering live in FindOptions and never change which records match.
func PredicateFor(userID string, f core.Filter) Predicate {
	return Predicate{
		UserID:    userID,
		StartDate: f.StartDate,
		EndDate:   f.EndDate,
		Category:  f.Category,
		Type:      f.Type,
		MinAmount: f.MinAmount,
		MaxAmount: f.MaxAmount,
	}
}

// OptionsFor extracts ordering and pagination from a defaulted filter.
func OptionsFor(f core.Filter) FindOptions {
	f = f.WithDefaults()
	return FindOptions{Sort: *f.Sort, Limit: f.Limit, Skip: f.Skip}
}

// Match reports whether tx satisfies every constraint of p.
func (p Predicate) Match(tx core.Transaction) bool {
	if tx.UserID != p.UserID {
		return false
	}
	if p.StartDate != nil && tx.Date.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && tx.Date.After(*p.EndDate) {
		return false
	}
	if p.Category != "" && tx.Category != p.Category {
		return false
	}
	if p.Type != "" && tx.Type != p.Type {
		return false
	}
	if p.MinAmount != nil && tx.Amount.LessThan(*p.MinAmount) {
		return false
	}
	if p.MaxAmount != nil && tx.Amount.GreaterThan(*p.MaxAmount) {
		return false
	}
	return true
}

// Less orders a before b under s, falling back to id ascending.
func Less(s core.Sort, a, b core.Transaction) bool {
	c := compare(s.Field, a, b)
	if s.Desc {
		c = -c
	}
	if c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

func compare(field core.SortField, a, b core.Transaction) int {
	switch field {
	case core.SortByAmount:
		return a.Amount.Cmp(b.Amount)
	case core.SortByDescription:
		return cmpString(a.Description, b.Description)
	case core.SortByCategory:
		return cmpString(a.Category, b.Category)
	case core.SortByType:
		return cmpString(string(a.Type), string(b.Type))
	default:
		return a.Date.Compare(b.Date.Time)
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// WithTimeout bounds a single store call. A zero timeout leaves ctx as is.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
