package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// EncodeTime converts a predicate bound to the txn_date column type.
	EncodeTime func(t time.Time) any
	// Collate is appended to text sort keys so ordering is bytewise.
	Collate string
}

var SQLiteDialect = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	EncodeTime:  func(t time.Time) any { return t.UTC().UnixMilli() },
}

var PostgresDialect = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	EncodeTime:  func(t time.Time) any { return t.UTC() },
	Collate:     ` COLLATE "C"`,
}

const matchNothing = "1 = 0"

// Columns is the select list shared by every Find implementation.
const Columns = "id, user_id, txn_date, description, amount_cents, type, category, balance_cents, raw_line"

// Builder renders the statements for a dialect.
type Builder struct {
	d Dialect
}

func NewBuilder(d Dialect) Builder {
	return Builder{d: d}
}

func (b Builder) Dialect() Dialect { return b.d }

type args struct {
	d    Dialect
	vals []any
}

func (a *args) add(v any) string {
	a.vals = append(a.vals, v)
	return a.d.Placeholder(len(a.vals))
}

// Where renders the predicate as a conjunction. Amount bounds are converted
// to whole cents, rounding towards the inside of the range. A bound beyond
// the int64 cents range either matches nothing or drops out.
func (b Builder) where(p Predicate, a *args) string {
	clauses := []string{"user_id = " + a.add(p.UserID)}
	if p.StartDate != nil {
		clauses = append(clauses, "txn_date >= "+a.add(b.d.EncodeTime(*p.StartDate)))
	}
	if p.EndDate != nil {
		clauses = append(clauses, "txn_date <= "+a.add(b.d.EncodeTime(*p.EndDate)))
	}
	if p.Category != "" {
		clauses = append(clauses, "category = "+a.add(p.Category))
	}
	if p.Type != "" {
		clauses = append(clauses, "type = "+a.add(string(p.Type)))
	}
	if p.MinAmount != nil {
		c, ok, above := core.CentsBound(*p.MinAmount, true)
		switch {
		case ok:
			clauses = append(clauses, "amount_cents >= "+a.add(c))
		case above:
			clauses = append(clauses, matchNothing)
		}
	}
	if p.MaxAmount != nil {
		c, ok, above := core.CentsBound(*p.MaxAmount, false)
		switch {
		case ok:
			clauses = append(clauses, "amount_cents <= "+a.add(c))
		case !above:
			clauses = append(clauses, matchNothing)
		}
	}
	return strings.Join(clauses, " AND ")
}

func (b Builder) orderBy(s core.Sort) string {
	var col string
	switch s.Field {
	case core.SortByAmount:
		col = "amount_cents"
	case core.SortByDescription:
		col = "description" + b.d.Collate
	case core.SortByCategory:
		col = "category" + b.d.Collate
	case core.SortByType:
		col = "type" + b.d.Collate
	default:
		col = "txn_date"
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id%s ASC", col, dir, b.d.Collate)
}

func (b Builder) Insert(tx core.Transaction, created time.Time) (string, []any, error) {
	a := &args{d: b.d}
	amount, err := core.Cents(tx.Amount)
	if err != nil {
		return "", nil, fmt.Errorf("amount %s: %w", tx.Amount, err)
	}
	var balance any
	if tx.Balance != nil {
		c, err := core.Cents(*tx.Balance)
		if err != nil {
			return "", nil, fmt.Errorf("balance %s: %w", tx.Balance, err)
		}
		balance = c
	}
	var raw any
	if tx.RawLine != nil {
		raw = *tx.RawLine
	}
	q := fmt.Sprintf(`INSERT INTO transactions (id, user_id, txn_date, description, amount_cents, type, category, balance_cents, raw_line, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
ON CONFLICT (id) DO NOTHING`,
		a.add(tx.ID),
		a.add(tx.UserID),
		a.add(b.d.EncodeTime(tx.Date.Time)),
		a.add(tx.Description),
		a.add(amount),
		a.add(string(tx.Type)),
		a.add(tx.Category),
		a.add(balance),
		a.add(raw),
		a.add(b.d.EncodeTime(created)),
	)
	return q, a.vals, nil
}

func (b Builder) Exists() string {
	return "SELECT 1 FROM transactions WHERE id = " + b.d.Placeholder(1)
}

func (b Builder) Find(p Predicate, o FindOptions) (string, []any) {
	a := &args{d: b.d}
	q := fmt.Sprintf("SELECT %s FROM transactions WHERE %s ORDER BY %s", Columns, b.where(p, a), b.orderBy(o.Sort))
	if o.Limit > 0 {
		q += " LIMIT " + a.add(o.Limit)
	}
	if o.Skip > 0 {
		if o.Limit <= 0 && b.d.Name == SQLiteDialect.Name {
			// sqlite only accepts OFFSET after LIMIT
			q += " LIMIT -1"
		}
		q += " OFFSET " + a.add(o.Skip)
	}
	return q, a.vals
}

func (b Builder) Count(p Predicate) (string, []any) {
	a := &args{d: b.d}
	return "SELECT COUNT(*) FROM transactions WHERE " + b.where(p, a), a.vals
}

// AggregateByTypeThenCategory groups by (category, type) first and then
// folds the type-keyed buckets into debit/credit columns per category.
func (b Builder) AggregateByTypeThenCategory(p Predicate) (string, []any) {
	a := &args{d: b.d}
	q := fmt.Sprintf(`WITH buckets AS (
	SELECT category, type, SUM(amount_cents) AS total, COUNT(*) AS n
	FROM transactions
	WHERE %s
	GROUP BY category, type
)
SELECT category,
	CAST(COALESCE(SUM(CASE WHEN type = '%s' THEN total ELSE 0 END), 0) AS BIGINT) AS debit,
	CAST(COALESCE(SUM(CASE WHEN type = '%s' THEN total ELSE 0 END), 0) AS BIGINT) AS credit,
	CAST(SUM(n) AS BIGINT) AS n
FROM buckets
GROUP BY category
ORDER BY debit DESC, category%s ASC`, b.where(p, a), core.Debit, core.Credit, b.d.Collate)
	return q, a.vals
}

func (b Builder) AggregateByType(p Predicate) (string, []any) {
	a := &args{d: b.d}
	q := fmt.Sprintf(`SELECT type, CAST(SUM(amount_cents) AS BIGINT) AS total, COUNT(*) AS n
FROM transactions
WHERE %s
GROUP BY type
ORDER BY type`, b.where(p, a))
	return q, a.vals
}

func (b Builder) DeleteMany(p Predicate) (string, []any) {
	a := &args{d: b.d}
	return "DELETE FROM transactions WHERE " + b.where(p, a), a.vals
}

func (b Builder) Distinct(f Field, p Predicate) (string, []any, error) {
	if !f.Valid() {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	a := &args{d: b.d}
	q := fmt.Sprintf("SELECT DISTINCT %s FROM transactions WHERE %s ORDER BY %s%s", f, b.where(p, a), f, b.d.Collate)
	return q, a.vals, nil
}
