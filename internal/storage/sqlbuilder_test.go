package storage

import (
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func TestBuilderWherePlaceholders(t *testing.T) {
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	minAmt := decimal.RequireFromString("10.005")
	maxAmt := decimal.RequireFromString("99.999")
	p := Predicate{UserID: "u1", StartDate: &start, Category: "Food", MinAmount: &minAmt, MaxAmount: &maxAmt}

	q, args := NewBuilder(PostgresDialect).Count(p)
	want := "SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND txn_date >= $2 AND category = $3 AND amount_cents >= $4 AND amount_cents <= $5"
	if q != want {
		t.Fatalf("unexpected query:\n%s\nwant:\n%s", q, want)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %v", args)
	}
	// Bounds round towards the inside of the range.
	if args[3] != int64(1001) || args[4] != int64(9999) {
		t.Fatalf("unexpected cent bounds: %v %v", args[3], args[4])
	}

	q, args = NewBuilder(SQLiteDialect).Count(p)
	if strings.Contains(q, "$") || strings.Count(q, "?") != 5 {
		t.Fatalf("sqlite placeholders expected: %s", q)
	}
	if args[1] != start.UnixMilli() {
		t.Fatalf("sqlite dates are unix millis, got %v", args[1])
	}
}

func TestBuilderFindOrdering(t *testing.T) {
	b := NewBuilder(SQLiteDialect)
	q, args := b.Find(Predicate{UserID: "u1"}, FindOptions{Sort: core.Sort{Field: core.SortByAmount, Desc: true}, Limit: 10, Skip: 20})
	if !strings.HasSuffix(q, "ORDER BY amount_cents DESC, id ASC LIMIT ? OFFSET ?") {
		t.Fatalf("unexpected find query: %s", q)
	}
	if len(args) != 3 || args[1] != 10 || args[2] != 20 {
		t.Fatalf("unexpected args: %v", args)
	}

	q, _ = b.Find(Predicate{UserID: "u1"}, FindOptions{Sort: core.DefaultSort, Skip: 5})
	if !strings.Contains(q, "LIMIT -1 OFFSET ?") {
		t.Fatalf("sqlite offset needs a limit: %s", q)
	}

	q, _ = NewBuilder(PostgresDialect).Find(Predicate{UserID: "u1"}, FindOptions{Sort: core.Sort{Field: core.SortByCategory}})
	if !strings.Contains(q, `ORDER BY category COLLATE "C" ASC, id COLLATE "C" ASC`) {
		t.Fatalf("postgres text sorts must be bytewise: %s", q)
	}
}

func TestBuilderAggregateIsTwoStage(t *testing.T) {
	q, _ := NewBuilder(SQLiteDialect).AggregateByTypeThenCategory(Predicate{UserID: "u1"})
	for _, frag := range []string{"WITH buckets AS", "GROUP BY category, type", "FROM buckets", "ORDER BY debit DESC"} {
		if !strings.Contains(q, frag) {
			t.Fatalf("aggregate query missing %q:\n%s", frag, q)
		}
	}
}

func TestBuilderDistinctRejectsUnknownField(t *testing.T) {
	if _, _, err := NewBuilder(SQLiteDialect).Distinct(Field("raw_line; DROP TABLE x"), Predicate{UserID: "u1"}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestPredicateMatch(t *testing.T) {
	tx := core.Transaction{ID: "a", UserID: "u1", Date: core.NewDate(2024, 10, 31), Amount: decimal.NewFromInt(50), Type: core.Debit, Category: "Food"}
	end := time.Date(2024, 10, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	start := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		p    Predicate
		ok   bool
	}{
		{"same user", Predicate{UserID: "u1"}, true},
		{"other user", Predicate{UserID: "u2"}, false},
		{"end of month inclusive", Predicate{UserID: "u1", EndDate: &end}, true},
		{"before start", Predicate{UserID: "u1", StartDate: &start}, false},
		{"type mismatch", Predicate{UserID: "u1", Type: core.Credit}, false},
		{"category mismatch", Predicate{UserID: "u1", Category: "Rent"}, false},
	}
	for _, tc := range cases {
		if got := tc.p.Match(tx); got != tc.ok {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.ok, got)
		}
	}
}
