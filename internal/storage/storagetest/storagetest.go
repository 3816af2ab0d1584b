// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

// Tx builds a normalised transaction for fixtures.
func Tx(id, user string, day int, typ core.TransactionType, amount, category string) core.Transaction {
	tx := core.Transaction{
		ID:          id,
		UserID:      user,
		Date:        core.NewDate(2024, 10, day),
		Description: "txn " + id,
		Amount:      decimal.RequireFromString(amount),
		Type:        typ,
		Category:    category,
	}
	tx.Normalize()
	return tx
}

func seed(t *testing.T, s storage.Store, txs ...core.Transaction) {
	t.Helper()
	for _, tx := range txs {
		if err := s.Insert(context.Background(), tx); err != nil {
			t.Fatalf("insert %s: %v", tx.ID, err)
		}
	}
}

func ids(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Run exercises s against the Store contract. newStore must return an empty
// store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("InsertAndExists", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		balance := decimal.RequireFromString("1200.50")
		raw := "01/10/2024 Grocery 100.00 Dr"
		tx := Tx("a", "u1", 1, core.Debit, "100", "Food")
		tx.Balance = &balance
		tx.RawLine = &raw
		seed(t, s, tx)

		ok, err := s.Exists(ctx, "a")
		if err != nil || !ok {
			t.Fatalf("expected a to exist: ok=%v err=%v", ok, err)
		}
		ok, err = s.Exists(ctx, "missing")
		if err != nil || ok {
			t.Fatalf("expected missing to be absent: ok=%v err=%v", ok, err)
		}

		got, err := s.Find(ctx, storage.Predicate{UserID: "u1"}, storage.FindOptions{Sort: core.DefaultSort})
		if err != nil || len(got) != 1 {
			t.Fatalf("find: %v %v", got, err)
		}
		r := got[0]
		if !r.Amount.Equal(tx.Amount) || !r.Date.Equal(tx.Date.Time) || r.Type != core.Debit || r.Category != "Food" {
			t.Fatalf("round trip mismatch: %+v", r)
		}
		if r.Balance == nil || !r.Balance.Equal(balance) || r.RawLine == nil || *r.RawLine != raw {
			t.Fatalf("optional fields lost: %+v", r)
		}
	})

	t.Run("UniqueViolation", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		seed(t, s, Tx("a", "u1", 1, core.Debit, "100", "Food"))

		// Same id under another user still collides: ids are global.
		err := s.Insert(context.Background(), Tx("a", "u2", 2, core.Credit, "5", "Other"))
		if !errors.Is(err, storage.ErrUniqueViolation) {
			t.Fatalf("expected ErrUniqueViolation, got %v", err)
		}
		n, _ := s.Count(context.Background(), storage.Predicate{UserID: "u2"})
		if n != 0 {
			t.Fatalf("collision must not store a record, got %d", n)
		}
	})

	t.Run("RejectsUnstorableAmounts", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()

		huge := Tx("big", "u1", 1, core.Debit, "184467440737095516.17", "Food")
		if err := s.Insert(ctx, huge); !errors.Is(err, core.ErrAmountTooLarge) {
			t.Fatalf("expected ErrAmountTooLarge, got %v", err)
		}
		balance := decimal.RequireFromString("-184467440737095516.17")
		withBalance := Tx("bal", "u1", 1, core.Debit, "1", "Food")
		withBalance.Balance = &balance
		if err := s.Insert(ctx, withBalance); !errors.Is(err, core.ErrAmountTooLarge) {
			t.Fatalf("expected ErrAmountTooLarge for balance, got %v", err)
		}
		if n, _ := s.Count(ctx, storage.Predicate{UserID: "u1"}); n != 0 {
			t.Fatalf("rejected records must not be stored, got %d", n)
		}

		seed(t, s, Tx("max", "u1", 2, core.Debit, core.MaxAmount.String(), "Food"))
		types, err := s.AggregateByType(ctx, storage.Predicate{UserID: "u1"})
		if err != nil || len(types) != 1 || !types[0].Total.Equal(core.MaxAmount) {
			t.Fatalf("largest amount must round trip: %+v %v", types, err)
		}
	})

	t.Run("AmountBoundsOutsideRange", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()
		seed(t, s,
			Tx("a", "u1", 1, core.Debit, "100", "Food"),
			Tx("b", "u1", 2, core.Credit, "0.01", "Salary"),
		)

		hugeMin := decimal.RequireFromString("1e17")
		hugeMax := decimal.RequireFromString("1e17")
		tinyMin := decimal.RequireFromString("-1e17")
		tinyMax := decimal.RequireFromString("-1e17")
		cases := []struct {
			name string
			pred storage.Predicate
			want int64
		}{
			{"min above range matches nothing", storage.Predicate{UserID: "u1", MinAmount: &hugeMin}, 0},
			{"max above range is no limit", storage.Predicate{UserID: "u1", MaxAmount: &hugeMax}, 2},
			{"min below range is no limit", storage.Predicate{UserID: "u1", MinAmount: &tinyMin}, 2},
			{"max below range matches nothing", storage.Predicate{UserID: "u1", MaxAmount: &tinyMax}, 0},
		}
		for _, tc := range cases {
			n, err := s.Count(ctx, tc.pred)
			if err != nil || n != tc.want {
				t.Fatalf("%s: expected %d, got %d (err=%v)", tc.name, tc.want, n, err)
			}
			got, err := s.Find(ctx, tc.pred, storage.FindOptions{Sort: core.DefaultSort})
			if err != nil || int64(len(got)) != tc.want {
				t.Fatalf("%s: find returned %d (err=%v)", tc.name, len(got), err)
			}
		}
	})

	t.Run("FindFiltersAndIsolation", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()
		seed(t, s,
			Tx("a", "u1", 1, core.Debit, "100", "Food"),
			Tx("b", "u1", 5, core.Credit, "500", "Salary"),
			Tx("c", "u1", 9, core.Debit, "50", "Food"),
			Tx("d", "u1", 20, core.Debit, "10.50", "Transport"),
			Tx("e", "u2", 5, core.Debit, "75", "Food"),
		)

		start := time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 10, 9, 23, 59, 59, 0, time.UTC)
		minAmt := decimal.RequireFromString("10.50")
		maxAmt := decimal.RequireFromString("100")

		cases := []struct {
			name string
			pred storage.Predicate
			want []string
		}{
			{"user only", storage.Predicate{UserID: "u1"}, []string{"d", "c", "b", "a"}},
			{"other user", storage.Predicate{UserID: "u2"}, []string{"e"}},
			{"unknown user", storage.Predicate{UserID: "nobody"}, []string{}},
			{"date range", storage.Predicate{UserID: "u1", StartDate: &start, EndDate: &end}, []string{"c", "b"}},
			{"category", storage.Predicate{UserID: "u1", Category: "Food"}, []string{"c", "a"}},
			{"type", storage.Predicate{UserID: "u1", Type: core.Credit}, []string{"b"}},
			{"amount bounds inclusive", storage.Predicate{UserID: "u1", MinAmount: &minAmt, MaxAmount: &maxAmt}, []string{"d", "c", "a"}},
		}
		for _, tc := range cases {
			got, err := s.Find(ctx, tc.pred, storage.FindOptions{Sort: core.DefaultSort})
			if err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			for _, tx := range got {
				if tx.UserID != tc.pred.UserID {
					t.Fatalf("%s: leaked record of user %s", tc.name, tx.UserID)
				}
			}
			if !equalIDs(ids(got), tc.want) {
				t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, ids(got))
			}
			n, err := s.Count(ctx, tc.pred)
			if err != nil || n != int64(len(tc.want)) {
				t.Fatalf("%s: count %d err %v", tc.name, n, err)
			}
		}
	})

	t.Run("SortAndPaginate", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()
		seed(t, s,
			Tx("b", "u1", 3, core.Debit, "20", "Food"),
			Tx("a", "u1", 3, core.Debit, "20", "Bills"),
			Tx("c", "u1", 1, core.Credit, "5", "Salary"),
			Tx("d", "u1", 7, core.Debit, "300", "Rent"),
		)
		pred := storage.Predicate{UserID: "u1"}

		cases := []struct {
			sort core.Sort
			want []string
		}{
			{core.Sort{Field: core.SortByDate, Desc: true}, []string{"d", "a", "b", "c"}},
			{core.Sort{Field: core.SortByDate}, []string{"c", "a", "b", "d"}},
			{core.Sort{Field: core.SortByAmount, Desc: true}, []string{"d", "a", "b", "c"}},
			{core.Sort{Field: core.SortByCategory}, []string{"a", "b", "d", "c"}},
			{core.Sort{Field: core.SortByType}, []string{"c", "a", "b", "d"}},
		}
		for _, tc := range cases {
			got, err := s.Find(ctx, pred, storage.FindOptions{Sort: tc.sort})
			if err != nil {
				t.Fatalf("%s: %v", tc.sort, err)
			}
			if !equalIDs(ids(got), tc.want) {
				t.Fatalf("%s: expected %v, got %v", tc.sort, tc.want, ids(got))
			}
		}

		page, err := s.Find(ctx, pred, storage.FindOptions{Sort: core.DefaultSort, Limit: 2, Skip: 1})
		if err != nil || !equalIDs(ids(page), []string{"a", "b"}) {
			t.Fatalf("page: %v %v", ids(page), err)
		}
		tail, err := s.Find(ctx, pred, storage.FindOptions{Sort: core.DefaultSort, Skip: 3})
		if err != nil || !equalIDs(ids(tail), []string{"c"}) {
			t.Fatalf("skip without limit: %v %v", ids(tail), err)
		}
		empty, err := s.Find(ctx, pred, storage.FindOptions{Sort: core.DefaultSort, Limit: 10, Skip: 10})
		if err != nil || len(empty) != 0 {
			t.Fatalf("skip past end: %v %v", ids(empty), err)
		}
	})

	t.Run("Aggregations", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()
		seed(t, s,
			Tx("a", "u1", 1, core.Debit, "100", "Food"),
			Tx("b", "u1", 2, core.Credit, "500", "Salary"),
			Tx("c", "u1", 3, core.Debit, "50", "Food"),
			Tx("d", "u1", 4, core.Credit, "0.10", "Food"),
			Tx("e", "u1", 5, core.Debit, "0.20", "Transport"),
			Tx("f", "u2", 5, core.Debit, "999", "Food"),
		)
		pred := storage.Predicate{UserID: "u1"}

		cats, err := s.AggregateByTypeThenCategory(ctx, pred)
		if err != nil {
			t.Fatalf("aggregate by category: %v", err)
		}
		want := []core.CategoryTotal{
			{Category: "Food", Debit: decimal.RequireFromString("150"), Credit: decimal.RequireFromString("0.10"), Count: 3},
			{Category: "Transport", Debit: decimal.RequireFromString("0.20"), Credit: decimal.Zero, Count: 1},
			{Category: "Salary", Debit: decimal.Zero, Credit: decimal.RequireFromString("500"), Count: 1},
		}
		if len(cats) != len(want) {
			t.Fatalf("expected %d categories, got %+v", len(want), cats)
		}
		for i := range want {
			g, w := cats[i], want[i]
			if g.Category != w.Category || !g.Debit.Equal(w.Debit) || !g.Credit.Equal(w.Credit) || g.Count != w.Count {
				t.Fatalf("category %d: expected %+v, got %+v", i, w, g)
			}
		}

		types, err := s.AggregateByType(ctx, pred)
		if err != nil {
			t.Fatalf("aggregate by type: %v", err)
		}
		if len(types) != 2 {
			t.Fatalf("expected two type totals, got %+v", types)
		}
		for _, tt := range types {
			switch tt.Type {
			case core.Credit:
				if !tt.Total.Equal(decimal.RequireFromString("500.10")) || tt.Count != 2 {
					t.Fatalf("bad credit total: %+v", tt)
				}
			case core.Debit:
				if !tt.Total.Equal(decimal.RequireFromString("150.20")) || tt.Count != 3 {
					t.Fatalf("bad debit total: %+v", tt)
				}
			default:
				t.Fatalf("unexpected type %q", tt.Type)
			}
		}

		none, err := s.AggregateByTypeThenCategory(ctx, storage.Predicate{UserID: "nobody"})
		if err != nil || len(none) != 0 {
			t.Fatalf("expected empty aggregation, got %+v %v", none, err)
		}
	})

	t.Run("DeleteAndDistinct", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ctx := context.Background()
		seed(t, s,
			Tx("a", "u1", 1, core.Debit, "100", "Food"),
			Tx("b", "u1", 2, core.Credit, "500", "Salary"),
			Tx("c", "u2", 3, core.Debit, "50", "Bills"),
		)

		cats, err := s.Distinct(ctx, storage.FieldCategory, storage.Predicate{UserID: "u1"})
		if err != nil || !equalIDs(cats, []string{"Food", "Salary"}) {
			t.Fatalf("distinct: %v %v", cats, err)
		}
		if _, err := s.Distinct(ctx, storage.Field("description"), storage.Predicate{UserID: "u1"}); !errors.Is(err, storage.ErrUnknownField) {
			t.Fatalf("expected ErrUnknownField, got %v", err)
		}

		n, err := s.DeleteMany(ctx, storage.Predicate{UserID: "u1", Category: "Salary"})
		if err != nil || n != 1 {
			t.Fatalf("delete salary: n=%d err=%v", n, err)
		}
		cats, _ = s.Distinct(ctx, storage.FieldCategory, storage.Predicate{UserID: "u1"})
		if !equalIDs(cats, []string{"Food"}) {
			t.Fatalf("stale category after delete: %v", cats)
		}

		n, err = s.DeleteMany(ctx, storage.Predicate{UserID: "u1"})
		if err != nil || n != 1 {
			t.Fatalf("delete user: n=%d err=%v", n, err)
		}
		n, err = s.DeleteMany(ctx, storage.Predicate{UserID: "u1"})
		if err != nil || n != 0 {
			t.Fatalf("second delete should remove nothing: n=%d err=%v", n, err)
		}
		if left, _ := s.Count(ctx, storage.Predicate{UserID: "u2"}); left != 1 {
			t.Fatalf("other user's records must survive, got %d", left)
		}
	})
}
