package services

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func summaryPredicate(userID string, start, end *time.Time) (storage.Predicate, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return storage.Predicate{}, err
	}
	f := core.Filter{StartDate: start, EndDate: end}
	if err := f.Validate(); err != nil {
		return storage.Predicate{}, err
	}
	return storage.PredicateFor(userID, f), nil
}

// Summary computes the overview and the category breakdown concurrently over
// the same range.
func (s *TransactionService) Summary(ctx context.Context, userID string, start, end *time.Time) (core.Summary, error) {
	if _, err := summaryPredicate(userID, start, end); err != nil {
		return core.Summary{}, err
	}

	var sum core.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sum.Overview, err = s.Overview(gctx, userID, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		sum.Categories, err = s.CategoryBreakdown(gctx, userID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}
	return sum, nil
}

// Overview returns credit/debit totals. Types with no records yield zero.
func (s *TransactionService) Overview(ctx context.Context, userID string, start, end *time.Time) (core.Overview, error) {
	pred, err := summaryPredicate(userID, start, end)
	if err != nil {
		return core.Overview{}, err
	}
	return s.overview(ctx, pred)
}

// CategoryBreakdown returns per-category debit/credit sums, largest debit
// first.
func (s *TransactionService) CategoryBreakdown(ctx context.Context, userID string, start, end *time.Time) ([]core.CategoryTotal, error) {
	pred, err := summaryPredicate(userID, start, end)
	if err != nil {
		return nil, err
	}
	return s.categories(ctx, pred)
}

func (s *TransactionService) overview(ctx context.Context, pred storage.Predicate) (core.Overview, error) {
	totals, err := s.store.AggregateByType(ctx, pred)
	if err != nil {
		return core.Overview{}, core.NewStorageError("aggregate by type", err)
	}
	ov := core.Overview{TotalCredit: decimal.Zero, TotalDebit: decimal.Zero}
	for _, t := range totals {
		switch t.Type {
		case core.Credit:
			ov.TotalCredit = ov.TotalCredit.Add(t.Total)
			ov.CreditCount += t.Count
		case core.Debit:
			ov.TotalDebit = ov.TotalDebit.Add(t.Total)
			ov.DebitCount += t.Count
		}
	}
	ov.NetAmount = ov.TotalCredit.Sub(ov.TotalDebit)
	return ov, nil
}

func (s *TransactionService) categories(ctx context.Context, pred storage.Predicate) ([]core.CategoryTotal, error) {
	cats, err := s.store.AggregateByTypeThenCategory(ctx, pred)
	if err != nil {
		return nil, core.NewStorageError("aggregate by category", err)
	}
	if cats == nil {
		cats = []core.CategoryTotal{}
	}
	return cats, nil
}
