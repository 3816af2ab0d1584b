package services

import (
	"context"
	"sort"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"golang.org/x/sync/errgroup"
)

// GetByUser returns one page of the user's records matching f plus the total
// match count, both computed against the same predicate.
func (s *TransactionService) GetByUser(ctx context.Context, userID string, f core.Filter) (core.Page, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return core.Page{}, err
	}
	if err := f.Validate(); err != nil {
		return core.Page{}, err
	}
	f = f.WithDefaults()
	pred := storage.PredicateFor(userID, f)
	opts := storage.OptionsFor(f)

	var (
		items []core.Transaction
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if items, err = s.store.Find(gctx, pred, opts); err != nil {
			return core.NewStorageError("find", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if total, err = s.store.Count(gctx, pred); err != nil {
			return core.NewStorageError("count", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Page{}, err
	}
	return core.NewPage(items, total, opts.Limit, opts.Skip), nil
}

// GetByMonth scopes f to the given calendar month, replacing any date bounds.
func (s *TransactionService) GetByMonth(ctx context.Context, userID string, year, month int, f core.Filter) (core.Page, error) {
	start, end, err := core.MonthRange(year, month)
	if err != nil {
		return core.Page{}, err
	}
	f.StartDate = &start
	f.EndDate = &end
	return s.GetByUser(ctx, userID, f)
}

// Collect pages through every record matching f. Pagination fields of f
// are ignored.
func (s *TransactionService) Collect(ctx context.Context, userID string, f core.Filter) ([]core.Transaction, error) {
	f.Limit = core.MaxLimit
	f.Skip = 0
	var out []core.Transaction
	for {
		page, err := s.GetByUser(ctx, userID, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if !page.HasMore || len(page.Items) == 0 {
			return out, nil
		}
		f.Skip += len(page.Items)
	}
}

// DeleteAllForUser removes every record of the user. Deleting nothing is not
// an error.
func (s *TransactionService) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteMany(ctx, storage.Predicate{UserID: userID})
	if err != nil {
		return 0, core.NewStorageError("delete", err)
	}
	return n, nil
}

// DistinctCategories lists the categories the user currently has records in.
func (s *TransactionService) DistinctCategories(ctx context.Context, userID string) ([]string, error) {
	userID, err := requireUser(userID)
	if err != nil {
		return nil, err
	}
	cats, err := s.store.Distinct(ctx, storage.FieldCategory, storage.Predicate{UserID: userID})
	if err != nil {
		return nil, core.NewStorageError("distinct", err)
	}
	sort.Strings(cats)
	return cats, nil
}
