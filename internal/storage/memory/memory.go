package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/shopspring/decimal"
)

const seedFile = "seed_transactions.json"

// Store keeps transactions in a map keyed by id. Insertion order is
// preserved for stable iteration.
type Store struct {
	mu     sync.Mutex
	byID   map[string]core.Transaction
	order  []string
	closed bool
}

func New() *Store {
	return &Store{byID: map[string]core.Transaction{}}
}

// NewFromFiles seeds the store from base/seed_transactions.json when present.
// Invalid or duplicate entries are skipped and logged.
func NewFromFiles(base string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := New()
	path := filepath.Join(base, seedFile)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s
	}
	if err != nil {
		logger.Warn("Failed to read seed file", "path", path, "error", err)
		return s
	}
	var seed []core.Transaction
	if err := json.Unmarshal(b, &seed); err != nil {
		logger.Warn("Ignoring malformed seed file", "path", path, "error", err)
		return s
	}

	loaded := 0
	for i, tx := range seed {
		tx.Normalize()
		if err := tx.Validate(); err != nil {
			logger.Warn("Skipping invalid seed record", "index", i, "error", err)
			continue
		}
		if err := s.Insert(context.Background(), tx); err != nil {
			logger.Warn("Skipping seed record", "index", i, "id", tx.ID, "error", err)
			continue
		}
		loaded++
	}
	logger.Info("Seeded memory store", "path", path, "records", loaded, "skipped", len(seed)-loaded)
	return s
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, storage.ErrClosed
	}
	_, ok := s.byID[id]
	return ok, nil
}

// Insert stores tx unless its id is taken.
func (s *Store) Insert(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.byID[tx.ID]; ok {
		return storage.ErrUniqueViolation
	}
	if _, err := core.Cents(tx.Amount); err != nil {
		return fmt.Errorf("amount %s: %w", tx.Amount, err)
	}
	if tx.Balance != nil {
		if _, err := core.Cents(*tx.Balance); err != nil {
			return fmt.Errorf("balance %s: %w", tx.Balance, err)
		}
	}
	s.byID[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	return nil
}

func (s *Store) Find(_ context.Context, pred storage.Predicate, opts storage.FindOptions) ([]core.Transaction, error) {
	matched, err := s.match(pred)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return storage.Less(opts.Sort, matched[i], matched[j])
	})
	if opts.Skip >= len(matched) {
		return []core.Transaction{}, nil
	}
	matched = matched[opts.Skip:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (s *Store) Count(_ context.Context, pred storage.Predicate) (int64, error) {
	matched, err := s.match(pred)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

type bucketKey struct {
	category string
	typ      core.TransactionType
}

type bucket struct {
	total decimal.Decimal
	n     int64
}

// AggregateByTypeThenCategory mirrors the SQL stores: bucket by
// (category, type), then fold buckets per category.
func (s *Store) AggregateByTypeThenCategory(_ context.Context, pred storage.Predicate) ([]core.CategoryTotal, error) {
	matched, err := s.match(pred)
	if err != nil {
		return nil, err
	}

	buckets := map[bucketKey]bucket{}
	for _, tx := range matched {
		k := bucketKey{category: tx.Category, typ: tx.Type}
		b := buckets[k]
		b.total = b.total.Add(tx.Amount)
		b.n++
		buckets[k] = b
	}

	byCategory := map[string]*core.CategoryTotal{}
	for k, b := range buckets {
		ct, ok := byCategory[k.category]
		if !ok {
			ct = &core.CategoryTotal{Category: k.category, Debit: decimal.Zero, Credit: decimal.Zero}
			byCategory[k.category] = ct
		}
		switch k.typ {
		case core.Debit:
			ct.Debit = ct.Debit.Add(b.total)
		case core.Credit:
			ct.Credit = ct.Credit.Add(b.total)
		}
		ct.Count += b.n
	}

	out := make([]core.CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Debit.Cmp(out[j].Debit); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) AggregateByType(_ context.Context, pred storage.Predicate) ([]storage.TypeTotal, error) {
	matched, err := s.match(pred)
	if err != nil {
		return nil, err
	}
	totals := map[core.TransactionType]*storage.TypeTotal{}
	for _, tx := range matched {
		tt, ok := totals[tx.Type]
		if !ok {
			tt = &storage.TypeTotal{Type: tx.Type, Total: decimal.Zero}
			totals[tx.Type] = tt
		}
		tt.Total = tt.Total.Add(tx.Amount)
		tt.Count++
	}
	out := make([]storage.TypeTotal, 0, len(totals))
	for _, tt := range totals {
		out = append(out, *tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Store) DeleteMany(_ context.Context, pred storage.Predicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrClosed
	}
	var (
		n    int64
		kept = s.order[:0]
	)
	for _, id := range s.order {
		if pred.Match(s.byID[id]) {
			delete(s.byID, id)
			n++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return n, nil
}

func (s *Store) Distinct(_ context.Context, field storage.Field, pred storage.Predicate) ([]string, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownField, field)
	}
	matched, err := s.match(pred)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(matched))
	for _, tx := range matched {
		switch field {
		case storage.FieldCategory:
			values = append(values, tx.Category)
		case storage.FieldType:
			values = append(values, string(tx.Type))
		}
	}
	return dedupeSorted(values), nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) match(pred storage.Predicate) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	out := make([]core.Transaction, 0)
	for _, id := range s.order {
		if tx := s.byID[id]; pred.Match(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func dedupeSorted(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

var _ storage.Store = (*Store)(nil)
