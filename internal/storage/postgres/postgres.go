// Package postgres implements the transaction store on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool    *pgxpool.Pool
	sql     storage.Builder
	timeout time.Duration
}

// Open connects to databaseURL, applies pending migrations and returns a
// ready store.
func Open(ctx context.Context, databaseURL string, timeout time.Duration) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &Store{pool: pool, sql: storage.NewBuilder(storage.PostgresDialect), timeout: timeout}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return s, nil
}

// RunMigrations applies the embedded schema through a short-lived
// database/sql connection.
func RunMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}
	return storage.MigrateUp(migrationsFS, "migrations", "pgx5", driver)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	var one int
	err := s.pool.QueryRow(ctx, s.sql.Exists(), id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check transaction %s: %w", id, err)
	}
	return true, nil
}

func (s *Store) Insert(ctx context.Context, tx core.Transaction) error {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args, err := s.sql.Insert(tx, time.Now())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUniqueViolation
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrUniqueViolation
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *Store) Find(ctx context.Context, pred storage.Predicate, opts storage.FindOptions) ([]core.Transaction, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args := s.sql.Find(pred, opts)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	if out == nil {
		out = []core.Transaction{}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, pred storage.Predicate) (int64, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args := s.sql.Count(pred)
	var n int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (s *Store) AggregateByTypeThenCategory(ctx context.Context, pred storage.Predicate) ([]core.CategoryTotal, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args := s.sql.AggregateByTypeThenCategory(pred)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.CategoryTotal, error) {
		var (
			ct            core.CategoryTotal
			debit, credit int64
		)
		if err := row.Scan(&ct.Category, &debit, &credit, &ct.Count); err != nil {
			return ct, err
		}
		ct.Debit = core.FromCents(debit)
		ct.Credit = core.FromCents(credit)
		return ct, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan category totals: %w", err)
	}
	if out == nil {
		out = []core.CategoryTotal{}
	}
	return out, nil
}

func (s *Store) AggregateByType(ctx context.Context, pred storage.Predicate) ([]storage.TypeTotal, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args := s.sql.AggregateByType(pred)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by type: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.TypeTotal, error) {
		var (
			tt    storage.TypeTotal
			typ   string
			total int64
		)
		if err := row.Scan(&typ, &total, &tt.Count); err != nil {
			return tt, err
		}
		tt.Type = core.TransactionType(typ)
		tt.Total = core.FromCents(total)
		return tt, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan type totals: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteMany(ctx context.Context, pred storage.Predicate) (int64, error) {
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args := s.sql.DeleteMany(pred)
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Distinct(ctx context.Context, field storage.Field, pred storage.Predicate) ([]string, error) {
	q, args, err := s.sql.Distinct(field, pred)
	if err != nil {
		return nil, err
	}
	ctx, cancel := storage.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", field, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func scanTransaction(row pgx.CollectableRow) (core.Transaction, error) {
	var (
		tx      core.Transaction
		date    time.Time
		cents   int64
		typ     string
		balance *int64
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &date, &tx.Description, &cents, &typ, &tx.Category, &balance, &tx.RawLine); err != nil {
		return core.Transaction{}, err
	}
	tx.Date = core.DateOf(date.UTC())
	tx.Amount = core.FromCents(cents)
	tx.Type = core.TransactionType(typ)
	if balance != nil {
		b := core.FromCents(*balance)
		tx.Balance = &b
	}
	return tx, nil
}

var _ storage.Store = (*Store)(nil)
