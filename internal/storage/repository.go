package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the embedded Store backend.
type SQLiteRepository struct {
	db      *sql.DB
	sql     Builder
	timeout time.Duration
}

func NewSQLiteRepository(dbPath string, timeout time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		sql:     NewBuilder(SQLiteDialect),
		timeout: timeout,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	var one int
	err := r.db.QueryRowContext(ctx, r.sql.Exists(), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check transaction %s: %w", id, err)
	}
	return true, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	q, args, err := r.sql.Insert(tx, time.Now())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if n == 0 {
		return ErrUniqueViolation
	}
	return nil
}

func (r *SQLiteRepository) Find(ctx context.Context, pred Predicate, opts FindOptions) ([]core.Transaction, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	q, args := r.sql.Find(pred, opts)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, pred Predicate) (int64, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	q, args := r.sql.Count(pred)
	var n int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) AggregateByTypeThenCategory(ctx context.Context, pred Predicate) ([]core.CategoryTotal, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	q, args := r.sql.AggregateByTypeThenCategory(pred)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	defer rows.Close()

	out := make([]core.CategoryTotal, 0)
	for rows.Next() {
		var (
			ct            core.CategoryTotal
			debit, credit int64
		)
		if err := rows.Scan(&ct.Category, &debit, &credit, &ct.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		ct.Debit = core.FromCents(debit)
		ct.Credit = core.FromCents(credit)
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) AggregateByType(ctx context.Context, pred Predicate) ([]TypeTotal, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	q, args := r.sql.AggregateByType(pred)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by type: %w", err)
	}
	defer rows.Close()

	out := make([]TypeTotal, 0, 2)
	for rows.Next() {
		var (
			tt    TypeTotal
			typ   string
			total int64
		)
		if err := rows.Scan(&typ, &total, &tt.Count); err != nil {
			return nil, fmt.Errorf("scan type total: %w", err)
		}
		tt.Type = core.TransactionType(typ)
		tt.Total = core.FromCents(total)
		out = append(out, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type totals: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteMany(ctx context.Context, pred Predicate) (int64, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	q, args := r.sql.DeleteMany(pred)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Distinct(ctx context.Context, field Field, pred Predicate) ([]string, error) {
	q, args, err := r.sql.Distinct(field, pred)
	if err != nil {
		return nil, err
	}
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", field, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanSQLite(rows *sql.Rows) (core.Transaction, error) {
	var (
		tx      core.Transaction
		dateMS  int64
		cents   int64
		typ     string
		balance sql.NullInt64
		raw     sql.NullString
	)
	if err := rows.Scan(&tx.ID, &tx.UserID, &dateMS, &tx.Description, &cents, &typ, &tx.Category, &balance, &raw); err != nil {
		return core.Transaction{}, err
	}
	tx.Date = core.DateOf(time.UnixMilli(dateMS).UTC())
	tx.Amount = core.FromCents(cents)
	tx.Type = core.TransactionType(typ)
	if balance.Valid {
		b := core.FromCents(balance.Int64)
		tx.Balance = &b
	}
	if raw.Valid {
		s := raw.String
		tx.RawLine = &s
	}
	return tx, nil
}

var _ Store = (*SQLiteRepository)(nil)
