package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type InsertStatus string

const (
	StatusInserted  InsertStatus = "inserted"
	StatusDuplicate InsertStatus = "duplicate"
)

// InsertOutcome is the result of a single non-failing insert.
type InsertOutcome struct {
	Status InsertStatus
	Record core.Transaction
}

// Failure describes one record a batch could not store.
type Failure struct {
	Index   int            `json:"index"`
	ID      string         `json:"id,omitempty"`
	Kind    core.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

// BatchResult accumulates the outcome of InsertBatch.
type BatchResult struct {
	Inserted        int                `json:"inserted"`
	Duplicates      int                `json:"duplicates"`
	Errors          int                `json:"errors"`
	InsertedRecords []core.Transaction `json:"insertedRecords"`
	Failures        []Failure          `json:"failures,omitempty"`
}

func (r BatchResult) Total() int {
	return r.Inserted + r.Duplicates + r.Errors
}

// InsertOne stores tx unless its id already exists. A duplicate is a
// successful outcome, not an error.
func (s *TransactionService) InsertOne(ctx context.Context, tx core.Transaction) (InsertOutcome, error) {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return InsertOutcome{}, asValidation(err)
	}

	exists, err := s.store.Exists(ctx, tx.ID)
	if err != nil {
		return InsertOutcome{}, core.NewStorageError("exists", err)
	}
	if exists {
		return InsertOutcome{Status: StatusDuplicate, Record: tx}, nil
	}

	if err := s.store.Insert(ctx, tx); err != nil {
		// Lost a race with a concurrent insert of the same id.
		if errors.Is(err, storage.ErrUniqueViolation) {
			return InsertOutcome{Status: StatusDuplicate, Record: tx}, nil
		}
		return InsertOutcome{}, core.NewStorageError("insert", err)
	}
	return InsertOutcome{Status: StatusInserted, Record: tx}, nil
}

// InsertBatch inserts txs sequentially in input order. A failing record is
// counted and recorded, never aborting the batch. Records without a user id
// are assigned userID; records naming a different user are rejected.
//
// If ctx is cancelled between records the batch stops and the partial
// result is returned together with the context error.
func (s *TransactionService) InsertBatch(ctx context.Context, userID string, txs []core.Transaction) (BatchResult, error) {
	res := BatchResult{InsertedRecords: make([]core.Transaction, 0, len(txs))}
	userID = strings.TrimSpace(userID)

	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "Batch cancelled",
				"user_id", userID, "processed", i, "total", len(txs), "error", err)
			return res, err
		}

		tx.UserID = assignUser(tx.UserID, userID)
		if userID != "" && tx.UserID != userID {
			res.fail(i, tx.ID, core.NewValidationError("userId", "record belongs to %q, batch is for %q", tx.UserID, userID))
			continue
		}

		out, err := s.InsertOne(ctx, tx)
		if err != nil {
			res.fail(i, tx.ID, err)
			slog.DebugContext(ctx, "Record rejected", "index", i, "kind", core.KindOf(err), "error", err)
			continue
		}
		switch out.Status {
		case StatusInserted:
			res.Inserted++
			res.InsertedRecords = append(res.InsertedRecords, out.Record)
		case StatusDuplicate:
			res.Duplicates++
		}
	}

	slog.DebugContext(ctx, "Batch finished",
		"user_id", userID,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"errors", res.Errors)

	s.publishImportCompleted(ctx, userID, res)
	return res, nil
}

// StorageFailures counts the records that failed because the store did.
func (r BatchResult) StorageFailures() int {
	n := 0
	for _, f := range r.Failures {
		if f.Kind == core.KindStorage {
			n++
		}
	}
	return n
}

func (r *BatchResult) fail(index int, id string, err error) {
	r.Errors++
	r.Failures = append(r.Failures, Failure{
		Index:   index,
		ID:      id,
		Kind:    core.KindOf(err),
		Message: err.Error(),
	})
}

func assignUser(recordUser, batchUser string) string {
	recordUser = strings.TrimSpace(recordUser)
	if recordUser == "" {
		return batchUser
	}
	return recordUser
}

func (s *TransactionService) publishImportCompleted(ctx context.Context, userID string, res BatchResult) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishImportCompleted(ctx, userID, res.Inserted, res.Duplicates, res.Errors); err != nil {
		slog.ErrorContext(ctx, "Failed to publish import event", "user_id", userID, "error", err)
		// Don't fail the batch - records are stored
	}
}
