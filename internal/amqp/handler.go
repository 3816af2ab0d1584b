package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/extract"
	"fintrack/internal/services"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Processor extracts and ingests one source. extract.Runner implements it.
type Processor interface {
	Process(ctx context.Context, userID string, src extract.Source) (services.BatchResult, error)
}

// ImportHandler ingests the records carried by a request. Malformed payloads
// and validation failures are permanent; storage trouble is retried. A batch
// in which any record hit a store failure is retried whole: ingestion is
// idempotent, so records already stored come back as duplicates.
func ImportHandler(proc Processor) HandlerFunc {
	return func(ctx context.Context, req *ImportRequest) error {
		if strings.TrimSpace(req.UserID) == "" {
			return Permanent(core.NewValidationError("userId", "is required"))
		}
		if len(req.Records) == 0 {
			return Permanent(core.NewValidationError("records", "are required"))
		}
		src := extract.Source{Name: "import-request.json", Data: req.Records}
		res, err := proc.Process(ctx, req.UserID, src)
		if err != nil {
			switch core.KindOf(err) {
			case core.KindStorage:
				return err
			case core.KindUnknown:
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					return err
				}
			}
			return Permanent(fmt.Errorf("import for %s: %w", req.UserID, err))
		}
		if n := res.StorageFailures(); n > 0 {
			slog.WarnContext(ctx, "Import request hit store failures, requeueing",
				"user_id", req.UserID,
				"inserted", res.Inserted,
				"storage_failures", n)
			return core.NewStorageError("import", fmt.Errorf("%d of %d records failed to store", n, res.Total()))
		}
		slog.InfoContext(ctx, "Import request ingested",
			"user_id", req.UserID,
			"inserted", res.Inserted,
			"duplicates", res.Duplicates,
			"errors", res.Errors)
		return nil
	}
}
