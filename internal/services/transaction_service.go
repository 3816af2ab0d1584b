package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// EventPublisher announces finished imports. The AMQP client implements it.
type EventPublisher interface {
	PublishImportCompleted(ctx context.Context, userID string, inserted, duplicates, errors int) error
}

// TransactionService orchestrates ingestion, queries and aggregation over an
// injected store. It holds no per-request state.
type TransactionService struct {
	store     storage.Store
	publisher EventPublisher
}

func NewTransactionService(store storage.Store, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
	}
}

// Ping checks the store is reachable.
func (s *TransactionService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return core.NewStorageError("ping", err)
	}
	return nil
}

// Close releases the store.
func (s *TransactionService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close transaction service: %w", err)
	}
	return nil
}

func requireUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", core.NewValidationError("userId", "is required")
	}
	return userID, nil
}

var fieldOf = map[error]string{
	core.ErrEmptyID:          "id",
	core.ErrEmptyUserID:      "userId",
	core.ErrZeroDate:         "date",
	core.ErrEmptyDescription: "description",
	core.ErrNegativeAmount:   "amount",
	core.ErrAmountTooLarge:   "amount",
	core.ErrInvalidType:      "type",
}

// asValidation converts a record validation failure into a ValidationError.
func asValidation(err error) error {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	for sentinel, field := range fieldOf {
		if errors.Is(err, sentinel) {
			return &core.ValidationError{Field: field, Message: err.Error()}
		}
	}
	return &core.ValidationError{Message: err.Error()}
}
