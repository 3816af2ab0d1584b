package core

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindStorage    ErrorKind = "storage_error"
	KindNotFound   ErrorKind = "not_found"
	KindDuplicate  ErrorKind = "duplicate"
	KindUnknown    ErrorKind = "unknown"
)

// ErrDuplicate marks an insert that found the id already stored. It is an
// outcome, not a failure.
var ErrDuplicate = errors.New("duplicate record")

// ValidationError reports a missing identifier or a malformed input value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StorageError wraps a backend failure: unreachable store, timeout or a
// write rejected for reasons other than uniqueness.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Kind() ErrorKind { return KindStorage }

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// NotFoundError is returned at collaborator boundaries (jobs, inbox files).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// KindOf classifies err for callers that need to map failures to responses.
func KindOf(err error) ErrorKind {
	var (
		ve *ValidationError
		se *StorageError
		ne *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ne):
		return KindNotFound
	case errors.As(err, &se):
		return KindStorage
	default:
		return KindUnknown
	}
}
