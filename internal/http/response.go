// Package http exposes the transaction engine as a JSON API.
//
// Every response uses the same envelope: {success, data | message,
// pagination?}. Handlers build it with ResponseBuilder so status codes and
// error kinds stay consistent.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/extract"
	applog "fintrack/internal/log"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Kind       string      `json:"kind,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Skip    int   `json:"skip"`
	HasMore bool  `json:"hasMore"`
}

// ResponseBuilder provides a fluent API for building envelope responses.
type ResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewResponse creates a successful response builder with 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.envelope.Data = data
	return b
}

func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.envelope.Message = msg
	return b
}

// Page moves the page items into data and the counters into pagination.
func (b *ResponseBuilder) Page(p core.Page) *ResponseBuilder {
	b.envelope.Data = p.Items
	b.envelope.Pagination = &Pagination{
		Total:   p.Total,
		Limit:   p.Limit,
		Skip:    p.Skip,
		HasMore: p.HasMore,
	}
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.envelope)
}

// ErrorResponse creates a failed response carrying message and kind.
func ErrorResponse(statusCode int, kind core.ErrorKind, message string) *ResponseBuilder {
	b := NewResponse().Status(statusCode).Message(message)
	b.envelope.Success = false
	b.envelope.Kind = string(kind)
	return b
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, core.KindValidation, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, core.KindNotFound, message)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) (int, core.ErrorKind) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, core.KindValidation
	}
	if errors.Is(err, extract.ErrRunnerClosed) {
		return http.StatusServiceUnavailable, core.KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, core.KindStorage
	}
	kind := core.KindOf(err)
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest, kind
	case core.KindNotFound:
		return http.StatusNotFound, kind
	case core.KindDuplicate:
		return http.StatusConflict, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// writeError logs err with the request logger and writes the failure
// envelope. Server-side failures hide their details from the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind := statusFor(err)
	logger := applog.FromContext(r.Context())

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldError, err,
			"kind", kind)
		if status == http.StatusInternalServerError {
			msg = "internal error while processing " + op
		}
	} else {
		logger.WarnContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldError, err,
			"kind", kind)
	}
	ErrorResponse(status, kind, msg).Write(w)
}
