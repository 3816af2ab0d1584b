package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/extract"
	applog "fintrack/internal/log"

	"github.com/go-chi/chi/v5"
)

const maxUserIDLength = 128

// userIDParam reads and checks the {userId} path segment.
func userIDParam(r *http.Request) (string, error) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		return "", core.NewValidationError("userId", "is required")
	}
	if len(userID) > maxUserIDLength {
		return "", core.NewValidationError("userId", "must be at most %d characters", maxUserIDLength)
	}
	if strings.ContainsFunc(userID, func(r rune) bool { return r < 32 }) {
		return "", core.NewValidationError("userId", "contains control characters")
	}
	return userID, nil
}

// parseFilter builds the query filter. Unknown keys are logged and ignored.
func parseFilter(r *http.Request) (core.Filter, error) {
	f, unknown, err := core.ParseFilter(r.URL.Query())
	if len(unknown) > 0 {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Ignoring unknown query parameters",
			"params", unknown)
	}
	if err != nil {
		return core.Filter{}, err
	}
	return f, nil
}

// yearMonthParams reads {year} and {month} from the path.
func yearMonthParams(r *http.Request) (int, int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return 0, 0, core.NewValidationError("year", "must be a number")
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return 0, 0, core.NewValidationError("month", "must be a number")
	}
	return year, month, nil
}

// summaryRange reads the optional startDate/endDate query parameters.
func summaryRange(r *http.Request) (*time.Time, *time.Time, error) {
	q := r.URL.Query()
	var start, end *time.Time
	if v := strings.TrimSpace(q.Get("startDate")); v != "" {
		t, err := core.ParseInstant(v)
		if err != nil {
			return nil, nil, core.NewValidationError("startDate", "invalid date %q", v)
		}
		start = &t
	}
	if v := strings.TrimSpace(q.Get("endDate")); v != "" {
		t, err := core.ParseInstant(v)
		if err != nil {
			return nil, nil, core.NewValidationError("endDate", "invalid date %q", v)
		}
		end = &t
	}
	return start, end, nil
}

// readBody reads at most limit bytes. Larger bodies yield *http.MaxBytesError.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// decodeBatch parses a JSON batch request body.
func decodeBatch(data []byte) ([]core.Transaction, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, core.NewValidationError("body", "is empty")
	}
	txs, err := extract.DecodeRecords(data)
	if err != nil {
		return nil, core.NewValidationError("body", "%v", err)
	}
	return txs, nil
}

var extensionForType = map[string]string{
	"application/pdf":  ".pdf",
	"application/json": ".json",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
}

// uploadSource reads a statement either from the multipart "file" field or
// from the raw request body.
func uploadSource(w http.ResponseWriter, r *http.Request, limit int64) (extract.Source, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			return extract.Source{}, fmt.Errorf("parse multipart form: %w", asUploadError(err))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return extract.Source{}, core.NewValidationError("file", "is required")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return extract.Source{}, fmt.Errorf("read upload: %w", err)
		}
		return extract.Source{Name: filepath.Base(header.Filename), Data: data}, nil
	}

	data, err := readBody(w, r, limit)
	if err != nil {
		return extract.Source{}, err
	}
	if len(data) == 0 {
		return extract.Source{}, core.NewValidationError("file", "is required")
	}
	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		name = "upload" + extensionForType[mediaType]
	}
	return extract.Source{Name: filepath.Base(name), Data: data}, nil
}

// asUploadError keeps size errors intact and turns malformed forms into
// validation errors.
func asUploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	if strings.Contains(err.Error(), "request body too large") {
		return &http.MaxBytesError{}
	}
	return core.NewValidationError("file", "%v", err)
}
