package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	applog "fintrack/internal/log"

	"github.com/go-chi/chi/v5"
)

// handleUpload accepts a statement file and queues an extraction job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpUpload, err)
		return
	}
	src, err := uploadSource(w, r, s.uploadMaxBytes)
	if err != nil {
		writeError(w, r, applog.OpUpload, err)
		return
	}

	job, err := s.jobs.Submit(r.Context(), userID, src)
	if err != nil {
		writeError(w, r, applog.OpUpload, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Queued extraction job",
		applog.FieldUserID, userID,
		applog.FieldJobID, job.ID,
		applog.FieldFile, src.Name,
		"bytes", len(src.Data))

	NewResponse().
		Status(http.StatusAccepted).
		Header("Location", "/api/jobs/"+job.ID).
		Message("Extraction job queued").
		Data(job).
		Write(w)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if id == "" {
		writeError(w, r, applog.OpUpload, core.NewValidationError("jobId", "is required"))
		return
	}
	job, err := s.jobs.Get(id)
	if err != nil {
		writeError(w, r, applog.OpUpload, err)
		return
	}
	NewResponse().Data(job).Write(w)
}

// handleRateLimited writes the envelope used when the upload limiter trips.
func handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Upload rate limit exceeded",
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, core.KindValidation,
		"Rate limit exceeded. Please try again later.").Write(w)
}
