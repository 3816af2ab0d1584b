package http

import (
	"bytes"
	"net/http"
	"strconv"

	"fintrack/internal/export"
	applog "fintrack/internal/log"
)

func (s *Server) handleInsertBatch(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpIngest, err)
		return
	}
	data, err := readBody(w, r, s.uploadMaxBytes)
	if err != nil {
		writeError(w, r, applog.OpIngest, err)
		return
	}
	txs, err := decodeBatch(data)
	if err != nil {
		writeError(w, r, applog.OpIngest, err)
		return
	}

	res, err := s.transactions.InsertBatch(r.Context(), userID, txs)
	if err != nil {
		writeError(w, r, applog.OpIngest, err)
		return
	}
	applog.FromContext(r.Context()).LogBatch(r.Context(), userID, res.Inserted, res.Duplicates, res.Errors)

	status := http.StatusOK
	if res.Inserted > 0 {
		status = http.StatusCreated
	}
	NewResponse().
		Status(status).
		Message(batchMessage(res.Inserted, res.Duplicates, res.Errors)).
		Data(res).
		Write(w)
}

func batchMessage(inserted, duplicates, errs int) string {
	return "Inserted " + strconv.Itoa(inserted) +
		", skipped " + strconv.Itoa(duplicates) + " duplicates, " +
		strconv.Itoa(errs) + " errors"
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	page, err := s.transactions.GetByUser(r.Context(), userID, f)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	NewResponse().Page(page).Write(w)
}

func (s *Server) handleListMonth(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	year, month, err := yearMonthParams(r)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	page, err := s.transactions.GetByMonth(r.Context(), userID, year, month, f)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	NewResponse().Page(page).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	start, end, err := summaryRange(r)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	summary, err := s.transactions.Summary(r.Context(), userID, start, end)
	if err != nil {
		writeError(w, r, applog.OpSummary, err)
		return
	}
	NewResponse().Data(summary).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	cats, err := s.transactions.DistinctCategories(r.Context(), userID)
	if err != nil {
		writeError(w, r, applog.OpQuery, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	NewResponse().Data(cats).Write(w)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	n, err := s.transactions.DeleteAllForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Deleted transactions",
		applog.FieldUserID, userID,
		"deleted", n)
	NewResponse().
		Message("Deleted " + strconv.FormatInt(n, 10) + " transactions").
		Data(map[string]int64{"deleted": n}).
		Write(w)
}

// handleExport streams every matching record as an xlsx workbook. The
// workbook is rendered before any byte is sent so failures still produce
// an envelope.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}

	var buf bytes.Buffer
	n, err := s.exporter.Write(r.Context(), &buf, userID, f)
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Exported transactions",
		applog.FieldUserID, userID,
		"rows", n)

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(userID, f)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
