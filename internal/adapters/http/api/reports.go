package api

import (
	"net/http"
	"strings"

	"github.com/okian/shillbot/internal/domain/model"
)

// ReportsHandler serves settlement reports.
type ReportsHandler struct {
	deps ReportReader
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportReader) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// HandleGetReport handles GET /reports/latest and GET /reports/{window_id}.
func (h *ReportsHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/reports/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	var (
		report *model.Report
		err    error
	)
	if id == "latest" {
		report, err = h.deps.LatestReport(r.Context())
	} else {
		report, err = h.deps.LoadReport(r.Context(), id)
	}
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
