// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
)

// ReportReader exposes stored settlement reports.
type ReportReader interface {
	LatestReport(ctx context.Context) (*model.Report, error)
	LoadReport(ctx context.Context, windowID string) (*model.Report, error)
}

// Previewer ranks and plans without settling anything.
type Previewer interface {
	ScorePreview(ctx context.Context, since, until time.Time) (*model.Ranked, error)
	PreviewPayouts(ctx context.Context, windowID string) (*model.Report, error)
}

// Server wires HTTP routes for the read-only API.
type Server struct {
	healthHandler  *HealthHandler
	reportsHandler *ReportsHandler
	previewHandler *PreviewHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(reports ReportReader, preview Previewer) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		reportsHandler: NewReportsHandler(reports),
		previewHandler: NewPreviewHandler(preview),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, routeHealth))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/reports/", MetricsMiddleware(s.reportsHandler.HandleGetReport, routeReports))
	mux.HandleFunc("/preview", MetricsMiddleware(s.previewHandler.HandlePreview, routePreview))
	mux.HandleFunc("/payouts/preview", MetricsMiddleware(s.previewHandler.HandlePayouts, routePayoutsPreview))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
