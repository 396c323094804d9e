package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/shillbot/internal/domain/settlement"
	"github.com/okian/shillbot/internal/domain/window"
)

// PreviewHandler serves read-only score previews.
type PreviewHandler struct {
	deps Previewer
}

// NewPreviewHandler creates a new preview handler.
func NewPreviewHandler(deps Previewer) *PreviewHandler {
	return &PreviewHandler{deps: deps}
}

// HandlePreview handles GET /preview?since=RFC3339&until=RFC3339 requests.
func (h *PreviewHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	since, err := time.Parse(time.RFC3339, q.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: since must be RFC3339", ErrBadRequest))
		return
	}
	until, err := time.Parse(time.RFC3339, q.Get("until"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: until must be RFC3339", ErrBadRequest))
		return
	}
	ranked, err := h.deps.ScorePreview(r.Context(), since, until)
	if err != nil {
		if errors.Is(err, settlement.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// HandlePayouts handles GET /payouts/preview[?window_id=ID]. Without an id
// it plans the open window.
func (h *PreviewHandler) HandlePayouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	plan, err := h.deps.PreviewPayouts(r.Context(), r.URL.Query().Get("window_id"))
	if err != nil {
		if errors.Is(err, window.ErrInvalidWindowID) || errors.Is(err, window.ErrNotASlot) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
