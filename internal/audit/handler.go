package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-fin/custodia/internal/platform/httpx"
)

// Handler exposes the audit timeline over HTTP.
type Handler struct {
	logger   *slog.Logger
	recorder *PGRecorder
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, recorder *PGRecorder) *Handler {
	return &Handler{logger: logger, recorder: recorder}
}

// MountRoutes registers the audit endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.handleTimeline)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Actor:  q.Get("actor"),
		Action: q.Get("action"),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from timestamp")
			return
		}
		filters.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to timestamp")
			return
		}
		filters.To = t
	}
	if v := q.Get("page"); v != "" {
		filters.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("page_size"); v != "" {
		filters.PageSize, _ = strconv.Atoi(v)
	}

	rows, err := h.recorder.Timeline(r.Context(), filters)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("audit timeline query", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if rows == nil {
		rows = []TimelineRow{}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"entries": rows})
}
