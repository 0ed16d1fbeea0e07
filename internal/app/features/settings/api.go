package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/formguard/internal/app/store/audit"
	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// ServeSettingsJSON handles GET /admin/settings.json with the public view
// of the settings.
func (h *Handler) ServeSettingsJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	s, err := h.Settings.Get(ctx)
	if err != nil {
		h.Log.Error("load settings failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "settings unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, s.Public())
}

type eventsResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
}

// ServeEvents handles GET /admin/events.
//
// Query parameters:
//   - limit: max events (default 50, max 500)
//   - failed=1: only refused submissions
//   - since: RFC3339 lower bound on the timestamp
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	resp := eventsResponse{Events: []audit.Event{}}
	if h.Events == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	q := r.URL.Query()
	limit := int64(50)
	if v, err := strconv.ParseInt(q.Get("limit"), 10, 64); err == nil && v > 0 {
		limit = min(v, 500)
	}

	filter := audit.QueryFilter{
		Category: audit.CategorySecurity,
		Limit:    limit,
	}
	if q.Get("failed") == "1" {
		failed := false
		filter.Success = &failed
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		filter.StartTime = &since
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.Log.Error("query audit events failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "events unavailable"})
		return
	}
	if events != nil {
		resp.Events = events
	}
	resp.Count = len(resp.Events)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
