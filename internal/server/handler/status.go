package handler

import (
	"context"
	"net/http"
	"time"
)

// ListingCounter reports the total number of stored listings.
type ListingCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatusHandler serves the service status for dashboards.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	listings  ListingCounter // optional
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, listings ListingCounter) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{mode: mode, startedAt: startedAt, listings: listings}
}

// GetStatus responds with the operating mode, uptime and store counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.listings != nil {
		if count, err := h.listings.Count(r.Context()); err == nil {
			resp["listing_count"] = count
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
