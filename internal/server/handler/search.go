package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
	"github.com/tbone30/card-trader/internal/pipeline"
)

// SearchRunner executes a detection workflow run.
type SearchRunner interface {
	Execute(ctx context.Context, req pipeline.DetectionRequest) (pipeline.DetectionResponse, error)
}

// SearchHandler accepts on-demand detection requests. Accepted requests run
// asynchronously; the handler replies 202 immediately and the results land in
// the store and on the WebSocket feed.
type SearchHandler struct {
	workflow SearchRunner
	limiter  domain.RateLimiter // optional per-card cooldown
	cooldown time.Duration
	logger   *slog.Logger
}

// NewSearchHandler creates a SearchHandler. limiter may be nil to disable the
// per-card cooldown.
func NewSearchHandler(workflow SearchRunner, limiter domain.RateLimiter, cooldown time.Duration, logger *slog.Logger) *SearchHandler {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &SearchHandler{
		workflow: workflow,
		limiter:  limiter,
		cooldown: cooldown,
		logger:   logHandler(logger, "search"),
	}
}

// TriggerSearch starts a detection run for one card.
// POST /api/search
func (h *SearchHandler) TriggerSearch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.CardName = strings.TrimSpace(req.CardName)
	if req.CardName == "" {
		writeError(w, http.StatusBadRequest, "card_name is required")
		return
	}

	// One search per card per cooldown window; repeat requests get a 429
	// until the window rolls over.
	if h.limiter != nil {
		key := "search:" + strings.ToLower(req.CardName)
		allowed, err := h.limiter.Allow(r.Context(), key, 1, h.cooldown)
		if err != nil {
			h.logger.WarnContext(r.Context(), "cooldown check failed, allowing request",
				slog.String("card_name", req.CardName),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			w.Header().Set("Retry-After", formatSeconds(h.cooldown))
			writeError(w, http.StatusTooManyRequests, "search already queued for this card, try again later")
			return
		}
	}

	// Detach from the request context so the run survives the client
	// disconnecting after the 202.
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.workflow.Execute(runCtx, req); err != nil {
			h.logger.ErrorContext(runCtx, "async detection failed",
				slog.String("card_name", req.CardName),
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"card_name": req.CardName,
	})
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
