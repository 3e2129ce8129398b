package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tbone30/card-trader/internal/domain"
)

// InsightReader aggregates recent market insights for a card.
type InsightReader interface {
	Insights(ctx context.Context, cardName string) (domain.MarketInsights, error)
}

// InsightHandler serves per-card market insight aggregates.
type InsightHandler struct {
	insights InsightReader
	logger   *slog.Logger
}

// NewInsightHandler creates an InsightHandler.
func NewInsightHandler(insights InsightReader, logger *slog.Logger) *InsightHandler {
	return &InsightHandler{
		insights: insights,
		logger:   logHandler(logger, "insight"),
	}
}

// GetInsights returns the aggregated market view for one card.
// GET /api/insights/{card}
func (h *InsightHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	cardName := pathParam(r, "card")
	if cardName == "" {
		writeError(w, http.StatusBadRequest, "missing card name")
		return
	}

	insights, err := h.insights.Insights(r.Context(), cardName)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "insights failed",
			slog.String("card_name", cardName),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute insights")
		return
	}

	writeJSON(w, http.StatusOK, insights)
}
