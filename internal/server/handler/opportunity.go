package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

// OpportunityReader is the read-side of the opportunity service the handler
// needs.
type OpportunityReader interface {
	List(ctx context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error)
	Get(ctx context.Context, id string) (domain.Opportunity, error)
}

// OpportunityHandler serves opportunity queries.
type OpportunityHandler struct {
	opps   OpportunityReader
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(opps OpportunityReader, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		opps:   opps,
		logger: logHandler(logger, "opportunity"),
	}
}

// ListOpportunities returns opportunities matching the query filters.
// GET /api/opportunities?card_name=&platform_pair=&min_profit_margin=&max_risk_score=&status=&limit=&offset=
func (h *OpportunityHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	filter := domain.OpportunityFilter{
		CardName:     q.Get("card_name"),
		PlatformPair: q.Get("platform_pair"),
		Status:       domain.OpportunityStatus(q.Get("status")),
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	}

	if v := q.Get("min_profit_margin"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_profit_margin")
			return
		}
		filter.MinProfitMargin = &d
	}
	if v := q.Get("max_risk_score"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid max_risk_score")
			return
		}
		filter.MaxRiskScore = &d
	}

	opps, err := h.opps.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}

// GetOpportunity returns a single opportunity by ID.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	opp, err := h.opps.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get opportunity failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}

	writeJSON(w, http.StatusOK, opp)
}
