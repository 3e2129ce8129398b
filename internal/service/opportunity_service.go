package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

// OpportunityService serves read queries over stored opportunities and the
// per-card market insight aggregates.
type OpportunityService struct {
	store  domain.OpportunityStore
	logger *slog.Logger
	now    func() time.Time
}

// NewOpportunityService creates an OpportunityService.
func NewOpportunityService(store domain.OpportunityStore, logger *slog.Logger) *OpportunityService {
	return &OpportunityService{
		store:  store,
		logger: logger.With(slog.String("component", "opportunity_service")),
		now:    time.Now,
	}
}

// defaultListLimit bounds unpaginated list queries.
const defaultListLimit = 50

// List returns opportunities matching the filter, defaulting to ACTIVE status
// and a bounded page size.
func (s *OpportunityService) List(ctx context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error) {
	if filter.Status == "" {
		filter.Status = domain.OpportunityStatusActive
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = defaultListLimit
	}
	opps, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list: %w", err)
	}
	return opps, nil
}

// Get retrieves one opportunity by ID.
func (s *OpportunityService) Get(ctx context.Context, id string) (domain.Opportunity, error) {
	opp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("opportunity_service: get %q: %w", id, err)
	}
	return opp, nil
}

// ActiveCount returns the number of unexpired ACTIVE opportunities for a card.
func (s *OpportunityService) ActiveCount(ctx context.Context, cardName string) (int64, error) {
	count, err := s.store.CountActiveByCard(ctx, cardName)
	if err != nil {
		return 0, fmt.Errorf("opportunity_service: active count for %q: %w", cardName, err)
	}
	return count, nil
}

// Insights aggregates the last 24 hours of opportunities for one card.
func (s *OpportunityService) Insights(ctx context.Context, cardName string) (domain.MarketInsights, error) {
	insights, err := s.store.Insights(ctx, cardName, s.now().Add(-24*time.Hour))
	if err != nil {
		return domain.MarketInsights{}, fmt.Errorf("opportunity_service: insights for %q: %w", cardName, err)
	}
	return insights, nil
}
