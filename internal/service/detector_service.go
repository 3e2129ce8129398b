package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tbone30/card-trader/internal/arbitrage"
	"github.com/tbone30/card-trader/internal/domain"
)

// DetectionResult is what one detection run returns: the stored top
// opportunities plus observability counts.
type DetectionResult struct {
	CardName      string               `json:"card_name"`
	Opportunities []domain.Opportunity `json:"opportunities"`
	// FilteredCount is how many unique opportunities passed filtering before
	// top-N truncation.
	FilteredCount   int `json:"filtered_count"`
	CandidateCount  int `json:"candidate_count"`
	ListingsScanned int `json:"listings_scanned"`
	StoredCount     int `json:"stored_count"`
	PairsEvaluated  int `json:"pairs_evaluated"`
}

// DetectorService runs one synchronous detection pass per card: fetch fresh
// listings, pair across platforms, dedupe, rank, truncate, persist, publish.
// It has no internal concurrency or retries; those belong to the invoking
// workflow.
type DetectorService struct {
	listings        domain.ListingStore
	opportunities   domain.OpportunityStore
	cache           domain.ListingCache
	engine          *arbitrage.Engine
	bus             domain.SignalBus
	audit           domain.AuditStore
	freshnessWindow time.Duration
	maxPerCard      int
	logger          *slog.Logger
	now             func() time.Time
}

// DetectorServiceConfig bundles the detector's collaborators. Cache, bus and
// audit are optional; the detection core runs without them.
type DetectorServiceConfig struct {
	Listings        domain.ListingStore
	Opportunities   domain.OpportunityStore
	Cache           domain.ListingCache
	Engine          *arbitrage.Engine
	Bus             domain.SignalBus
	Audit           domain.AuditStore
	FreshnessWindow time.Duration
	MaxPerCard      int
	Logger          *slog.Logger
}

// NewDetectorService creates a DetectorService.
func NewDetectorService(cfg DetectorServiceConfig) *DetectorService {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 4 * time.Hour
	}
	if cfg.MaxPerCard <= 0 {
		cfg.MaxPerCard = 10
	}
	return &DetectorService{
		listings:        cfg.Listings,
		opportunities:   cfg.Opportunities,
		cache:           cfg.Cache,
		engine:          cfg.Engine,
		bus:             cfg.Bus,
		audit:           cfg.Audit,
		freshnessWindow: cfg.FreshnessWindow,
		maxPerCard:      cfg.MaxPerCard,
		logger:          cfg.Logger.With(slog.String("component", "detector_service")),
		now:             time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *DetectorService) WithClock(now func() time.Time) *DetectorService {
	s.now = now
	return s
}

// Detect runs a full detection pass for one card. An empty listing pool or a
// fully filtered-out candidate set is a normal result, not an error.
// Persistence failures are logged and reduce StoredCount but do not fail the
// run; the caller still receives every computed opportunity.
func (s *DetectorService) Detect(ctx context.Context, cardName string) (DetectionResult, error) {
	cardName = strings.TrimSpace(cardName)
	if cardName == "" {
		return DetectionResult{}, fmt.Errorf("detector_service: %w: card name must not be empty", domain.ErrValidation)
	}

	result := DetectionResult{CardName: cardName}
	cutoff := s.now().Add(-s.freshnessWindow)

	listings, err := s.fetchListings(ctx, cardName, cutoff)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("detector_service: fetch listings for %q: %w", cardName, err)
	}
	result.ListingsScanned = len(listings)

	if len(listings) == 0 {
		s.logger.InfoContext(ctx, "no fresh listings",
			slog.String("card_name", cardName),
		)
		return result, nil
	}

	candidates, stats := s.engine.FindOpportunities(listings, cardName)
	result.CandidateCount = stats.Candidates
	result.PairsEvaluated = stats.PairsEvaluated

	unique := arbitrage.Rank(arbitrage.Deduplicate(candidates))
	result.FilteredCount = len(unique)

	top := arbitrage.SelectTop(unique, s.maxPerCard)
	result.Opportunities = top

	if len(top) > 0 {
		stored, err := s.opportunities.InsertBatch(ctx, top)
		if err != nil {
			// Partial persistence failure is logged, never fatal: the caller
			// still gets the computed opportunities.
			s.logger.ErrorContext(ctx, "opportunity persist failed",
				slog.String("card_name", cardName),
				slog.Int("requested", len(top)),
				slog.String("error", err.Error()),
			)
		}
		result.StoredCount = stored
		s.publish(ctx, result)
	}

	s.logger.InfoContext(ctx, "detection complete",
		slog.String("card_name", cardName),
		slog.Int("listings", result.ListingsScanned),
		slog.Int("candidates", result.CandidateCount),
		slog.Int("unique", result.FilteredCount),
		slog.Int("stored", result.StoredCount),
	)

	if s.audit != nil {
		if err := s.audit.Log(ctx, "detection_run", map[string]any{
			"card_name": cardName,
			"listings":  result.ListingsScanned,
			"found":     result.FilteredCount,
			"stored":    result.StoredCount,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	return result, nil
}

// fetchListings prefers the Redis cache and falls back to the store. Cached
// entries older than the freshness cutoff are filtered out.
func (s *DetectorService) fetchListings(ctx context.Context, cardName string, cutoff time.Time) ([]domain.Listing, error) {
	if s.cache != nil {
		cached, err := s.cache.GetListings(ctx, cardName)
		if err == nil {
			fresh := cached[:0:0]
			for _, l := range cached {
				if l.IsActive && l.ScrapedAt.After(cutoff) && l.Valid() {
					fresh = append(fresh, l)
				}
			}
			if len(fresh) > 0 {
				return fresh, nil
			}
		}
	}
	return s.listings.ListActive(ctx, cardName, cutoff)
}

// publish announces fresh opportunities on the "opportunities" channel so the
// WS hub and notification workers pick them up.
func (s *DetectorService) publish(ctx context.Context, result DetectionResult) {
	if s.bus == nil {
		return
	}
	payload, err := encodeOpportunityEvent(result)
	if err != nil {
		s.logger.WarnContext(ctx, "encode opportunity event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, "opportunities", payload); err != nil {
		s.logger.WarnContext(ctx, "publish opportunities failed",
			slog.String("card_name", result.CardName),
			slog.String("error", err.Error()),
		)
	}
}
