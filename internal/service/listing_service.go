package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

// ListingService ingests scraped listings: normalization, persistence, and
// the per-card cache refresh the detector reads from.
type ListingService struct {
	store      domain.ListingStore
	cache      domain.ListingCache
	listingTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewListingService creates a ListingService. The cache is optional.
func NewListingService(store domain.ListingStore, cache domain.ListingCache, listingTTL time.Duration, logger *slog.Logger) *ListingService {
	if listingTTL <= 0 {
		listingTTL = 24 * time.Hour
	}
	return &ListingService{
		store:      store,
		cache:      cache,
		listingTTL: listingTTL,
		logger:     logger.With(slog.String("component", "listing_service")),
		now:        time.Now,
	}
}

// Ingest normalizes and stores a scrape batch for one card, then refreshes
// the card's listing cache. Invalid listings are dropped with a warning
// rather than failing the batch. Returns the number of listings written.
func (s *ListingService) Ingest(ctx context.Context, cardName string, listings []domain.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	now := s.now().UTC()
	valid := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		l.CardName = cardName
		l.NormalizeTotalCost()
		if l.ScrapedAt.IsZero() {
			l.ScrapedAt = now
		}
		if l.ExpiresAt.IsZero() {
			l.ExpiresAt = l.ScrapedAt.Add(s.listingTTL)
		}
		l.IsActive = true
		if !l.Valid() {
			s.logger.WarnContext(ctx, "dropping invalid listing",
				slog.String("platform", l.Platform),
				slog.String("item_id", l.ItemID),
				slog.String("price", l.Price.String()),
			)
			continue
		}
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return 0, nil
	}

	written, err := s.store.UpsertBatch(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("listing_service: upsert batch for %q: %w", cardName, err)
	}

	if s.cache != nil {
		if err := s.cache.SetListings(ctx, cardName, valid, s.listingTTL); err != nil {
			// Non-fatal: the detector falls back to the store.
			s.logger.WarnContext(ctx, "listing cache refresh failed",
				slog.String("card_name", cardName),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "ingested listings",
		slog.String("card_name", cardName),
		slog.Int("received", len(listings)),
		slog.Int("written", written),
	)
	return written, nil
}

// ActiveListings returns fresh active listings for a card within the window.
func (s *ListingService) ActiveListings(ctx context.Context, cardName string, window time.Duration) ([]domain.Listing, error) {
	listings, err := s.store.ListActive(ctx, cardName, s.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("listing_service: list active for %q: %w", cardName, err)
	}
	return listings, nil
}

// PurgeStale deletes listings past their retention cutoff and invalidates
// nothing: cache entries expire on their own TTL.
func (s *ListingService) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := s.store.DeleteStale(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("listing_service: purge stale: %w", err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "purged stale listings", slog.Int64("deleted", deleted))
	}
	return deleted, nil
}
