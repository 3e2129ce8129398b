// Package pipeline wires the long-running workers: listing scraping, the
// detection workflow with retries, the card scheduler, and cold-storage
// archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
	"github.com/tbone30/card-trader/internal/platform/ebay"
)

// ListingFetcher retrieves listings from an external marketplace.
type ListingFetcher interface {
	SearchListings(ctx context.Context, req ebay.SearchRequest) ([]domain.Listing, error)
}

// ListingIngester persists a batch of scraped listings for one card.
type ListingIngester interface {
	Ingest(ctx context.Context, cardName string, listings []domain.Listing) (int, error)
}

// CardTarget is one card on the scrape watchlist.
type CardTarget struct {
	Name     string
	MaxPrice decimal.Decimal
}

// ListingScraper scrapes marketplace listings for every card on the watchlist
// and feeds them through the ingest path.
type ListingScraper struct {
	fetcher     ListingFetcher
	ingester    ListingIngester
	cards       []CardTarget
	searchLimit int
	logger      *slog.Logger
}

// NewListingScraper creates a new ListingScraper.
func NewListingScraper(fetcher ListingFetcher, ingester ListingIngester, cards []CardTarget, searchLimit int, logger *slog.Logger) *ListingScraper {
	if searchLimit <= 0 {
		searchLimit = 100
	}
	return &ListingScraper{
		fetcher:     fetcher,
		ingester:    ingester,
		cards:       cards,
		searchLimit: searchLimit,
		logger:      logger.With(slog.String("component", "listing_scraper")),
	}
}

// ScrapeCard fetches and ingests listings for one card. Returns how many
// listings were written.
func (s *ListingScraper) ScrapeCard(ctx context.Context, card CardTarget) (int, error) {
	listings, err := s.fetcher.SearchListings(ctx, ebay.SearchRequest{
		Query:    card.Name,
		MaxPrice: card.MaxPrice,
		Limit:    s.searchLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("fetching listings for %q: %w", card.Name, err)
	}

	written, err := s.ingester.Ingest(ctx, card.Name, listings)
	if err != nil {
		return 0, fmt.Errorf("ingesting %d listings for %q: %w", len(listings), card.Name, err)
	}
	return written, nil
}

// Run executes a single scrape pass over the whole watchlist. A per-card
// failure is logged and skipped so one broken search does not starve the rest
// of the list.
func (s *ListingScraper) Run(ctx context.Context) error {
	totalWritten := 0
	failed := 0

	for _, card := range s.cards {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("listing scraper context cancelled: %w", err)
		}

		written, err := s.ScrapeCard(ctx, card)
		if err != nil {
			failed++
			s.logger.ErrorContext(ctx, "card scrape failed",
				slog.String("card_name", card.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		totalWritten += written
		s.logger.InfoContext(ctx, "scraped card",
			slog.String("card_name", card.Name),
			slog.Int("written", written),
		)
	}

	s.logger.InfoContext(ctx, "scrape pass complete",
		slog.Int("cards", len(s.cards)),
		slog.Int("failed", failed),
		slog.Int("total_written", totalWritten),
	)

	if failed == len(s.cards) && len(s.cards) > 0 {
		return fmt.Errorf("listing scraper: all %d card scrapes failed", failed)
	}
	return nil
}

// RunLoop runs the scraper on a repeating interval until the context is
// cancelled.
func (s *ListingScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := s.Run(ctx); err != nil {
		s.logger.Error("scrape pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("listing scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("scrape pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Targets builds CardTargets from card names with a shared price ceiling.
func Targets(names []string, maxPrice float64) []CardTarget {
	targets := make([]CardTarget, 0, len(names))
	for _, name := range names {
		targets = append(targets, CardTarget{
			Name:     name,
			MaxPrice: decimal.NewFromFloat(maxPrice),
		})
	}
	return targets
}
