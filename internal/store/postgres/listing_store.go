package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tbone30/card-trader/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingCols = `platform, item_id, card_name, title, price, shipping_cost,
	total_cost, condition, seller_rating, listing_url, currency,
	scraped_at, is_active, expires_at`

const upsertListingQuery = `
	INSERT INTO listings (
		platform, item_id, card_name, title, price, shipping_cost,
		total_cost, condition, seller_rating, listing_url, currency,
		scraped_at, is_active, expires_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14
	)
	ON CONFLICT (platform, item_id) DO UPDATE SET
		card_name     = EXCLUDED.card_name,
		title         = EXCLUDED.title,
		price         = EXCLUDED.price,
		shipping_cost = EXCLUDED.shipping_cost,
		total_cost    = EXCLUDED.total_cost,
		condition     = EXCLUDED.condition,
		seller_rating = EXCLUDED.seller_rating,
		listing_url   = EXCLUDED.listing_url,
		currency      = EXCLUDED.currency,
		scraped_at    = EXCLUDED.scraped_at,
		is_active     = EXCLUDED.is_active,
		expires_at    = EXCLUDED.expires_at`

// UpsertBatch inserts or refreshes listings in a single batch and returns how
// many rows were written. Individual failures are tolerated so one bad row
// does not discard the rest of the scrape.
func (s *ListingStore) UpsertBatch(ctx context.Context, listings []domain.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(upsertListingQuery,
			l.Platform, l.ItemID, l.CardName, l.Title, l.Price, l.ShippingCost,
			l.TotalCost, l.Condition, l.SellerRating, l.ListingURL, l.Currency,
			l.ScrapedAt, l.IsActive, l.ExpiresAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	var firstErr error
	for range listings {
		if _, err := br.Exec(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	if firstErr != nil && written == 0 {
		return 0, fmt.Errorf("postgres: upsert listing batch: %w", firstErr)
	}
	return written, nil
}

// ListActive returns active listings for a card scraped after the cutoff,
// cheapest first. Listings with nonpositive prices are excluded at the query
// level.
func (s *ListingStore) ListActive(ctx context.Context, cardName string, since time.Time) ([]domain.Listing, error) {
	const query = `
		SELECT ` + listingCols + `
		FROM listings
		WHERE card_name = $1
		  AND is_active = TRUE
		  AND scraped_at > $2
		  AND price > 0
		  AND total_cost > 0
		ORDER BY total_cost ASC
		LIMIT 1000`

	rows, err := s.pool.Query(ctx, query, cardName, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings for %s: %w", cardName, err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// ListStale returns listings whose expiry passed before the cutoff, for
// archiving.
func (s *ListingStore) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Listing, error) {
	const query = `
		SELECT ` + listingCols + `
		FROM listings
		WHERE expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// DeleteStale removes listings whose expiry passed before the cutoff and
// returns the number deleted.
func (s *ListingStore) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete stale listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of listings in the database.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM listings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return count, nil
}

func scanListings(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(
			&l.Platform, &l.ItemID, &l.CardName, &l.Title, &l.Price, &l.ShippingCost,
			&l.TotalCost, &l.Condition, &l.SellerRating, &l.ListingURL, &l.Currency,
			&l.ScrapedAt, &l.IsActive, &l.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: listing rows: %w", err)
	}
	return listings, nil
}
