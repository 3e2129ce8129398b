package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbone30/card-trader/internal/domain"
)

// ListingCache implements domain.ListingCache. Each card's freshest listings
// are stored as one JSON blob with a TTL, so a detection run that follows a
// scrape can skip the database read.
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

func listingKey(cardName string) string {
	return "listings:" + cardName
}

// SetListings replaces the cached listings for a card.
func (lc *ListingCache) SetListings(ctx context.Context, cardName string, listings []domain.Listing, ttl time.Duration) error {
	data, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("redis: marshal listings for %s: %w", cardName, err)
	}
	if err := lc.rdb.Set(ctx, listingKey(cardName), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set listings for %s: %w", cardName, err)
	}
	return nil
}

// GetListings returns the cached listings for a card, or domain.ErrNotFound
// when the card has no cache entry.
func (lc *ListingCache) GetListings(ctx context.Context, cardName string) ([]domain.Listing, error) {
	data, err := lc.rdb.Get(ctx, listingKey(cardName)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get listings for %s: %w", cardName, err)
	}

	var listings []domain.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("redis: unmarshal listings for %s: %w", cardName, err)
	}
	return listings, nil
}

// Invalidate drops the cache entry for a card.
func (lc *ListingCache) Invalidate(ctx context.Context, cardName string) error {
	if err := lc.rdb.Del(ctx, listingKey(cardName)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate listings for %s: %w", cardName, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
