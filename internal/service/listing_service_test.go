package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

func TestIngest_NormalizesAndCaches(t *testing.T) {
	store := &fakeListingStore{}
	cache := newFakeListingCache()
	svc := NewListingService(store, cache, 24*time.Hour, slog.Default())
	svc.now = func() time.Time { return svcNow }

	raw := []domain.Listing{
		{
			Platform:     "ebay",
			ItemID:       "a",
			Price:        decimal.RequireFromString("12.00"),
			ShippingCost: decimal.RequireFromString("3.00"),
			// TotalCost deliberately wrong; ingest must recompute it.
			TotalCost: decimal.RequireFromString("99.00"),
			Condition: "Near Mint",
		},
		{
			Platform: "ebay",
			ItemID:   "bad",
			Price:    decimal.Zero, // invalid, dropped
		},
	}

	written, err := svc.Ingest(context.Background(), "Charizard Base Set", raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}

	stored := store.listings[0]
	if !stored.TotalCost.Equal(decimal.RequireFromString("15.00")) {
		t.Errorf("total cost = %s, want recomputed 15.00", stored.TotalCost)
	}
	if stored.CardName != "Charizard Base Set" {
		t.Errorf("card name = %s", stored.CardName)
	}
	if !stored.IsActive {
		t.Error("listing not marked active")
	}
	if !stored.ScrapedAt.Equal(svcNow.UTC()) {
		t.Errorf("scraped_at = %s, want stamped now", stored.ScrapedAt)
	}
	if !stored.ExpiresAt.Equal(svcNow.UTC().Add(24 * time.Hour)) {
		t.Errorf("expires_at = %s, want scraped_at + ttl", stored.ExpiresAt)
	}

	cached, err := cache.GetListings(context.Background(), "Charizard Base Set")
	if err != nil {
		t.Fatalf("cache read: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("cached %d listings, want 1", len(cached))
	}
}

func TestIngest_EmptyBatchIsNoop(t *testing.T) {
	store := &fakeListingStore{}
	svc := NewListingService(store, nil, 24*time.Hour, slog.Default())

	written, err := svc.Ingest(context.Background(), "Charizard Base Set", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if written != 0 {
		t.Fatalf("written = %d, want 0", written)
	}
}

func TestPurgeStale_DeletesOnlyExpired(t *testing.T) {
	store := &fakeListingStore{}
	store.listings = []domain.Listing{
		{Platform: "ebay", ItemID: "old", ExpiresAt: svcNow.Add(-time.Hour)},
		{Platform: "ebay", ItemID: "new", ExpiresAt: svcNow.Add(time.Hour)},
	}
	svc := NewListingService(store, nil, 24*time.Hour, slog.Default())

	deleted, err := svc.PurgeStale(context.Background(), svcNow)
	if err != nil {
		t.Fatalf("PurgeStale: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if len(store.listings) != 1 || store.listings[0].ItemID != "new" {
		t.Fatalf("remaining = %+v", store.listings)
	}
}

func TestOpportunityService_ListDefaultsToActive(t *testing.T) {
	opps := newFakeOpportunityStore()
	opps.opps["a"] = domain.Opportunity{ID: "a", CardName: "X", Status: domain.OpportunityStatusActive}
	opps.opps["b"] = domain.Opportunity{ID: "b", CardName: "X", Status: domain.OpportunityStatusExpired}

	svc := NewOpportunityService(opps, slog.Default())
	out, err := svc.List(context.Background(), domain.OpportunityFilter{CardName: "X"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("out = %+v, want only the ACTIVE row", out)
	}
}

func TestOpportunityService_Insights(t *testing.T) {
	opps := newFakeOpportunityStore()
	opps.opps["a"] = domain.Opportunity{ID: "a", CardName: "X", PlatformPair: "ebay-to-tcgplayer"}
	opps.opps["b"] = domain.Opportunity{ID: "b", CardName: "X", PlatformPair: "ebay-to-tcgplayer"}
	opps.opps["c"] = domain.Opportunity{ID: "c", CardName: "Y", PlatformPair: "comc-to-ebay"}

	svc := NewOpportunityService(opps, slog.Default())
	insights, err := svc.Insights(context.Background(), "X")
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if insights.TotalOpportunities != 2 {
		t.Errorf("total = %d, want 2", insights.TotalOpportunities)
	}
	if insights.TopPlatformPairs["ebay-to-tcgplayer"] != 2 {
		t.Errorf("pairs = %v", insights.TopPlatformPairs)
	}
}
