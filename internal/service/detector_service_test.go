package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/arbitrage"
	"github.com/tbone30/card-trader/internal/domain"
)

var svcNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testListing(platform, itemID, price string) domain.Listing {
	l := domain.Listing{
		Platform:     platform,
		ItemID:       itemID,
		CardName:     "Charizard Base Set",
		Price:        decimal.RequireFromString(price),
		ShippingCost: decimal.Zero,
		Condition:    "Near Mint",
		SellerRating: decimal.NewFromInt(100),
		ScrapedAt:    svcNow.Add(-2 * time.Hour),
		IsActive:     true,
		ExpiresAt:    svcNow.Add(22 * time.Hour),
	}
	l.NormalizeTotalCost()
	return l
}

type detectorFixture struct {
	svc      *DetectorService
	listings *fakeListingStore
	opps     *fakeOpportunityStore
	cache    *fakeListingCache
	bus      *fakeSignalBus
	audit    *fakeAuditStore
}

func newDetectorFixture(t *testing.T) *detectorFixture {
	t.Helper()
	listings := &fakeListingStore{}
	opps := newFakeOpportunityStore()
	cache := newFakeListingCache()
	bus := newFakeSignalBus()
	audit := &fakeAuditStore{}

	risk := arbitrage.NewRiskModel()
	risk.Now = func() time.Time { return svcNow }
	engine := arbitrage.NewEngine(arbitrage.DefaultEngineConfig(), arbitrage.DefaultFeeSchedule(), risk, slog.Default()).
		WithClock(func() time.Time { return svcNow })

	svc := NewDetectorService(DetectorServiceConfig{
		Listings:      listings,
		Opportunities: opps,
		Cache:         cache,
		Engine:        engine,
		Bus:           bus,
		Audit:         audit,
		Logger:        slog.Default(),
	}).WithClock(func() time.Time { return svcNow })

	return &detectorFixture{svc: svc, listings: listings, opps: opps, cache: cache, bus: bus, audit: audit}
}

func TestDetect_EmptyCardNameIsValidationError(t *testing.T) {
	f := newDetectorFixture(t)

	_, err := f.svc.Detect(context.Background(), "   ")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDetect_EmptyPoolIsNormalResult(t *testing.T) {
	f := newDetectorFixture(t)

	result, err := f.svc.Detect(context.Background(), "Charizard Base Set")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(result.Opportunities) != 0 || result.FilteredCount != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestDetect_FindsStoresAndPublishes(t *testing.T) {
	f := newDetectorFixture(t)
	f.listings.listings = []domain.Listing{
		testListing("ebay", "b1", "10.00"),
		testListing("tcgplayer", "s1", "30.00"),
	}

	result, err := f.svc.Detect(context.Background(), "Charizard Base Set")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(result.Opportunities) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(result.Opportunities))
	}
	if result.FilteredCount != 1 {
		t.Errorf("filtered count = %d, want 1", result.FilteredCount)
	}
	if result.StoredCount != 1 {
		t.Errorf("stored count = %d, want 1", result.StoredCount)
	}

	events := f.bus.published["opportunities"]
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	var event OpportunityEvent
	if err := json.Unmarshal(events[0], &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Event != "arb_detected" || event.CardName != "Charizard Base Set" {
		t.Errorf("event = %+v", event)
	}

	if len(f.audit.events) != 1 || f.audit.events[0] != "detection_run" {
		t.Errorf("audit events = %v", f.audit.events)
	}
}

func TestDetect_PersistFailureStillReturnsResults(t *testing.T) {
	f := newDetectorFixture(t)
	f.listings.listings = []domain.Listing{
		testListing("ebay", "b1", "10.00"),
		testListing("tcgplayer", "s1", "30.00"),
	}
	f.opps.insertErr = errors.New("store unavailable")

	result, err := f.svc.Detect(context.Background(), "Charizard Base Set")
	if err != nil {
		t.Fatalf("Detect should not fail on persist error: %v", err)
	}
	if len(result.Opportunities) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(result.Opportunities))
	}
	if result.StoredCount != 0 {
		t.Errorf("stored count = %d, want 0", result.StoredCount)
	}
}

func TestDetect_TruncatesToMaxPerCard(t *testing.T) {
	f := newDetectorFixture(t)
	// 15 distinct profitable buy listings against one sell listing.
	for i := 0; i < 15; i++ {
		f.listings.listings = append(f.listings.listings, testListing("ebay", fmt.Sprintf("b%d", i), "10.00"))
	}
	f.listings.listings = append(f.listings.listings, testListing("tcgplayer", "s1", "30.00"))

	result, err := f.svc.Detect(context.Background(), "Charizard Base Set")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.FilteredCount != 15 {
		t.Errorf("filtered count = %d, want 15", result.FilteredCount)
	}
	if len(result.Opportunities) != 10 {
		t.Errorf("got %d opportunities, want 10 after truncation", len(result.Opportunities))
	}
}

func TestDetect_PrefersCacheOverStore(t *testing.T) {
	f := newDetectorFixture(t)
	// Store has nothing; cache carries the listings.
	_ = f.cache.SetListings(context.Background(), "Charizard Base Set", []domain.Listing{
		testListing("ebay", "b1", "10.00"),
		testListing("tcgplayer", "s1", "30.00"),
	}, time.Hour)

	result, err := f.svc.Detect(context.Background(), "Charizard Base Set")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(result.Opportunities) != 1 {
		t.Fatalf("got %d opportunities from cache, want 1", len(result.Opportunities))
	}
}

func TestDetect_StoreErrorPropagates(t *testing.T) {
	f := newDetectorFixture(t)
	f.listings.listErr = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)

	_, err := f.svc.Detect(context.Background(), "Charizard Base Set")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}
