package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tbone30/card-trader/internal/domain"
)

// fakeListingStore is an in-memory domain.ListingStore.
type fakeListingStore struct {
	mu       sync.Mutex
	listings []domain.Listing
	listErr  error
}

func (f *fakeListingStore) UpsertBatch(_ context.Context, listings []domain.Listing) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings = append(f.listings, listings...)
	return len(listings), nil
}

func (f *fakeListingStore) ListActive(_ context.Context, cardName string, since time.Time) ([]domain.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Listing
	for _, l := range f.listings {
		if l.CardName == cardName && l.IsActive && l.ScrapedAt.After(since) && l.Valid() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeListingStore) ListStale(_ context.Context, before time.Time, _ int) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.listings {
		if l.ExpiresAt.Before(before) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeListingStore) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.listings[:0]
	var deleted int64
	for _, l := range f.listings {
		if l.ExpiresAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	f.listings = kept
	return deleted, nil
}

func (f *fakeListingStore) Count(context.Context) (int64, error) {
	return int64(len(f.listings)), nil
}

// fakeOpportunityStore is an in-memory domain.OpportunityStore.
type fakeOpportunityStore struct {
	mu        sync.Mutex
	opps      map[string]domain.Opportunity
	insertErr error
	// failEvery makes every Nth insert fail, to simulate partial writes.
	failEvery int
}

func newFakeOpportunityStore() *fakeOpportunityStore {
	return &fakeOpportunityStore{opps: map[string]domain.Opportunity{}}
}

func (f *fakeOpportunityStore) InsertBatch(_ context.Context, opps []domain.Opportunity) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	written := 0
	var firstErr error
	for i, o := range opps {
		if f.failEvery > 0 && (i+1)%f.failEvery == 0 {
			if firstErr == nil {
				firstErr = errors.New("simulated write failure")
			}
			continue
		}
		f.opps[o.ID] = o
		written++
	}
	return written, firstErr
}

func (f *fakeOpportunityStore) GetByID(_ context.Context, id string) (domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.opps[id]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOpportunityStore) List(_ context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Opportunity
	for _, o := range f.opps {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.CardName != "" && o.CardName != filter.CardName {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOpportunityStore) CountActiveByCard(_ context.Context, cardName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.opps {
		if o.CardName == cardName && o.Status == domain.OpportunityStatusActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeOpportunityStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, o := range f.opps {
		if o.Status == domain.OpportunityStatusActive && !o.ExpiresAt.After(now) {
			o.Status = domain.OpportunityStatusExpired
			f.opps[id] = o
			n++
		}
	}
	return n, nil
}

func (f *fakeOpportunityStore) ListExpiredBefore(_ context.Context, before time.Time, _ int) ([]domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Opportunity
	for _, o := range f.opps {
		if o.Status == domain.OpportunityStatusExpired && o.ExpiresAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOpportunityStore) DeleteExpiredBefore(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, o := range f.opps {
		if o.Status == domain.OpportunityStatusExpired && o.ExpiresAt.Before(before) {
			delete(f.opps, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeOpportunityStore) Insights(_ context.Context, cardName string, _ time.Time) (domain.MarketInsights, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	insights := domain.MarketInsights{CardName: cardName, TopPlatformPairs: map[string]int{}}
	for _, o := range f.opps {
		if o.CardName != cardName {
			continue
		}
		insights.TotalOpportunities++
		insights.TopPlatformPairs[o.PlatformPair]++
	}
	return insights, nil
}

// fakeSignalBus records published payloads.
type fakeSignalBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeSignalBus() *fakeSignalBus {
	return &fakeSignalBus{published: map[string][][]byte{}}
}

func (f *fakeSignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeSignalBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeSignalBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeSignalBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// fakeAuditStore records audit events.
type fakeAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// fakeListingCache is an in-memory domain.ListingCache.
type fakeListingCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Listing
}

func newFakeListingCache() *fakeListingCache {
	return &fakeListingCache{entries: map[string][]domain.Listing{}}
}

func (f *fakeListingCache) SetListings(_ context.Context, cardName string, listings []domain.Listing, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[cardName] = listings
	return nil
}

func (f *fakeListingCache) GetListings(_ context.Context, cardName string) ([]domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	listings, ok := f.entries[cardName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return listings, nil
}

func (f *fakeListingCache) Invalidate(_ context.Context, cardName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, cardName)
	return nil
}
