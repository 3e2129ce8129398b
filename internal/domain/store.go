package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityFilter narrows opportunity list queries.
type OpportunityFilter struct {
	CardName        string
	PlatformPair    string
	MinProfitMargin *decimal.Decimal
	MaxRiskScore    *decimal.Decimal
	Status          OpportunityStatus
	Limit           int
	Offset          int
}

// ListingStore persists scraped marketplace listings.
type ListingStore interface {
	UpsertBatch(ctx context.Context, listings []Listing) (int, error)
	ListActive(ctx context.Context, cardName string, since time.Time) ([]Listing, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]Listing, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// OpportunityStore persists detected arbitrage opportunities.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, opps []Opportunity) (int, error)
	GetByID(ctx context.Context, id string) (Opportunity, error)
	List(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error)
	CountActiveByCard(ctx context.Context, cardName string) (int64, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	ListExpiredBefore(ctx context.Context, before time.Time, limit int) ([]Opportunity, error)
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
	Insights(ctx context.Context, cardName string, since time.Time) (MarketInsights, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
