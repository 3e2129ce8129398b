package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is a single marketplace offer for one card, captured by a scrape
// cycle. Listings are immutable once written: the next scrape supersedes them
// and the store expires them after the retention window.
type Listing struct {
	Platform     string          `json:"platform"`
	ItemID       string          `json:"item_id"`
	CardName     string          `json:"card_name"`
	Title        string          `json:"title,omitempty"`
	Price        decimal.Decimal `json:"price"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Condition    string          `json:"condition"`
	SellerRating decimal.Decimal `json:"seller_rating"` // 0-100 feedback percentage
	ListingURL   string          `json:"listing_url"`
	Currency     string          `json:"currency,omitempty"`
	ScrapedAt    time.Time       `json:"scraped_at"`
	IsActive     bool            `json:"is_active"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// NormalizeTotalCost recomputes TotalCost from Price + ShippingCost. The total
// is always derived, never trusted from the source payload.
func (l *Listing) NormalizeTotalCost() {
	l.TotalCost = l.Price.Add(l.ShippingCost)
}

// Valid reports whether the listing is usable for detection: positive price
// and positive total cost.
func (l Listing) Valid() bool {
	return l.Price.IsPositive() && l.TotalCost.IsPositive()
}
