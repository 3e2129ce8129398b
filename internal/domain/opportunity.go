package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityStatus represents the lifecycle state of a persisted opportunity.
type OpportunityStatus string

const (
	OpportunityStatusActive  OpportunityStatus = "ACTIVE"
	OpportunityStatusExpired OpportunityStatus = "EXPIRED"
)

// Opportunity is a proposed buy-on-platform-A / sell-on-platform-B trade for
// one card. Records are computed fresh per detection run and never mutated
// afterwards, except for the background sweep that flips Status to EXPIRED
// once ExpiresAt has passed.
type Opportunity struct {
	ID               string            `json:"id"`
	CardName         string            `json:"card_name"`
	BuyPlatform      string            `json:"buy_platform"`
	SellPlatform     string            `json:"sell_platform"`
	PlatformPair     string            `json:"platform_pair"` // "buy-to-sell"
	BuyPrice         decimal.Decimal   `json:"buy_price"`
	BuyShipping      decimal.Decimal   `json:"buy_shipping"`
	BuyTotal         decimal.Decimal   `json:"buy_total"`
	SellPrice        decimal.Decimal   `json:"sell_price"`
	PlatformFee      decimal.Decimal   `json:"platform_fee"`
	NetSellAmount    decimal.Decimal   `json:"net_sell_amount"`
	ProfitAmount     decimal.Decimal   `json:"profit_amount"`
	ProfitMargin     decimal.Decimal   `json:"profit_margin"`
	RiskScore        decimal.Decimal   `json:"risk_score"`       // 1.0-5.0
	ConfidenceLevel  decimal.Decimal   `json:"confidence_level"` // 10-100
	CompositeScore   decimal.Decimal   `json:"composite_score"`
	BuyItemID        string            `json:"buy_item_id"`
	SellItemID       string            `json:"sell_item_id"`
	BuyURL           string            `json:"buy_url"`
	SellURL          string            `json:"sell_url,omitempty"`
	BuyCondition     string            `json:"buy_condition"`
	SellCondition    string            `json:"sell_condition"`
	BuySellerRating  decimal.Decimal   `json:"buy_seller_rating"`
	SellSellerRating decimal.Decimal   `json:"sell_seller_rating"`
	Status           OpportunityStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// DedupeKey identifies a unique buy/sell item combination. Two opportunities
// with the same key are duplicates regardless of which platform-pair
// direction produced them.
func (o Opportunity) DedupeKey() string {
	return o.BuyItemID + "#" + o.SellItemID
}

// MarketInsights summarizes recent opportunities for one card.
type MarketInsights struct {
	CardName           string          `json:"card_name"`
	TotalOpportunities int             `json:"total_opportunities"`
	AvgProfitMargin    decimal.Decimal `json:"avg_profit_margin"`
	MaxProfitMargin    decimal.Decimal `json:"max_profit_margin"`
	AvgProfitAmount    decimal.Decimal `json:"avg_profit_amount"`
	MaxProfitAmount    decimal.Decimal `json:"max_profit_amount"`
	AvgRiskScore       decimal.Decimal `json:"avg_risk_score"`
	TopPlatformPairs   map[string]int  `json:"top_platform_pairs"`
	AnalyzedAt         time.Time       `json:"analyzed_at"`
}
