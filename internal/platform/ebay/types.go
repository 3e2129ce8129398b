package ebay

import (
	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

// Money is the eBay Browse API currency amount shape.
type Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// ItemSummary is one result from the Browse API item_summary/search endpoint.
// Only the fields the scraper consumes are mapped.
type ItemSummary struct {
	ItemID          string   `json:"itemId"`
	Title           string   `json:"title"`
	Price           Money    `json:"price"`
	Condition       string   `json:"condition"`
	ItemWebURL      string   `json:"itemWebUrl"`
	BuyingOptions   []string `json:"buyingOptions"`
	Seller          Seller   `json:"seller"`
	ShippingOptions []struct {
		ShippingCost     *Money `json:"shippingCost"`
		ShippingCostType string `json:"shippingCostType"`
	} `json:"shippingOptions"`
}

// Seller carries the subset of eBay seller data used for risk scoring.
type Seller struct {
	Username           string `json:"username"`
	FeedbackPercentage string `json:"feedbackPercentage"`
	FeedbackScore      int64  `json:"feedbackScore"`
}

// searchResponse is the Browse API search envelope.
type searchResponse struct {
	Total         int           `json:"total"`
	ItemSummaries []ItemSummary `json:"itemSummaries"`
	Warnings      []apiError    `json:"warnings"`
	Errors        []apiError    `json:"errors"`
}

type apiError struct {
	ErrorID   int    `json:"errorId"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	LongMsg   string `json:"longMessage"`
	Parameter string `json:"parameter"`
}

// ToListing converts a Browse API item into a domain Listing. The card name,
// scrape timestamp, and expiry are stamped later by the ingest path; the total
// cost is always recomputed from price plus shipping.
func (s ItemSummary) ToListing() (domain.Listing, bool) {
	if s.ItemID == "" || s.Title == "" {
		return domain.Listing{}, false
	}

	price, err := decimal.NewFromString(s.Price.Value)
	if err != nil || !price.IsPositive() {
		return domain.Listing{}, false
	}

	shipping := decimal.Zero
	if len(s.ShippingOptions) > 0 && s.ShippingOptions[0].ShippingCost != nil {
		if v, err := decimal.NewFromString(s.ShippingOptions[0].ShippingCost.Value); err == nil && v.IsPositive() {
			shipping = v
		}
	}

	rating := decimal.Zero
	if s.Seller.FeedbackPercentage != "" {
		if v, err := decimal.NewFromString(s.Seller.FeedbackPercentage); err == nil {
			rating = v
		}
	}

	condition := s.Condition
	if condition == "" {
		condition = "Unknown"
	}

	currency := s.Price.Currency
	if currency == "" {
		currency = "USD"
	}

	l := domain.Listing{
		Platform:     "ebay",
		ItemID:       s.ItemID,
		Title:        s.Title,
		Price:        price,
		ShippingCost: shipping,
		Condition:    condition,
		SellerRating: rating,
		ListingURL:   s.ItemWebURL,
		Currency:     currency,
	}
	l.NormalizeTotalCost()
	return l, true
}
