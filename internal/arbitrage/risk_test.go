package arbitrage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func pinnedRiskModel() *RiskModel {
	m := NewRiskModel()
	m.Now = func() time.Time { return testNow }
	return m
}

// aged returns a scrape timestamp old enough to avoid the freshness penalty.
func aged() time.Time { return testNow.Add(-2 * time.Hour) }

func listing(platform, itemID, price, shipping, condition string, rating int64) domain.Listing {
	l := domain.Listing{
		Platform:     platform,
		ItemID:       itemID,
		CardName:     "Charizard Base Set",
		Price:        decimal.RequireFromString(price),
		ShippingCost: decimal.RequireFromString(shipping),
		Condition:    condition,
		SellerRating: decimal.NewFromInt(rating),
		ScrapedAt:    aged(),
		IsActive:     true,
	}
	l.NormalizeTotalCost()
	return l
}

func TestRiskModel_BaseCase(t *testing.T) {
	m := pinnedRiskModel()
	// Modest margin, trusted platforms, good rating, aged listing.
	buy := listing("ebay", "b1", "50.00", "0", "Near Mint", 100)
	sell := listing("tcgplayer", "s1", "70.00", "0", "Near Mint", 100)

	got := m.Score(buy, sell)
	if !got.Equal(decimal.RequireFromString("1.0")) {
		t.Fatalf("base risk = %s, want 1.0", got)
	}
}

func TestRiskModel_SellerRatingPenaltiesStack(t *testing.T) {
	m := pinnedRiskModel()
	sell := listing("tcgplayer", "s1", "70.00", "0", "Near Mint", 100)

	tests := []struct {
		name   string
		rating int64
		want   string
	}{
		{"rating 96 clean", 96, "1.0"},
		{"rating 94 one penalty", 94, "1.3"},
		{"rating 89 two penalties", 89, "1.8"},
		{"rating 80 three penalties", 80, "2.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy := listing("ebay", "b1", "50.00", "0", "Near Mint", tt.rating)
			got := m.Score(buy, sell)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("risk = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRiskModel_ZeroRatingTreatedAsUnrated(t *testing.T) {
	m := pinnedRiskModel()
	buy := listing("ebay", "b1", "50.00", "0", "Near Mint", 0)
	sell := listing("tcgplayer", "s1", "70.00", "0", "Near Mint", 100)

	got := m.Score(buy, sell)
	if !got.Equal(decimal.RequireFromString("1.0")) {
		t.Fatalf("risk = %s, want 1.0 for unrated seller", got)
	}
}

func TestRiskModel_PlatformTiers(t *testing.T) {
	m := pinnedRiskModel()

	tests := []struct {
		name         string
		buyPlatform  string
		sellPlatform string
		want         string
	}{
		{"both trusted", "ebay", "tcgplayer", "1.0"},
		{"high risk buy side", "mercari", "ebay", "1.4"},
		{"high risk sell side", "ebay", "facebook", "1.4"},
		{"medium risk", "comc", "ebay", "1.2"},
		{"high beats medium", "comc", "offerup", "1.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy := listing(tt.buyPlatform, "b1", "50.00", "0", "Near Mint", 100)
			sell := listing(tt.sellPlatform, "s1", "70.00", "0", "Near Mint", 100)
			got := m.Score(buy, sell)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("risk = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRiskModel_GrossMarginPenalty(t *testing.T) {
	m := pinnedRiskModel()

	tests := []struct {
		name      string
		buyTotal  string
		sellPrice string
		want      string
	}{
		{"margin under 50%", "50.00", "70.00", "1.0"},
		{"margin over 50%", "40.00", "70.00", "1.4"},
		{"margin over 100%", "30.00", "70.00", "1.8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy := listing("ebay", "b1", tt.buyTotal, "0", "Near Mint", 100)
			sell := listing("tcgplayer", "s1", tt.sellPrice, "0", "Near Mint", 100)
			got := m.Score(buy, sell)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("risk = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRiskModel_FreshnessPenalties(t *testing.T) {
	m := pinnedRiskModel()
	sell := listing("tcgplayer", "s1", "70.00", "0", "Near Mint", 100)

	buy := listing("ebay", "b1", "50.00", "0", "Near Mint", 100)
	buy.ScrapedAt = testNow.Add(-30 * time.Minute)
	if got := m.Score(buy, sell); !got.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("fresh listing risk = %s, want 1.2", got)
	}

	buy.ScrapedAt = time.Time{}
	if got := m.Score(buy, sell); !got.Equal(decimal.RequireFromString("1.1")) {
		t.Fatalf("unknown scrape time risk = %s, want 1.1", got)
	}
}

func TestRiskModel_IncompatibleConditionPenalty(t *testing.T) {
	m := pinnedRiskModel()
	buy := listing("ebay", "b1", "50.00", "0", "Heavily Played", 100)
	sell := listing("tcgplayer", "s1", "70.00", "0", "Mint", 100)

	got := m.Score(buy, sell)
	if !got.Equal(decimal.RequireFromString("2.0")) {
		t.Fatalf("risk = %s, want 2.0", got)
	}
}

func TestRiskModel_WorstCaseStaysWithinCap(t *testing.T) {
	m := pinnedRiskModel()
	// Worst case on every axis: 1.0 + 1.5 + 0.4 + 0.8 + 0.2 + 1.0.
	buy := listing("mercari", "b1", "10.00", "0", "Damaged", 50)
	buy.ScrapedAt = testNow.Add(-10 * time.Minute)
	sell := listing("facebook", "s1", "100.00", "0", "Gem Mint", 100)

	got := m.Score(buy, sell)
	if !got.Equal(decimal.RequireFromString("4.9")) {
		t.Fatalf("risk = %s, want 4.9", got)
	}
	if got.GreaterThan(decimal.RequireFromString("5.0")) {
		t.Fatalf("risk %s exceeds cap", got)
	}
}

func TestConfidence_BoundsAndMonotonicity(t *testing.T) {
	prev := decimal.RequireFromString("101")
	for risk := decimal.RequireFromString("1.0"); risk.LessThanOrEqual(decimal.RequireFromString("5.0")); risk = risk.Add(decimal.RequireFromString("0.1")) {
		conf := Confidence(risk)
		if conf.LessThan(decimal.NewFromInt(10)) || conf.GreaterThan(decimal.NewFromInt(100)) {
			t.Fatalf("confidence out of bounds: risk=%s conf=%s", risk, conf)
		}
		if conf.GreaterThan(prev) {
			t.Fatalf("confidence not non-increasing: risk=%s conf=%s prev=%s", risk, conf, prev)
		}
		prev = conf
	}

	tests := []struct {
		risk string
		want string
	}{
		{"1.0", "100"},
		{"1.8", "84"},
		{"2.0", "80"},
		{"3.0", "60"},
		{"5.0", "20"},
		{"5.5", "10"}, // below floor clamps
	}
	for _, tt := range tests {
		got := Confidence(decimal.RequireFromString(tt.risk))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("Confidence(%s) = %s, want %s", tt.risk, got, tt.want)
		}
	}
}
