package arbitrage

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

var (
	riskBase    = decimal.RequireFromString("1.0")
	riskCap     = decimal.RequireFromString("5.0")
	confFloor   = decimal.RequireFromString("10")
	confCeiling = decimal.RequireFromString("100")
	confSlope   = decimal.RequireFromString("20")
)

// RiskModel scores buy/sell listing pairs on a 1.0-5.0 scale. All inputs are
// injected so tests can pin the clock and platform classifications.
type RiskModel struct {
	Conditions          ConditionHierarchy
	ConditionTolerance  int
	HighRiskPlatforms   map[string]struct{}
	MediumRiskPlatforms map[string]struct{}
	Now                 func() time.Time
}

// NewRiskModel returns a risk model with the reference platform
// classifications and condition hierarchy.
func NewRiskModel() *RiskModel {
	return &RiskModel{
		Conditions:         DefaultConditionHierarchy(),
		ConditionTolerance: 1,
		HighRiskPlatforms: map[string]struct{}{
			"mercari": {}, "facebook": {}, "craigslist": {}, "offerup": {},
		},
		MediumRiskPlatforms: map[string]struct{}{
			"comc": {}, "cardmarket": {},
		},
		Now: time.Now,
	}
}

// Score computes the cumulative risk score for buying buy and reselling
// against sell. Penalties stack; the result is capped at 5.0.
func (m *RiskModel) Score(buy, sell domain.Listing) decimal.Decimal {
	score := riskBase

	// Seller reputation. A zero rating means the platform reported none, so
	// treat it as unrated rather than worst-case.
	rating := buy.SellerRating
	if rating.IsZero() {
		rating = decimal.NewFromInt(100)
	}
	if rating.LessThan(decimal.NewFromInt(95)) {
		score = score.Add(decimal.RequireFromString("0.3"))
	}
	if rating.LessThan(decimal.NewFromInt(90)) {
		score = score.Add(decimal.RequireFromString("0.5"))
	}
	if rating.LessThan(decimal.NewFromInt(85)) {
		score = score.Add(decimal.RequireFromString("0.7"))
	}

	// Platform trust tiers apply to either leg.
	buyPlatform := strings.ToLower(buy.Platform)
	sellPlatform := strings.ToLower(sell.Platform)
	_, buyHigh := m.HighRiskPlatforms[buyPlatform]
	_, sellHigh := m.HighRiskPlatforms[sellPlatform]
	_, buyMed := m.MediumRiskPlatforms[buyPlatform]
	_, sellMed := m.MediumRiskPlatforms[sellPlatform]
	switch {
	case buyHigh || sellHigh:
		score = score.Add(decimal.RequireFromString("0.4"))
	case buyMed || sellMed:
		score = score.Add(decimal.RequireFromString("0.2"))
	}

	// Too-good-to-be-true gross margin.
	if buy.TotalCost.IsPositive() {
		margin := sell.Price.Sub(buy.TotalCost).Div(buy.TotalCost)
		switch {
		case margin.GreaterThan(decimal.NewFromInt(1)):
			score = score.Add(decimal.RequireFromString("0.8"))
		case margin.GreaterThan(decimal.RequireFromString("0.5")):
			score = score.Add(decimal.RequireFromString("0.4"))
		}
	}

	// Very fresh buy listings may be pricing errors; an unknown scrape time
	// adds a smaller penalty.
	if buy.ScrapedAt.IsZero() {
		score = score.Add(decimal.RequireFromString("0.1"))
	} else if m.Now().Sub(buy.ScrapedAt) < time.Hour {
		score = score.Add(decimal.RequireFromString("0.2"))
	}

	if !m.Conditions.Compatible(buy.Condition, sell.Condition, m.ConditionTolerance) {
		score = score.Add(decimal.RequireFromString("1.0"))
	}

	if score.GreaterThan(riskCap) {
		return riskCap
	}
	return score
}

// Confidence converts a risk score into a 10-100 confidence level. Risk 1.0
// maps to 100, each additional point of risk costs 20 points of confidence.
func Confidence(riskScore decimal.Decimal) decimal.Decimal {
	conf := confCeiling.Sub(riskScore.Sub(riskBase).Mul(confSlope))
	if conf.GreaterThan(confCeiling) {
		return confCeiling
	}
	if conf.LessThan(confFloor) {
		return confFloor
	}
	return conf
}
