package arbitrage

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FeeSchedule maps a lowercase platform name to its selling fee rate. The
// "default" entry applies to any platform without an explicit rate.
type FeeSchedule map[string]decimal.Decimal

// DefaultFeeSchedule returns the reference fee rates per platform.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		"ebay":       decimal.RequireFromString("0.125"),
		"tcgplayer":  decimal.RequireFromString("0.11"),
		"comc":       decimal.RequireFromString("0.20"),
		"mercari":    decimal.RequireFromString("0.10"),
		"facebook":   decimal.RequireFromString("0.05"),
		"cardmarket": decimal.RequireFromString("0.08"),
		"default":    decimal.RequireFromString("0.10"),
	}
}

// Rate returns the fee rate for a platform, falling back to the default rate
// for unknown platforms. Platform matching is case-insensitive.
func (s FeeSchedule) Rate(platform string) decimal.Decimal {
	if rate, ok := s[strings.ToLower(platform)]; ok {
		return rate
	}
	return s["default"]
}

// Fee computes the selling fee for the given amount on the given platform,
// rounded half-up to cents.
func (s FeeSchedule) Fee(platform string, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.Rate(platform)).Round(2)
}
