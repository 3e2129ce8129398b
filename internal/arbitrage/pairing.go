package arbitrage

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

// EngineConfig holds the pairing thresholds. Zero values are replaced with
// the reference defaults by NewEngine.
type EngineConfig struct {
	MinProfitMargin      decimal.Decimal // e.g. 0.15 = 15%
	MinProfitAmount      decimal.Decimal // dollars
	MaxRiskScore         decimal.Decimal
	MaxPriceRatio        decimal.Decimal // buy total must be <= sell price * ratio
	MaxCandidatesPerSide int
	OpportunityTTL       time.Duration
}

// DefaultEngineConfig returns the reference pairing thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinProfitMargin:      decimal.RequireFromString("0.15"),
		MinProfitAmount:      decimal.RequireFromString("5.00"),
		MaxRiskScore:         decimal.RequireFromString("2.0"),
		MaxPriceRatio:        decimal.RequireFromString("0.8"),
		MaxCandidatesPerSide: 50,
		OpportunityTTL:       24 * time.Hour,
	}
}

// PairingStats reports how much work a detection pass did.
type PairingStats struct {
	Platforms      int
	PairsEvaluated int
	Candidates     int
}

// Engine enumerates cross-platform buy/sell pairs and produces opportunity
// candidates. It is stateless between calls and safe for concurrent use.
type Engine struct {
	cfg    EngineConfig
	fees   FeeSchedule
	risk   *RiskModel
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates a pairing engine. Nil fees or risk model select the
// reference defaults.
func NewEngine(cfg EngineConfig, fees FeeSchedule, risk *RiskModel, logger *slog.Logger) *Engine {
	def := DefaultEngineConfig()
	if cfg.MinProfitMargin.IsZero() {
		cfg.MinProfitMargin = def.MinProfitMargin
	}
	if cfg.MinProfitAmount.IsZero() {
		cfg.MinProfitAmount = def.MinProfitAmount
	}
	if cfg.MaxRiskScore.IsZero() {
		cfg.MaxRiskScore = def.MaxRiskScore
	}
	if cfg.MaxPriceRatio.IsZero() {
		cfg.MaxPriceRatio = def.MaxPriceRatio
	}
	if cfg.MaxCandidatesPerSide <= 0 {
		cfg.MaxCandidatesPerSide = def.MaxCandidatesPerSide
	}
	if cfg.OpportunityTTL <= 0 {
		cfg.OpportunityTTL = def.OpportunityTTL
	}
	if fees == nil {
		fees = DefaultFeeSchedule()
	}
	if risk == nil {
		risk = NewRiskModel()
	}
	return &Engine{
		cfg:    cfg,
		fees:   fees,
		risk:   risk,
		now:    time.Now,
		logger: logger.With(slog.String("component", "pairing_engine")),
	}
}

// WithClock overrides the engine clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.risk.Now = now
	return e
}

// GroupByPlatform buckets listings by platform and sorts each bucket by total
// cost ascending, cheapest buys first. The sort is stable so equal-cost
// listings keep their scrape order.
func GroupByPlatform(listings []domain.Listing) map[string][]domain.Listing {
	groups := make(map[string][]domain.Listing)
	for _, l := range listings {
		platform := l.Platform
		if platform == "" {
			platform = "unknown"
		}
		groups[platform] = append(groups[platform], l)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].TotalCost.LessThan(group[j].TotalCost)
		})
	}
	return groups
}

// FindOpportunities enumerates every ordered platform pair in both directions
// and returns all candidates that clear the profit, price-ratio, condition,
// margin and risk gates. Candidates may still contain duplicates; callers run
// the result through Deduplicate and Rank.
func (e *Engine) FindOpportunities(listings []domain.Listing, cardName string) ([]domain.Opportunity, PairingStats) {
	groups := GroupByPlatform(listings)

	platforms := make([]string, 0, len(groups))
	for p := range groups {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	stats := PairingStats{Platforms: len(platforms)}
	var candidates []domain.Opportunity

	for i := 0; i < len(platforms); i++ {
		for j := i + 1; j < len(platforms); j++ {
			a, b := platforms[i], platforms[j]
			candidates = append(candidates, e.analyzePair(groups[a], groups[b], cardName, &stats)...)
			candidates = append(candidates, e.analyzePair(groups[b], groups[a], cardName, &stats)...)
		}
	}

	stats.Candidates = len(candidates)
	e.logger.Debug("pairing complete",
		slog.String("card_name", cardName),
		slog.Int("platforms", stats.Platforms),
		slog.Int("pairs_evaluated", stats.PairsEvaluated),
		slog.Int("candidates", stats.Candidates),
	)
	return candidates, stats
}

// analyzePair scans the cheapest buy candidates against the sell candidates
// for one directed platform pair. Both sides are truncated to bound the work
// per pair.
func (e *Engine) analyzePair(buys, sells []domain.Listing, cardName string, stats *PairingStats) []domain.Opportunity {
	if len(buys) > e.cfg.MaxCandidatesPerSide {
		buys = buys[:e.cfg.MaxCandidatesPerSide]
	}
	if len(sells) > e.cfg.MaxCandidatesPerSide {
		sells = sells[:e.cfg.MaxCandidatesPerSide]
	}

	var out []domain.Opportunity
	for _, buy := range buys {
		for _, sell := range sells {
			stats.PairsEvaluated++

			if buy.ItemID == sell.ItemID && buy.Platform == sell.Platform {
				continue
			}
			if !buy.TotalCost.IsPositive() || !sell.Price.IsPositive() {
				continue
			}

			// Cheap profit estimate before the full computation.
			estimated := sell.Price.Sub(buy.TotalCost).Sub(e.fees.Fee(sell.Platform, sell.Price))
			if estimated.LessThan(e.cfg.MinProfitAmount) {
				continue
			}
			if buy.TotalCost.GreaterThan(sell.Price.Mul(e.cfg.MaxPriceRatio)) {
				continue
			}
			if !e.risk.Conditions.Compatible(buy.Condition, sell.Condition, e.risk.ConditionTolerance) {
				continue
			}

			if opp, ok := e.buildOpportunity(buy, sell, cardName); ok {
				out = append(out, opp)
			}
		}
	}
	return out
}

// buildOpportunity computes the full economics for one buy/sell pair and
// applies the margin, amount and risk gates.
func (e *Engine) buildOpportunity(buy, sell domain.Listing, cardName string) (domain.Opportunity, bool) {
	fee := e.fees.Fee(sell.Platform, sell.Price)
	netSell := sell.Price.Sub(fee)
	profit := netSell.Sub(buy.TotalCost)

	var margin decimal.Decimal
	if buy.TotalCost.IsPositive() {
		margin = profit.Div(buy.TotalCost)
	}

	if margin.LessThan(e.cfg.MinProfitMargin) || profit.LessThan(e.cfg.MinProfitAmount) {
		return domain.Opportunity{}, false
	}

	risk := e.risk.Score(buy, sell)
	if risk.GreaterThan(e.cfg.MaxRiskScore) {
		return domain.Opportunity{}, false
	}

	now := e.now().UTC()
	return domain.Opportunity{
		ID:               uuid.NewString(),
		CardName:         cardName,
		BuyPlatform:      buy.Platform,
		SellPlatform:     sell.Platform,
		PlatformPair:     PlatformPair(buy.Platform, sell.Platform),
		BuyPrice:         buy.Price,
		BuyShipping:      buy.ShippingCost,
		BuyTotal:         buy.TotalCost,
		SellPrice:        sell.Price,
		PlatformFee:      fee,
		NetSellAmount:    netSell,
		ProfitAmount:     profit,
		ProfitMargin:     margin,
		RiskScore:        risk,
		ConfidenceLevel:  Confidence(risk),
		BuyItemID:        buy.ItemID,
		SellItemID:       sell.ItemID,
		BuyURL:           buy.ListingURL,
		SellURL:          sell.ListingURL,
		BuyCondition:     buy.Condition,
		SellCondition:    sell.Condition,
		BuySellerRating:  buy.SellerRating,
		SellSellerRating: sell.SellerRating,
		Status:           domain.OpportunityStatusActive,
		CreatedAt:        now,
		ExpiresAt:        now.Add(e.cfg.OpportunityTTL),
	}, true
}

// PlatformPair formats the directed "buy-to-sell" pair identifier.
func PlatformPair(buyPlatform, sellPlatform string) string {
	return fmt.Sprintf("%s-to-%s", strings.ToLower(buyPlatform), strings.ToLower(sellPlatform))
}
