package arbitrage

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

// riskFloor avoids division blowups when computing composite scores for
// near-zero risk values.
var riskFloor = decimal.RequireFromString("0.1")

// Deduplicate collapses candidates that reference the same buy/sell item
// combination, keeping the one with the higher confidence level. Input order
// is preserved for the survivors.
func Deduplicate(opps []domain.Opportunity) []domain.Opportunity {
	if len(opps) == 0 {
		return opps
	}
	index := make(map[string]int, len(opps))
	out := make([]domain.Opportunity, 0, len(opps))
	for _, opp := range opps {
		key := opp.DedupeKey()
		if at, ok := index[key]; ok {
			if opp.ConfidenceLevel.GreaterThan(out[at].ConfidenceLevel) {
				out[at] = opp
			}
			continue
		}
		index[key] = len(out)
		out = append(out, opp)
	}
	return out
}

// CompositeScore scores an opportunity for ranking: profit margin weighted by
// confidence, discounted by risk.
func CompositeScore(opp domain.Opportunity) decimal.Decimal {
	risk := opp.RiskScore
	if risk.LessThan(riskFloor) {
		risk = riskFloor
	}
	return opp.ProfitMargin.Mul(opp.ConfidenceLevel).Div(risk)
}

// Rank fills in composite scores and sorts opportunities best-first. The sort
// is stable so equal scores keep candidate order.
func Rank(opps []domain.Opportunity) []domain.Opportunity {
	for i := range opps {
		opps[i].CompositeScore = CompositeScore(opps[i])
	}
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].CompositeScore.GreaterThan(opps[j].CompositeScore)
	})
	return opps
}

// SelectTop returns at most n leading opportunities.
func SelectTop(opps []domain.Opportunity, n int) []domain.Opportunity {
	if n <= 0 || len(opps) <= n {
		return opps
	}
	return opps[:n]
}
