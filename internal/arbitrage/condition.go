package arbitrage

import "strings"

// defaultConditionRank is assigned to conditions missing from the hierarchy,
// including ungraded and empty values.
const defaultConditionRank = 4

// ConditionHierarchy maps a normalized condition label to a rank on a 1-10
// scale, 10 being the best. Labels cover raw conditions, common abbreviations
// and PSA/BGS grades.
type ConditionHierarchy map[string]int

// DefaultConditionHierarchy returns the reference condition ranking.
func DefaultConditionHierarchy() ConditionHierarchy {
	return ConditionHierarchy{
		"gem mint": 10, "pristine": 10, "black label": 10,
		"psa 10": 10, "bgs 10": 10,
		"mint": 9, "perfect": 9, "psa 9": 9, "bgs 9": 9,
		"near mint": 8, "nm": 8, "nm/mint": 8, "psa 8": 8, "bgs 8": 8,
		"excellent": 7, "ex": 7, "psa 7": 7, "bgs 7": 7,
		"very good": 6, "vg": 6, "psa 6": 6, "bgs 6": 6,
		"good": 5, "gd": 5, "psa 5": 5,
		"lightly played": 4, "lp": 4, "light play": 4, "psa 4": 4,
		"moderately played": 3, "mp": 3, "played": 3, "psa 3": 3,
		"heavily played": 2, "hp": 2, "psa 2": 2,
		"damaged": 1, "dmg": 1, "poor": 1, "psa 1": 1,
		"unknown": 4, "ungraded": 4, "": 4,
	}
}

// Rank returns the rank for a condition label, applying case folding and
// whitespace trimming. Unrecognized labels get the middle-ground default.
func (h ConditionHierarchy) Rank(condition string) int {
	if rank, ok := h[strings.ToLower(strings.TrimSpace(condition))]; ok {
		return rank
	}
	return defaultConditionRank
}

// Compatible reports whether a card bought in buyCondition can plausibly be
// resold against a listing in sellCondition. The buy condition must rank at
// least as high as the sell condition, less the tolerance allowed for grading
// variation.
func (h ConditionHierarchy) Compatible(buyCondition, sellCondition string, tolerance int) bool {
	return h.Rank(buyCondition) >= h.Rank(sellCondition)-tolerance
}
