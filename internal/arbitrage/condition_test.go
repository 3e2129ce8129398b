package arbitrage

import "testing"

func TestConditionHierarchy_Rank(t *testing.T) {
	h := DefaultConditionHierarchy()

	tests := []struct {
		condition string
		want      int
	}{
		{"Gem Mint", 10},
		{"PSA 10", 10},
		{"Mint", 9},
		{"Near Mint", 8},
		{"nm", 8},
		{"  Excellent  ", 7},
		{"Very Good", 6},
		{"Good", 5},
		{"Lightly Played", 4},
		{"Moderately Played", 3},
		{"Heavily Played", 2},
		{"Damaged", 1},
		{"Unknown", 4},
		{"", 4},
		{"some made-up grade", 4},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			if got := h.Rank(tt.condition); got != tt.want {
				t.Fatalf("Rank(%q) = %d, want %d", tt.condition, got, tt.want)
			}
		})
	}
}

func TestConditionHierarchy_Compatible(t *testing.T) {
	h := DefaultConditionHierarchy()

	tests := []struct {
		name      string
		buy, sell string
		tolerance int
		want      bool
	}{
		{"equal grades", "Near Mint", "Near Mint", 1, true},
		{"buy better than sell", "Mint", "Near Mint", 1, true},
		{"buy one grade below within tolerance", "Excellent", "Near Mint", 1, true},
		{"buy two grades below", "Very Good", "Near Mint", 1, false},
		{"mint vs heavily played sell", "Heavily Played", "Mint", 1, false},
		{"zero tolerance rejects one-below", "Excellent", "Near Mint", 0, false},
		{"wide tolerance accepts two-below", "Very Good", "Near Mint", 2, true},
		{"unknown both sides", "", "Unknown", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Compatible(tt.buy, tt.sell, tt.tolerance); got != tt.want {
				t.Fatalf("Compatible(%q, %q, %d) = %v, want %v", tt.buy, tt.sell, tt.tolerance, got, tt.want)
			}
		})
	}
}
