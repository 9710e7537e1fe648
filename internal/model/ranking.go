package model

import (
	"fmt"
	"sort"
)

// ProductRanking is a product's match against a user's preference weights.
type ProductRanking struct {
	Product Product
	Scores  CategoryScores
	Match   int
}

// Validate ensures the ProductRanking has valid data.
func (r *ProductRanking) Validate() error {
	if r.Product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	if r.Match < 0 || r.Match > 100 {
		return fmt.Errorf("match must be between 0 and 100, got %d", r.Match)
	}
	return nil
}

// ProductRankings is a slice of ProductRanking that supports sorting and utility methods.
type ProductRankings []ProductRanking

// Len implements sort.Interface.
func (r ProductRankings) Len() int {
	return len(r)
}

// Less implements sort.Interface - higher matches come first.
func (r ProductRankings) Less(i, j int) bool {
	if r[i].Match != r[j].Match {
		return r[i].Match > r[j].Match
	}
	// Cheaper first on ties, then by name for a stable order
	if r[i].Product.Price != r[j].Product.Price {
		return r[i].Product.Price < r[j].Product.Price
	}
	return r[i].Product.Name < r[j].Product.Name
}

// Swap implements sort.Interface.
func (r ProductRankings) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
}

// Sort sorts the rankings by match in descending order.
func (r ProductRankings) Sort() {
	sort.Sort(r)
}

// Top returns the best match, or nil if empty.
func (r ProductRankings) Top() *ProductRanking {
	if len(r) == 0 {
		return nil
	}
	r.Sort()
	return &r[0]
}

// TopN returns the N best matches.
func (r ProductRankings) TopN(n int) ProductRankings {
	if n <= 0 {
		return ProductRankings{}
	}

	r.Sort()

	if n > len(r) {
		n = len(r)
	}

	result := make(ProductRankings, n)
	copy(result, r[:n])
	return result
}

// AboveThreshold returns all rankings whose match is at least threshold.
func (r ProductRankings) AboveThreshold(threshold int) ProductRankings {
	r.Sort()

	var result ProductRankings
	for _, ranking := range r {
		if ranking.Match >= threshold {
			result = append(result, ranking)
		}
	}
	return result
}

// Validate ensures all rankings in the slice are valid and unique.
func (r ProductRankings) Validate() error {
	seen := make(map[string]bool)

	for i, ranking := range r {
		if err := ranking.Validate(); err != nil {
			return fmt.Errorf("invalid ranking at index %d: %w", i, err)
		}

		if seen[ranking.Product.ID] {
			return fmt.Errorf("duplicate product %q in rankings", ranking.Product.ID)
		}
		seen[ranking.Product.ID] = true
	}

	return nil
}
