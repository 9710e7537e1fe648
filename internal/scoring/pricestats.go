package scoring

import (
	"math"
	"sort"

	"github.com/Veraticus/shopcompare/internal/model"
)

// ComputePriceStats summarizes the prices of a comparison set.
// Products without a positive price are ignored; when none remain the
// zero PriceStats is returned.
func ComputePriceStats(products []model.Product) model.PriceStats {
	prices := make([]float64, 0, len(products))
	for _, p := range products {
		prices = append(prices, p.Price)
	}
	return ComputeStats(prices)
}

// ComputeStats summarizes a list of prices using interpolated quartiles.
func ComputeStats(prices []float64) model.PriceStats {
	sorted := positiveSorted(prices)
	if len(sorted) == 0 {
		return model.PriceStats{}
	}

	return model.PriceStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
	}
}

// quantile interpolates linearly between the order statistics around rank
// (n-1)*q. sorted must be ascending and non-empty.
func quantile(sorted []float64, q float64) float64 {
	rank := float64(len(sorted)-1) * q
	base := int(math.Floor(rank))
	frac := rank - float64(base)

	if base+1 >= len(sorted) {
		return sorted[base]
	}
	return sorted[base] + frac*(sorted[base+1]-sorted[base])
}

func positiveSorted(prices []float64) []float64 {
	sorted := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 && !math.IsInf(p, 0) {
			sorted = append(sorted, p)
		}
	}
	sort.Float64s(sorted)
	return sorted
}
