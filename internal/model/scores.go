package model

import "fmt"

// Score bounds shared by every category.
const (
	MinScore     = 1.0
	MaxScore     = 5.0
	NeutralScore = 3.0
)

// PriceStats summarizes the price distribution of a comparison set.
// All fields are zero when no product in the set has a price.
type PriceStats struct {
	Min    float64
	Max    float64
	Q1     float64
	Median float64
	Q3     float64
}

// IsEmpty reports whether the stats were computed without pricing data.
func (s PriceStats) IsEmpty() bool {
	return s == PriceStats{}
}

// CategoryScores holds one 1-5 score per comparison category.
type CategoryScores struct {
	Price          float64
	Quality        float64
	Nutrition      float64
	Sustainability float64
	Brand          float64
}

// Weights are the user's relative preferences per category, each in [1,5].
type Weights struct {
	Price          float64
	Quality        float64
	Nutrition      float64
	Sustainability float64
	Brand          float64
}

// DefaultWeights weighs every category equally.
func DefaultWeights() Weights {
	return Weights{
		Price:          NeutralScore,
		Quality:        NeutralScore,
		Nutrition:      NeutralScore,
		Sustainability: NeutralScore,
		Brand:          NeutralScore,
	}
}

// Validate ensures every weight lies in [1,5].
func (w Weights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"price", w.Price},
		{"quality", w.Quality},
		{"nutrition", w.Nutrition},
		{"sustainability", w.Sustainability},
		{"brand", w.Brand},
	}
	for _, f := range fields {
		if f.value < MinScore || f.value > MaxScore {
			return fmt.Errorf("%s weight must be between %.0f and %.0f, got %.2f", f.name, MinScore, MaxScore, f.value)
		}
	}
	return nil
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Price + w.Quality + w.Nutrition + w.Sustainability + w.Brand
}

// BrandAggregate averages category scores over every product of a brand.
type BrandAggregate struct {
	Price          float64
	Quality        float64
	Nutrition      float64
	Sustainability float64
	OverallScore   float64
	ProductCount   int
}
