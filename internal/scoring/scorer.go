package scoring

import (
	"math"
	"strings"

	"github.com/Veraticus/shopcompare/internal/model"
)

// Default scores used when a signal is missing.
const (
	// DefaultNutritionScore is deliberately below neutral: an unrated
	// product should not tie with a "c" grade.
	DefaultNutritionScore = 2.0
	// DefaultScore is the neutral score for every other missing signal.
	DefaultScore = model.NeutralScore
)

// QuartileScore buckets a price against the comparison set's quartiles:
// 5 at or below q1, 1 at or above q3, 3 in between. It returns 3 when the
// price is missing or the set has no spread.
func QuartileScore(price, q1, q3 float64) float64 {
	if price <= 0 || q1 == q3 {
		return DefaultScore
	}
	switch {
	case price <= q1:
		return model.MaxScore
	case price >= q3:
		return model.MinScore
	default:
		return DefaultScore
	}
}

// NutritionScore maps a nutrition letter grade a-e to 5-1.
func NutritionScore(grade string) float64 {
	switch strings.ToLower(strings.TrimSpace(grade)) {
	case "a":
		return 5
	case "b":
		return 4
	case "c":
		return 3
	case "d":
		return 2
	case "e":
		return 1
	default:
		return DefaultNutritionScore
	}
}

// SustainabilityScore maps the product's eco grade to a 1-5 score.
func SustainabilityScore(product model.Product) float64 {
	switch strings.ToLower(strings.TrimSpace(product.EcoGrade)) {
	case "a-plus", "a":
		return 5
	case "b":
		return 4
	case "c":
		return 3
	case "d":
		return 2
	case "e", "f":
		return 1
	default:
		// Also covers model.NotApplicableGrade
		return DefaultScore
	}
}

// QualityScore is the product's average review rating, or 3 without reviews.
func QualityScore(summary *model.ReviewSummary) float64 {
	if summary == nil || !summary.HasReviews() || summary.AverageRating <= 0 {
		return DefaultScore
	}
	return clampScore(summary.AverageRating)
}

// BrandScore is the brand's overall aggregate score, or 3 without data.
func BrandScore(brand *model.BrandAggregate) float64 {
	if brand == nil || brand.ProductCount == 0 || brand.OverallScore <= 0 {
		return DefaultScore
	}
	return clampScore(brand.OverallScore)
}

// Score computes all five category scores for a product.
func Score(product model.Product, stats model.PriceStats, summary *model.ReviewSummary, brand *model.BrandAggregate) model.CategoryScores {
	return model.CategoryScores{
		Price:          QuartileScore(product.Price, stats.Q1, stats.Q3),
		Quality:        QualityScore(summary),
		Nutrition:      NutritionScore(product.NutritionGrade),
		Sustainability: SustainabilityScore(product),
		Brand:          BrandScore(brand),
	}
}

// MatchPercentage combines category scores with preference weights into an
// integer percentage in [0,100]. Only the relative size of the weights
// matters. A zero weight sum yields 0.
func MatchPercentage(scores model.CategoryScores, weights model.Weights) int {
	w := [5]float64{
		nonNegative(weights.Price),
		nonNegative(weights.Quality),
		nonNegative(weights.Nutrition),
		nonNegative(weights.Sustainability),
		nonNegative(weights.Brand),
	}
	s := [5]float64{
		clampScore(scores.Price),
		clampScore(scores.Quality),
		clampScore(scores.Nutrition),
		clampScore(scores.Sustainability),
		clampScore(scores.Brand),
	}

	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	var avg float64
	for i := range w {
		avg += s[i] * (w[i] / sum)
	}

	pct := int(math.Round((avg - model.MinScore) / (model.MaxScore - model.MinScore) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultScore
	}
	return math.Max(model.MinScore, math.Min(model.MaxScore, v))
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
