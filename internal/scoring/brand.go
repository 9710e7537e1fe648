package scoring

import (
	"math"
	"sort"

	"github.com/Veraticus/shopcompare/internal/model"
)

// ComputeBrandAggregate averages category scores over every product of a
// brand. current is always part of the set; duplicates are collapsed by id.
// summaries maps product id to its review summary.
func ComputeBrandAggregate(products []model.Product, current model.Product, summaries map[string]model.ReviewSummary) model.BrandAggregate {
	set := dedupe(products, current)
	if len(set) == 0 {
		return model.BrandAggregate{}
	}

	var (
		prices               []float64
		ratingSum            float64
		ratingCount          int
		nutritionSum, ecoSum float64
	)
	for _, p := range set {
		if p.HasPrice() {
			prices = append(prices, p.Price)
		}
		if s, ok := summaries[p.ID]; ok && s.HasReviews() && s.AverageRating > 0 {
			ratingSum += s.AverageRating
			ratingCount++
		}
		nutritionSum += NutritionScore(p.NutritionGrade)
		ecoSum += SustainabilityScore(p)
	}

	quality := DefaultScore
	if ratingCount > 0 {
		quality = ratingSum / float64(ratingCount)
	}

	n := float64(len(set))
	agg := model.BrandAggregate{
		Price:          round1(brandPriceScore(prices)),
		Quality:        round1(quality),
		Nutrition:      round1(nutritionSum / n),
		Sustainability: round1(ecoSum / n),
		ProductCount:   len(set),
	}
	agg.OverallScore = round1((agg.Price + agg.Quality + agg.Nutrition + agg.Sustainability) / 4)
	return agg
}

// brandPriceScore scores the brand's average price against its own
// quartiles: 5 below q1, 2 above q3, linear from 4 down to 2 in between.
func brandPriceScore(prices []float64) float64 {
	if len(prices) == 0 {
		return DefaultScore
	}
	stats := ComputeStats(prices)
	if stats.Q1 == stats.Q3 {
		return DefaultScore
	}

	var total float64
	for _, p := range prices {
		total += p
	}
	avg := total / float64(len(prices))

	switch {
	case avg < stats.Q1:
		return 5
	case avg > stats.Q3:
		return 2
	default:
		return 4 - ((avg-stats.Q1)/(stats.Q3-stats.Q1))*2
	}
}

// dedupe returns the products keyed by id, sorted by id so sums are
// accumulated in the same order on every call.
func dedupe(products []model.Product, current model.Product) []model.Product {
	byID := make(map[string]model.Product, len(products)+1)
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		byID[p.ID] = p
	}
	if current.ID != "" {
		byID[current.ID] = current
	}

	set := make([]model.Product, 0, len(byID))
	for _, p := range byID {
		set = append(set, p)
	}
	sort.Slice(set, func(i, j int) bool { return set[i].ID < set[j].ID })
	return set
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
