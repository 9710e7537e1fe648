package scoring

import (
	"testing"

	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestComputeBrandAggregate(t *testing.T) {
	products := []model.Product{
		{ID: "p1", Brand: "Acme", Price: 1, NutritionGrade: "a", EcoGrade: "a"},
		{ID: "p2", Brand: "Acme", Price: 2, NutritionGrade: "c", EcoGrade: "c"},
		{ID: "p3", Brand: "Acme", Price: 3, NutritionGrade: "", EcoGrade: model.NotApplicableGrade},
		{ID: "p4", Brand: "Acme", Price: 10, NutritionGrade: "e", EcoGrade: "f"},
	}
	summaries := map[string]model.ReviewSummary{
		"p1": {AverageRating: 4, Count: 3},
		"p2": {AverageRating: 5, Count: 1},
		// p3 has no reviews and is left out of the quality mean
		"p4": {AverageRating: 0, Count: 0},
	}

	got := ComputeBrandAggregate(products, products[1], summaries)

	// Prices 1,2,3,10: q1=1.75, q3=4.75, average 4 -> 4 - ((4-1.75)/3)*2 = 2.5
	assert.InDelta(t, 2.5, got.Price, 1e-9)
	assert.InDelta(t, 4.5, got.Quality, 1e-9)
	// Nutrition (5+3+2+1)/4 = 2.75
	assert.InDelta(t, 2.8, got.Nutrition, 1e-9)
	// Sustainability (5+3+3+1)/4 = 3
	assert.InDelta(t, 3.0, got.Sustainability, 1e-9)
	// (2.5+4.5+2.8+3.0)/4 = 3.2
	assert.InDelta(t, 3.2, got.OverallScore, 1e-9)
	assert.Equal(t, 4, got.ProductCount)
}

func TestComputeBrandAggregate_IncludesCurrentOnce(t *testing.T) {
	current := model.Product{ID: "p1", Price: 4, NutritionGrade: "b", EcoGrade: "b"}
	others := []model.Product{
		{ID: "p1", Price: 4, NutritionGrade: "b", EcoGrade: "b"},
		{ID: "p2", Price: 6, NutritionGrade: "b", EcoGrade: "b"},
	}

	got := ComputeBrandAggregate(others, current, nil)
	assert.Equal(t, 2, got.ProductCount)

	alone := ComputeBrandAggregate(nil, current, nil)
	assert.Equal(t, 1, alone.ProductCount)
	// Single price has no spread
	assert.InDelta(t, 3.0, alone.Price, 1e-9)
	assert.InDelta(t, 3.0, alone.Quality, 1e-9)
}

func TestComputeBrandAggregate_PriceBands(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"no prices", []float64{0, 0}, 3},
		{"no spread", []float64{5, 5, 5}, 3},
		{"average above q3", []float64{1, 1, 2, 3, 100}, 2},
		{"average below q1", []float64{0.1, 10, 11, 12, 13}, 5},
		{"interpolated", []float64{1, 2, 3, 4, 5}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products := make([]model.Product, len(tt.prices))
			for i, p := range tt.prices {
				products[i] = model.Product{ID: string(rune('a' + i)), Price: p}
			}
			got := ComputeBrandAggregate(products, products[0], nil)
			assert.InDelta(t, tt.want, got.Price, 1e-9)
		})
	}
}

func TestComputeBrandAggregate_Idempotent(t *testing.T) {
	products := []model.Product{
		{ID: "x", Price: 3.33, NutritionGrade: "a", EcoGrade: "b"},
		{ID: "y", Price: 7.77, NutritionGrade: "d", EcoGrade: "a-plus"},
		{ID: "z", Price: 1.11, NutritionGrade: "c", EcoGrade: "e"},
	}
	summaries := map[string]model.ReviewSummary{
		"x": {AverageRating: 3.7, Count: 9},
		"z": {AverageRating: 2.1, Count: 4},
	}

	first := ComputeBrandAggregate(products, products[0], summaries)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ComputeBrandAggregate(products, products[0], summaries))
	}

	reversed := []model.Product{products[2], products[1], products[0]}
	assert.Equal(t, first, ComputeBrandAggregate(reversed, products[0], summaries))
}
