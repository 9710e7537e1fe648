package testutil

import "github.com/Veraticus/shopcompare/internal/model"

// Cereal returns a four-product aisle with prices 2, 4, 6 and 8, so the
// comparison set has q1=3.5 and q3=6.5.
func Cereal() []model.Product {
	return []model.Product{
		{ID: "p1", Name: "Honey Oats", Brand: "Acme", Category: "cereal", Price: 2, NutritionGrade: "a", EcoGrade: "a"},
		{ID: "p2", Name: "Cocoa Puffs", Brand: "Acme", Category: "cereal", Price: 4, NutritionGrade: "c", EcoGrade: "c"},
		{ID: "p3", Name: "Sugar Loops", Brand: "Budget", Category: "cereal", Price: 6, NutritionGrade: "e", EcoGrade: "f"},
		{ID: "p4", Name: "Plain Flakes", Brand: "Budget", Category: "cereal", Price: 8},
	}
}

// Dairy returns a single product in a second category sharing a brand with
// Cereal.
func Dairy() []model.Product {
	return []model.Product{
		{ID: "m1", Name: "Oat Milk", Brand: "Acme", Category: "dairy", Price: 3, EcoGrade: model.NotApplicableGrade},
	}
}
