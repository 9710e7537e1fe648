package model

import "time"

// NotApplicableGrade is the eco-grade sentinel for products that are not rated.
const NotApplicableGrade = "not-applicable"

// Product is a catalog entry that can be compared and scored.
type Product struct {
	CreatedAt      time.Time
	ID             string
	Name           string
	Brand          string
	Category       string
	ImageURL       string
	NutritionGrade string // Letter grade a-e, empty when unknown
	EcoGrade       string // a-plus, a-f, or NotApplicableGrade
	Price          float64 // Zero when the product has no price
}

// HasPrice reports whether the product carries a usable price.
func (p Product) HasPrice() bool {
	return p.Price > 0
}

// Preview returns the linked-entity projection shown next to reviews and posts.
func (p Product) Preview() LinkedPreview {
	return LinkedPreview{DisplayName: p.Name, ImageURL: p.ImageURL}
}

// ReviewSummary aggregates the reviews written for one product.
type ReviewSummary struct {
	AverageRating float64
	Count         int
}

// HasReviews reports whether at least one review contributed to the summary.
func (s ReviewSummary) HasReviews() bool {
	return s.Count > 0
}

// LinkedPreview is the display projection of a cross-referenced entity.
type LinkedPreview struct {
	DisplayName string
	ImageURL    string
}
