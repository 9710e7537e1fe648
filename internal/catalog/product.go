package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Product document fields.
const (
	FieldName           = "name"
	FieldBrand          = "brand"
	FieldCategory       = "category"
	FieldImageURL       = "imageUrl"
	FieldNutritionGrade = "nutritionGrade"
	FieldEcoGrade       = "ecoGrade"
	FieldPrice          = "price"
	FieldWeights        = "weights"
)

// ErrInvalidProduct is returned for products that cannot be stored.
var ErrInvalidProduct = errors.New("invalid product")

// DecodeProduct converts a products document. Missing fields decode to their
// zero values; scoring treats those as absent signals.
func DecodeProduct(doc service.Document) model.Product {
	return model.Product{
		ID:             doc.ID,
		Name:           doc.String(FieldName),
		Brand:          doc.String(FieldBrand),
		Category:       doc.String(FieldCategory),
		ImageURL:       doc.String(FieldImageURL),
		NutritionGrade: strings.ToLower(doc.String(FieldNutritionGrade)),
		EcoGrade:       strings.ToLower(doc.String(FieldEcoGrade)),
		Price:          doc.Float(FieldPrice),
		CreatedAt:      createdAt(doc),
	}
}

func createdAt(doc service.Document) time.Time {
	t, _ := live.NormalizeTimestamp(doc.Fields[service.FieldCreatedAt])
	return t
}

// EncodeProduct converts a product to document fields. Empty optional fields
// are omitted.
func EncodeProduct(p model.Product) map[string]any {
	data := map[string]any{
		FieldName:     p.Name,
		FieldCategory: p.Category,
	}
	optional := map[string]string{
		FieldBrand:          p.Brand,
		FieldImageURL:       p.ImageURL,
		FieldNutritionGrade: p.NutritionGrade,
		FieldEcoGrade:       p.EcoGrade,
	}
	for k, v := range optional {
		if v != "" {
			data[k] = v
		}
	}
	if p.HasPrice() {
		data[FieldPrice] = p.Price
	}
	return data
}

// ValidateProduct checks the fields every stored product must carry.
func ValidateProduct(p model.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Category) == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative, got %.2f", ErrInvalidProduct, p.Price)
	}
	return nil
}

func decodeWeights(doc *service.Document) model.Weights {
	weights := model.DefaultWeights()
	if doc == nil {
		return weights
	}
	raw, ok := doc.Fields[FieldWeights].(map[string]any)
	if !ok {
		return weights
	}

	nested := service.Document{Fields: raw}
	set := func(dst *float64, key string) {
		if _, present := raw[key]; present {
			*dst = nested.Float(key)
		}
	}
	set(&weights.Price, "price")
	set(&weights.Quality, "quality")
	set(&weights.Nutrition, "nutrition")
	set(&weights.Sustainability, "sustainability")
	set(&weights.Brand, "brand")

	if weights.Validate() != nil {
		return model.DefaultWeights()
	}
	return weights
}

func encodeWeights(w model.Weights) map[string]any {
	return map[string]any{
		"price":          w.Price,
		"quality":        w.Quality,
		"nutrition":      w.Nutrition,
		"sustainability": w.Sustainability,
		"brand":          w.Brand,
	}
}
