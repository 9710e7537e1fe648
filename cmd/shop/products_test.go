package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/testutil"
)

func TestParseImport(t *testing.T) {
	input := `[
		{"id": "p1", "name": "Honey Oats", "brand": "Acme", "category": "cereal", "price": 2.5, "nutritionGrade": "a"},
		{"name": "No Id Yet", "category": "cereal"}
	]`

	products, err := parseImport(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, model.Product{
		ID:             "p1",
		Name:           "Honey Oats",
		Brand:          "Acme",
		Category:       "cereal",
		NutritionGrade: "a",
		Price:          2.5,
	}, products[0])
	assert.Empty(t, products[1].ID)
	assert.False(t, products[1].HasPrice())
}

func TestParseImport_RejectsNonArray(t *testing.T) {
	_, err := parseImport(strings.NewReader(`{"name": "single"}`))
	require.Error(t, err)

	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.UserMessage, "JSON array")
}

func TestSearchProducts(t *testing.T) {
	products := append(testutil.Cereal(), testutil.Dairy()...)

	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"matches name ignoring case", "oats", []string{"p1"}},
		{"matches brand", "budget", []string{"p3", "p4"}},
		{"alternation", "puffs|milk", []string{"p2", "m1"}},
		{"no match", "granola", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := searchProducts(products, tt.pattern)
			require.NoError(t, err)

			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearchProducts_InvalidPattern(t *testing.T) {
	_, err := searchProducts(testutil.Cereal(), "(")
	assert.Error(t, err)

	_, err = searchProducts(nil, "(")
	assert.Error(t, err, "pattern is checked even with nothing to search")
}

func TestPrintProducts(t *testing.T) {
	var buf bytes.Buffer
	printProducts(&buf, testutil.Dairy())
	out := buf.String()
	assert.Contains(t, out, "Oat Milk")
	assert.Contains(t, out, "3.00")

	buf.Reset()
	printProducts(&buf, nil)
	assert.Contains(t, buf.String(), "No products found")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "-", formatPrice(model.Product{}))
	assert.Equal(t, "4.20", formatPrice(model.Product{Price: 4.2}))
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "Acme", orDash("Acme"))
}
