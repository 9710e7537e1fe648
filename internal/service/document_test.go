package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/shopcompare/internal/model"
)

func TestDocument_Accessors(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	doc := Document{
		ID:         "r1",
		Collection: CollectionReviews,
		Fields: map[string]any{
			"text":      "nice",
			"rating":    4.0,
			"count":     int64(3),
			"price":     "2.50",
			"createdAt": at,
			"flag":      true,
			"stamp":     model.NewTimestamp(at),
		},
	}

	assert.Equal(t, "nice", doc.String("text"))
	assert.Equal(t, "", doc.String("missing"))
	assert.Equal(t, "true", doc.String("flag"))
	assert.Equal(t, 4, doc.Int("rating"))
	assert.InDelta(t, 3.0, doc.Float("count"), 1e-9)
	assert.InDelta(t, 2.5, doc.Float("price"), 1e-9)
	assert.InDelta(t, 0.0, doc.Float("text"), 1e-9)
	assert.Equal(t, at, doc.Time("createdAt"))
	assert.Equal(t, at, doc.Time("stamp"))
	assert.True(t, doc.Time("text").IsZero())
}

func TestDocument_Clone(t *testing.T) {
	doc := Document{ID: "a", Collection: "c", Fields: map[string]any{"k": "v"}}
	clone := doc.Clone()
	clone.Fields["k"] = "changed"
	assert.Equal(t, "v", doc.Fields["k"])
}
