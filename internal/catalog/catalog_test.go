package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopcompare/internal/cache"
	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/scoring"
	"github.com/Veraticus/shopcompare/internal/service"
	"github.com/Veraticus/shopcompare/internal/storage"
)

type fixture struct {
	store   *storage.SQLiteStorage
	clock   *clock.Fake
	cache   *cache.TTLCache[[]model.Product]
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "catalog.db"), storage.WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	c := cache.New[[]model.Product](time.Minute, clk)
	t.Cleanup(func() {
		c.Close()
		_ = store.Close()
	})
	return &fixture{store: store, clock: clk, cache: c, service: New(store, c)}
}

// seed stores the cereal aisle: prices 2,4,6,8 give q1=3.5 and q3=6.5.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	products := []model.Product{
		{ID: "p1", Name: "Honey Oats", Brand: "Acme", Category: "cereal", Price: 2, NutritionGrade: "A", EcoGrade: "a"},
		{ID: "p2", Name: "Cocoa Puffs", Brand: "Acme", Category: "cereal", Price: 4, NutritionGrade: "c", EcoGrade: "c"},
		{ID: "p3", Name: "Sugar Loops", Brand: "Budget", Category: "cereal", Price: 6, NutritionGrade: "e", EcoGrade: "f"},
		{ID: "p4", Name: "Plain Flakes", Brand: "Budget", Category: "cereal", Price: 8},
		{ID: "m1", Name: "Oat Milk", Brand: "Acme", Category: "dairy", Price: 3},
	}
	for _, p := range products {
		_, err := f.service.AddProduct(ctx, p)
		require.NoError(t, err)
	}
	for _, rating := range []int{4, 5, 9} {
		_, err := f.store.Write(ctx, service.CollectionReviews, map[string]any{
			"productId": "p1", "rating": rating, "text": "review",
		})
		require.NoError(t, err)
	}
}

func TestService_Product(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	p, err := f.service.Product(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Honey Oats", p.Name)
	assert.Equal(t, "a", p.NutritionGrade, "grades are normalized on write")
	assert.InDelta(t, 2.0, p.Price, 1e-9)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = f.service.Product(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestService_AddProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		product model.Product
	}{
		{"missing name", model.Product{Category: "cereal"}},
		{"missing category", model.Product{Name: "Oats"}},
		{"negative price", model.Product{Name: "Oats", Category: "cereal", Price: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.AddProduct(ctx, tt.product)
			assert.ErrorIs(t, err, ErrInvalidProduct)
			var userErr *common.UserError
			assert.ErrorAs(t, err, &userErr)
		})
	}

	id, err := f.service.AddProduct(ctx, model.Product{Name: "Oats", Category: "cereal"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestService_ReviewSummarySkipsInvalidRatings(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	summary, err := f.service.ReviewSummary(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 4.5, summary.AverageRating, 1e-9)

	empty, err := f.service.ReviewSummary(context.Background(), "p2")
	require.NoError(t, err)
	assert.False(t, empty.HasReviews())
}

func TestService_BrandAggregate(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	p1, err := f.service.Product(ctx, "p1")
	require.NoError(t, err)

	agg, err := f.service.BrandAggregate(ctx, p1)
	require.NoError(t, err)
	require.NotNil(t, agg)
	// Acme spans categories: p1, p2 and m1
	assert.Equal(t, 3, agg.ProductCount)
	assert.InDelta(t, 4.5, agg.Quality, 1e-9)

	unbranded, err := f.service.BrandAggregate(ctx, model.Product{ID: "x", Name: "Loose"})
	require.NoError(t, err)
	assert.Nil(t, unbranded)
}

func TestService_Compare(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	cmp, err := f.service.Compare(context.Background(), "p1", "")
	require.NoError(t, err)

	assert.Equal(t, "p1", cmp.Product.ID)
	assert.InDelta(t, 3.5, cmp.Stats.Q1, 1e-9)
	assert.InDelta(t, 6.5, cmp.Stats.Q3, 1e-9)
	assert.InDelta(t, 5.0, cmp.Scores.Price, 1e-9)
	assert.InDelta(t, 4.5, cmp.Scores.Quality, 1e-9)
	assert.InDelta(t, 5.0, cmp.Scores.Nutrition, 1e-9)
	assert.InDelta(t, 5.0, cmp.Scores.Sustainability, 1e-9)
	require.NotNil(t, cmp.Brand)
	assert.InDelta(t, cmp.Brand.OverallScore, cmp.Scores.Brand, 1e-9)
	assert.Equal(t, model.DefaultWeights(), cmp.Weights)
	assert.Equal(t, scoring.MatchPercentage(cmp.Scores, cmp.Weights), cmp.Match)
	assert.Greater(t, cmp.Match, 80)
}

func TestService_Rank(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	weights := model.Weights{Price: 5, Quality: 1, Nutrition: 1, Sustainability: 1, Brand: 1}
	rankings, err := f.service.Rank(context.Background(), "cereal", weights)
	require.NoError(t, err)
	require.Len(t, rankings, 4)
	require.NoError(t, rankings.Validate())

	assert.Equal(t, "p1", rankings[0].Product.ID)
	for i := 1; i < len(rankings); i++ {
		assert.GreaterOrEqual(t, rankings[i-1].Match, rankings[i].Match)
	}
}

func TestService_ComparablesCached(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	first, err := f.service.Comparables(ctx, "cereal")
	require.NoError(t, err)
	require.Len(t, first, 4)

	// Written behind the service's back: served stale until the entry expires.
	require.NoError(t, f.store.Put(ctx, service.CollectionProducts, "p5", EncodeProduct(model.Product{
		Name: "Granola", Category: "cereal", Price: 5,
	})))
	cached, err := f.service.Comparables(ctx, "cereal")
	require.NoError(t, err)
	assert.Len(t, cached, 4)

	f.clock.Advance(2 * time.Minute)
	fresh, err := f.service.Comparables(ctx, "cereal")
	require.NoError(t, err)
	assert.Len(t, fresh, 5)

	// Writes through the service invalidate the category.
	_, err = f.service.AddProduct(ctx, model.Product{Name: "Muesli", Category: "cereal"})
	require.NoError(t, err)
	after, err := f.service.Comparables(ctx, "cereal")
	require.NoError(t, err)
	assert.Len(t, after, 6)
}

func TestService_Weights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	defaults, err := f.service.Weights(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultWeights(), defaults)

	require.NoError(t, f.store.Put(ctx, service.CollectionUsers, "ana", map[string]any{"displayName": "Ana"}))

	want := model.Weights{Price: 5, Quality: 4, Nutrition: 2, Sustainability: 1, Brand: 3}
	require.NoError(t, f.service.SetWeights(ctx, "ana", want))

	got, err := f.service.Weights(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	doc, err := f.store.FetchByID(ctx, service.CollectionUsers, "ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc.String("displayName"), "other user fields are kept")

	require.NoError(t, f.service.SetWeights(ctx, "ben", want), "creates the user document")

	err = f.service.SetWeights(ctx, "ana", model.Weights{Price: 9, Quality: 1, Nutrition: 1, Sustainability: 1, Brand: 1})
	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestDecodeWeights_FallsBackOnCorruptDocument(t *testing.T) {
	doc := &service.Document{Fields: map[string]any{
		FieldWeights: map[string]any{"price": 42.0},
	}}
	assert.Equal(t, model.DefaultWeights(), decodeWeights(doc))

	partial := &service.Document{Fields: map[string]any{
		FieldWeights: map[string]any{"price": 5.0},
	}}
	got := decodeWeights(partial)
	assert.InDelta(t, 5.0, got.Price, 1e-9)
	assert.InDelta(t, model.NeutralScore, got.Brand, 1e-9)
}

