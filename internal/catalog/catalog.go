// Package catalog answers the product questions the comparison screens ask:
// what a product is, what it is compared against, how it scores and how
// well it matches a user's preferences.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/shopcompare/internal/cache"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/feed"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/scoring"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Store is the document store the catalog reads and writes.
type Store interface {
	service.Fetcher
	service.Resolver
	service.Writer
}

// Comparison is everything the product detail screen renders.
type Comparison struct {
	Summary model.ReviewSummary
	Brand   *model.BrandAggregate // nil when the product has no brand
	Product model.Product
	Stats   model.PriceStats
	Scores  model.CategoryScores
	Weights model.Weights
	Match   int
}

// Service computes comparisons over a Store.
type Service struct {
	store       Store
	comparables *cache.TTLCache[[]model.Product]
}

// New creates a catalog service. comparables caches the comparison set of
// each category; nil disables caching.
func New(store Store, comparables *cache.TTLCache[[]model.Product]) *Service {
	return &Service{store: store, comparables: comparables}
}

// Product loads one product.
func (s *Service) Product(ctx context.Context, id string) (model.Product, error) {
	doc, err := s.store.FetchByID(ctx, service.CollectionProducts, id)
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to load product %s: %w", id, err)
	}
	if doc == nil {
		return model.Product{}, fmt.Errorf("product %s: %w", id, common.ErrNotFound)
	}
	return DecodeProduct(*doc), nil
}

// Products lists the catalog, newest first. A limit of zero lists everything.
func (s *Service) Products(ctx context.Context, limit int) ([]model.Product, error) {
	return s.fetchProducts(ctx, service.Scope{Collection: service.CollectionProducts, Limit: limit})
}

// AddProduct validates and stores a product. When p.ID is empty the store
// assigns one. The stored id is returned.
func (s *Service) AddProduct(ctx context.Context, p model.Product) (string, error) {
	p.NutritionGrade = strings.ToLower(strings.TrimSpace(p.NutritionGrade))
	p.EcoGrade = strings.ToLower(strings.TrimSpace(p.EcoGrade))
	if err := ValidateProduct(p); err != nil {
		return "", common.NewUserError(err.Error(), err)
	}

	id := p.ID
	data := EncodeProduct(p)
	if id == "" {
		var err error
		if id, err = s.store.Write(ctx, service.CollectionProducts, data); err != nil {
			return "", fmt.Errorf("failed to add product: %w", err)
		}
	} else if err := s.store.Put(ctx, service.CollectionProducts, id, data); err != nil {
		return "", fmt.Errorf("failed to store product %s: %w", id, err)
	}

	if s.comparables != nil {
		s.comparables.Invalidate(p.Category)
	}
	slog.Debug("Stored product", "id", id, "category", p.Category)
	return id, nil
}

// Comparables returns the comparison set of a category: every product in it.
func (s *Service) Comparables(ctx context.Context, category string) ([]model.Product, error) {
	load := func() ([]model.Product, error) {
		return s.fetchProducts(ctx, service.Scope{
			Collection: service.CollectionProducts,
			Field:      FieldCategory,
			Value:      category,
		})
	}
	if s.comparables == nil {
		return load()
	}
	return s.comparables.GetOrLoad(category, load)
}

// ReviewSummary averages the valid ratings written for a product.
func (s *Service) ReviewSummary(ctx context.Context, productID string) (model.ReviewSummary, error) {
	docs, err := s.store.FetchOnce(ctx, service.Scope{
		Collection: service.CollectionReviews,
		Field:      feed.FieldProductID,
		Value:      productID,
	})
	if err != nil {
		return model.ReviewSummary{}, fmt.Errorf("failed to load reviews for %s: %w", productID, err)
	}

	var summary model.ReviewSummary
	var sum float64
	for _, doc := range docs {
		rating := doc.Float(feed.FieldRating)
		if rating < model.MinScore || rating > model.MaxScore {
			continue
		}
		sum += rating
		summary.Count++
	}
	if summary.Count > 0 {
		summary.AverageRating = sum / float64(summary.Count)
	}
	return summary, nil
}

// BrandAggregate averages the scores of every product sharing p's brand.
// It returns nil when p has no brand.
func (s *Service) BrandAggregate(ctx context.Context, p model.Product) (*model.BrandAggregate, error) {
	if strings.TrimSpace(p.Brand) == "" {
		return nil, nil
	}

	products, err := s.fetchProducts(ctx, service.Scope{
		Collection: service.CollectionProducts,
		Field:      FieldBrand,
		Value:      p.Brand,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load brand %s: %w", p.Brand, err)
	}

	summaries := make(map[string]model.ReviewSummary, len(products)+1)
	for _, bp := range append(products, p) {
		if _, done := summaries[bp.ID]; done {
			continue
		}
		summary, err := s.ReviewSummary(ctx, bp.ID)
		if err != nil {
			return nil, err
		}
		summaries[bp.ID] = summary
	}

	agg := scoring.ComputeBrandAggregate(products, p, summaries)
	return &agg, nil
}

// Weights returns a user's preference weights, or the defaults when the user
// has not set any.
func (s *Service) Weights(ctx context.Context, userID string) (model.Weights, error) {
	if userID == "" {
		return model.DefaultWeights(), nil
	}
	doc, err := s.store.FetchByID(ctx, service.CollectionUsers, userID)
	if err != nil {
		return model.Weights{}, fmt.Errorf("failed to load preferences for %s: %w", userID, err)
	}
	return decodeWeights(doc), nil
}

// SetWeights stores a user's preference weights, keeping the rest of the
// user document.
func (s *Service) SetWeights(ctx context.Context, userID string, w model.Weights) error {
	if userID == "" {
		return common.NewUserError("a user id is required", common.ErrInvalidConfig)
	}
	if err := w.Validate(); err != nil {
		return common.NewUserError(err.Error(), err)
	}

	patch := map[string]any{FieldWeights: encodeWeights(w)}
	err := s.store.Update(ctx, service.CollectionUsers, userID, patch)
	if errors.Is(err, common.ErrNotFound) {
		err = s.store.Put(ctx, service.CollectionUsers, userID, patch)
	}
	if err != nil {
		return fmt.Errorf("failed to save preferences for %s: %w", userID, err)
	}
	return nil
}

// Compare scores a product against its category and the user's weights.
func (s *Service) Compare(ctx context.Context, productID, userID string) (*Comparison, error) {
	product, err := s.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	weights, err := s.Weights(ctx, userID)
	if err != nil {
		return nil, err
	}
	comparables, err := s.Comparables(ctx, product.Category)
	if err != nil {
		return nil, err
	}

	stats := scoring.ComputePriceStats(withProduct(comparables, product))
	ranking, summary, brand, err := s.rank(ctx, product, stats, weights, nil)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Product: product,
		Stats:   stats,
		Scores:  ranking.Scores,
		Summary: summary,
		Brand:   brand,
		Weights: weights,
		Match:   ranking.Match,
	}, nil
}

// Rank orders a category by match against weights, best first.
func (s *Service) Rank(ctx context.Context, category string, weights model.Weights) (model.ProductRankings, error) {
	products, err := s.Comparables(ctx, category)
	if err != nil {
		return nil, err
	}

	stats := scoring.ComputePriceStats(products)
	brands := make(map[string]*model.BrandAggregate)
	rankings := make(model.ProductRankings, 0, len(products))
	for _, p := range products {
		ranking, _, _, err := s.rank(ctx, p, stats, weights, brands)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, ranking)
	}

	rankings.Sort()
	return rankings, nil
}

// rank scores one product. brands memoizes aggregates across calls; nil
// disables memoization.
func (s *Service) rank(ctx context.Context, p model.Product, stats model.PriceStats, weights model.Weights, brands map[string]*model.BrandAggregate) (model.ProductRanking, model.ReviewSummary, *model.BrandAggregate, error) {
	summary, err := s.ReviewSummary(ctx, p.ID)
	if err != nil {
		return model.ProductRanking{}, summary, nil, err
	}

	brand, cached := brands[p.Brand]
	if !cached {
		if brand, err = s.BrandAggregate(ctx, p); err != nil {
			return model.ProductRanking{}, summary, nil, err
		}
		if brands != nil {
			brands[p.Brand] = brand
		}
	}

	scores := scoring.Score(p, stats, &summary, brand)
	return model.ProductRanking{
		Product: p,
		Scores:  scores,
		Match:   scoring.MatchPercentage(scores, weights),
	}, summary, brand, nil
}

func (s *Service) fetchProducts(ctx context.Context, scope service.Scope) ([]model.Product, error) {
	docs, err := s.store.FetchOnce(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", scope, err)
	}
	products := make([]model.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, DecodeProduct(doc))
	}
	return products, nil
}

// withProduct makes sure p is part of its own comparison set.
func withProduct(products []model.Product, p model.Product) []model.Product {
	for _, existing := range products {
		if existing.ID == p.ID {
			return products
		}
	}
	return append(append(make([]model.Product, 0, len(products)+1), products...), p)
}
