// Package testutil provides shared fixtures for tests that need a migrated
// document store and a controllable clock.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
	"github.com/Veraticus/shopcompare/internal/storage"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Clock   *clock.Fake
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Products       []model.Product
	SkipMigrations bool
}

// SetupTestDB creates a migrated database in the test's temp dir, driven by
// a fake clock starting at Epoch. It is closed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	clk := clock.NewFake(Epoch)
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), storage.WithClock(clk))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for _, p := range opts.Products {
		if err := store.Put(ctx, service.CollectionProducts, p.ID, productDocument(p)); err != nil {
			t.Fatalf("failed to seed product %q: %v", p.ID, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, Clock: clk, t: t}
}

// MustWrite stores a document and returns its id, failing the test on error.
func (db *TestDB) MustWrite(collection string, data map[string]any) string {
	db.t.Helper()
	id, err := db.Storage.Write(context.Background(), collection, data)
	if err != nil {
		db.t.Fatalf("failed to write %s: %v", collection, err)
	}
	return id
}

// MustReview stores a review of productID.
func (db *TestDB) MustReview(productID string, rating int, text string) string {
	db.t.Helper()
	return db.MustWrite(service.CollectionReviews, map[string]any{
		"productId": productID,
		"rating":    rating,
		"text":      text,
	})
}

// productDocument is the raw form other clients write products in.
func productDocument(p model.Product) map[string]any {
	data := map[string]any{
		"name":     p.Name,
		"brand":    p.Brand,
		"category": p.Category,
	}
	if p.Price > 0 {
		data["price"] = p.Price
	}
	if p.NutritionGrade != "" {
		data["nutritionGrade"] = p.NutritionGrade
	}
	if p.EcoGrade != "" {
		data["ecoGrade"] = p.EcoGrade
	}
	if p.ImageURL != "" {
		data["imageUrl"] = p.ImageURL
	}
	return data
}
