package cache

import (
	"context"

	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Resolver serves linked-document reads from a TTL cache. Only documents
// that exist are cached, so a document created after a miss is seen on the
// next read.
type Resolver struct {
	inner service.Resolver
	cache *TTLCache[service.Document]
	name  string
}

// NewResolver wraps inner with c. The name labels cache metrics.
func NewResolver(inner service.Resolver, c *TTLCache[service.Document], name string) *Resolver {
	return &Resolver{inner: inner, cache: c, name: name}
}

// FetchByID implements service.Resolver.
func (r *Resolver) FetchByID(ctx context.Context, collection, id string) (*service.Document, error) {
	key := collection + "/" + id
	if doc, ok := r.cache.Get(key); ok {
		metrics.CacheLookups.WithLabelValues(r.name, "hit").Inc()
		return &doc, nil
	}
	metrics.CacheLookups.WithLabelValues(r.name, "miss").Inc()

	doc, err := r.inner.FetchByID(ctx, collection, id)
	if err != nil || doc == nil {
		return doc, err
	}
	r.cache.Set(key, *doc)
	return doc, nil
}

// Invalidate drops the cached copy of one document.
func (r *Resolver) Invalidate(collection, id string) {
	r.cache.Invalidate(collection + "/" + id)
}

var _ service.Resolver = (*Resolver)(nil)
