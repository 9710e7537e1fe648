// Package feed provides the live, optimistic lists a screen renders: the
// reviews of a product, the community posts and the comments of a post.
//
// A Feed keeps a live.Manager subscribed to the store and a
// reconcile.Reconciler merging the manager's snapshots with entities the
// user has just submitted.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/live"
	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/reconcile"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Store is what a feed reads from and writes to.
type Store interface {
	service.Source
	service.Writer
}

// View is the state a screen renders.
type View[T model.Entity] struct {
	RecentlyArrived map[string]struct{}
	Items           []T
	State           live.State
	IsLive          bool
	IsOnline        bool
}

// IsRecent reports whether id should be highlighted as newly arrived.
func (v View[T]) IsRecent(id string) bool {
	_, ok := v.RecentlyArrived[id]
	return ok
}

// Options configures a feed.
type Options struct {
	Clock           clock.Clock
	Resolver        service.Resolver // Linked previews; nil disables enrichment
	Retry           common.RetryOptions
	HighlightWindow time.Duration
	PollInterval    time.Duration
	StartOffline    bool
}

// Codec describes how one entity type is stored.
type Codec[T model.Entity] struct {
	live.Codec[T]
	Encode      func(T) map[string]any
	Fingerprint func(T) string
	Draft       func(T) string
	Stamp       func(entity T, id string, at time.Time) T
	Validate    func(T) error
}

// Feed is a live, optimistic list of one entity type.
type Feed[T model.Entity] struct {
	clock      clock.Clock
	writer     service.Writer
	manager    *live.Manager[T]
	reconciler *reconcile.Reconciler[T]
	listener   func(View[T])
	codec      Codec[T]
	name       string
	collection string
	retry      common.RetryOptions
	state      live.State
	mu         sync.Mutex
	isOnline   bool
}

// New creates a feed over scope. Nothing is read until Start.
func New[T model.Entity](store Store, scope service.Scope, codec Codec[T], name string, opts Options) *Feed[T] {
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = common.RetryOptions{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond}
	}

	f := &Feed[T]{
		clock:      opts.Clock,
		writer:     store,
		codec:      codec,
		name:       name,
		collection: scope.Collection,
		retry:      opts.Retry,
		isOnline:   !opts.StartOffline,
		state:      live.StateOffline,
	}

	f.reconciler = reconcile.New(codec.Fingerprint, reconcile.Options{
		Clock:  opts.Clock,
		Name:   name,
		Window: opts.HighlightWindow,
	})
	f.reconciler.OnChange(f.emit)

	f.manager = live.NewManager(store, scope, codec.Codec, live.Options{
		Clock:        opts.Clock,
		Resolver:     opts.Resolver,
		Name:         name,
		PollInterval: opts.PollInterval,
		StartOffline: opts.StartOffline,
	})
	f.manager.OnUpdate(f.onUpdate)

	return f
}

// OnChange registers the listener. Calls are serialized; the listener must
// not call back into the feed.
func (f *Feed[T]) OnChange(fn func(View[T])) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
}

// Start opens the live subscription (or a one-shot read when offline).
func (f *Feed[T]) Start(ctx context.Context) {
	f.manager.Start(ctx)
}

// SetOnline forwards a connectivity transition to the live manager.
func (f *Feed[T]) SetOnline(online bool) {
	f.manager.SetOnline(online)
}

// View returns the current merged state.
func (f *Feed[T]) View() View[T] {
	return f.view(f.reconciler.View())
}

// Submit shows draft immediately under a placeholder id and persists it. If
// the write fails the placeholder is withdrawn and a *common.DraftError
// carrying the user's text is returned.
func (f *Feed[T]) Submit(ctx context.Context, draft T) (T, error) {
	if f.codec.Validate != nil {
		if err := f.codec.Validate(draft); err != nil {
			return draft, err
		}
	}

	// The placeholder and the stored document share one uuid, so a write
	// retried after a lost reply overwrites instead of duplicating.
	docID := uuid.NewString()
	id := model.SpeculativePrefix + docID
	entity := f.codec.Stamp(draft, id, f.clock.Now().UTC())

	if err := f.reconciler.InsertSpeculative(entity); err != nil {
		return entity, err
	}

	data := f.codec.Encode(entity)
	retry := f.retry
	onRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		metrics.SubmitRetries.WithLabelValues(f.name).Inc()
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	err := common.WithRetry(ctx, func() error {
		werr := f.writer.Put(ctx, f.collection, docID, data)
		if werr != nil && !common.IsRetryable(werr) {
			return &common.RetryableError{Err: werr, Retryable: false}
		}
		return werr
	}, retry)
	if err != nil {
		f.reconciler.FailSpeculative(id)
		common.LogWarn(err, "Submission failed, draft restored", common.Fields{
			"feed": f.name,
			"id":   id,
		})
		return entity, &common.DraftError{
			Err:   fmt.Errorf("%w: %w", common.ErrWriteFailed, err),
			Draft: f.codec.Draft(entity),
		}
	}

	return entity, nil
}

// Close tears the feed down. No listener call happens after Close returns.
func (f *Feed[T]) Close() {
	f.manager.Close()
	f.reconciler.Close()
}

func (f *Feed[T]) onUpdate(u live.Update[T]) {
	f.mu.Lock()
	f.state = u.State
	f.isOnline = u.IsOnline
	f.mu.Unlock()

	if u.Refreshed {
		f.reconciler.ApplySnapshot(u.Items)
		return
	}
	f.reconciler.Republish()
}

// emit runs under the reconciler's lock, which serializes listener calls.
func (f *Feed[T]) emit(v reconcile.View[T]) {
	view := f.view(v)

	f.mu.Lock()
	listener := f.listener
	f.mu.Unlock()

	if listener != nil {
		listener(view)
	}
}

func (f *Feed[T]) view(v reconcile.View[T]) View[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return View[T]{
		Items:           v.Items,
		RecentlyArrived: v.RecentlyArrived,
		State:           f.state,
		IsLive:          f.state == live.StateLive,
		IsOnline:        f.isOnline,
	}
}
