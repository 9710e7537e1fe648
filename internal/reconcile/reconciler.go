// Package reconcile merges optimistic local entities with authoritative
// snapshots pushed by the document store.
//
// A Reconciler owns one Live Set. Speculative entities are shown as soon as
// the user acts; when a snapshot carries an authoritative entity with the
// same content fingerprint the speculative one is retired. Authoritative ids
// that were absent from the previous snapshot are flagged as recently arrived
// for a fixed window.
//
// Applying a snapshot and inserting a speculative entity commute: whichever
// arrives first, the resulting Live Set is the same.
package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/model"
)

// View is the merged state exposed to the UI.
type View[T model.Entity] struct {
	RecentlyArrived map[string]struct{}
	Items           []T
}

// IsRecent reports whether id is inside the recently-arrived window.
func (v View[T]) IsRecent(id string) bool {
	_, ok := v.RecentlyArrived[id]
	return ok
}

// Options configures a Reconciler.
type Options struct {
	Clock  clock.Clock
	Name   string // Feed name used for logs and metrics
	Window time.Duration
}

// Reconciler merges speculative and authoritative entities of one type.
type Reconciler[T model.Entity] struct {
	fingerprint   func(T) string
	onChange      func(View[T])
	highlighter   *Highlighter
	knownIDs      map[string]struct{}
	name          string
	speculative   []T
	authoritative []T
	mu            sync.Mutex
	initialized   bool
	closed        bool
}

// New creates a reconciler that matches entities by fingerprint.
func New[T model.Entity](fingerprint func(T) string, opts Options) *Reconciler[T] {
	if opts.Name == "" {
		opts.Name = "feed"
	}
	r := &Reconciler[T]{
		fingerprint: fingerprint,
		name:        opts.Name,
		knownIDs:    make(map[string]struct{}),
	}
	r.highlighter = NewHighlighter(opts.Clock, opts.Window, r.onHighlightExpired)
	return r
}

// OnChange registers the listener invoked after every mutation. Calls are
// serialized; the listener must not call back into the reconciler.
func (r *Reconciler[T]) OnChange(fn func(View[T])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// InsertSpeculative shows a client-synthesized entity immediately. The
// entity must carry a placeholder id. If its authoritative twin is already
// visible the insert is a no-op; an older speculative entity with the same
// fingerprint is replaced.
func (r *Reconciler[T]) InsertSpeculative(entity T) error {
	if !entity.Speculative() {
		return fmt.Errorf("%w: %q", common.ErrNotSpeculative, entity.Key())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return common.ErrClosed
	}

	fp := r.fingerprint(entity)
	for _, a := range r.authoritative {
		if r.fingerprint(a) == fp {
			slog.Debug("Speculative entity already persisted",
				"feed", r.name,
				"id", entity.Key(),
				"authoritative_id", a.Key())
			return nil
		}
	}

	kept := r.speculative[:0]
	for _, s := range r.speculative {
		if r.fingerprint(s) != fp && s.Key() != entity.Key() {
			kept = append(kept, s)
		}
	}
	r.speculative = append([]T{entity}, kept...)

	metrics.SpeculativeInserted.WithLabelValues(r.name).Inc()
	r.publishLocked()
	return nil
}

// ApplySnapshot replaces the authoritative set with the store's current
// matching set, retiring every speculative entity it supersedes.
func (r *Reconciler[T]) ApplySnapshot(items []T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	authoritative := make([]T, 0, len(items))
	ids := make(map[string]struct{}, len(items))
	fingerprints := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Speculative() {
			continue
		}
		if _, dup := ids[item.Key()]; dup {
			continue
		}
		ids[item.Key()] = struct{}{}
		fingerprints[r.fingerprint(item)] = struct{}{}
		authoritative = append(authoritative, item)
	}

	kept := make([]T, 0, len(r.speculative))
	for _, s := range r.speculative {
		if _, matched := fingerprints[r.fingerprint(s)]; matched {
			metrics.SpeculativeSuperseded.WithLabelValues(r.name).Inc()
			slog.Debug("Speculative entity superseded", "feed", r.name, "id", s.Key())
			continue
		}
		kept = append(kept, s)
	}
	r.speculative = kept

	// The initial load establishes the baseline; nothing in it is new.
	if r.initialized {
		for id := range ids {
			if _, known := r.knownIDs[id]; !known {
				r.highlighter.Mark(id)
				metrics.RecentlyArrived.WithLabelValues(r.name).Inc()
			}
		}
	}
	r.initialized = true
	r.knownIDs = ids
	r.authoritative = authoritative

	r.publishLocked()
}

// FailSpeculative retracts the speculative entity with the given id after its
// write failed. The entity is returned so the caller can restore the draft.
func (r *Reconciler[T]) FailSpeculative(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.closed {
		return zero, false
	}

	for i, s := range r.speculative {
		if s.Key() != id {
			continue
		}
		r.speculative = append(r.speculative[:i:i], r.speculative[i+1:]...)
		metrics.SpeculativeRetracted.WithLabelValues(r.name).Inc()
		r.publishLocked()
		return s, true
	}
	return zero, false
}

// Republish sends the current view to the listener again, for callers whose
// own state feeds into what the listener renders.
func (r *Reconciler[T]) Republish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.publishLocked()
}

// View returns the current merged state.
func (r *Reconciler[T]) View() View[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Close cancels all highlight timers and stops further mutation.
func (r *Reconciler[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.highlighter.Close()
}

func (r *Reconciler[T]) onHighlightExpired(_ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.publishLocked()
}

func (r *Reconciler[T]) viewLocked() View[T] {
	items := make([]T, 0, len(r.speculative)+len(r.authoritative))
	items = append(items, r.speculative...)
	items = append(items, r.authoritative...)

	// Speculative entries lead on equal timestamps.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Created().After(items[j].Created())
	})

	return View[T]{
		Items:           items,
		RecentlyArrived: r.highlighter.Set(),
	}
}

func (r *Reconciler[T]) publishLocked() {
	if r.onChange == nil {
		return
	}
	r.onChange(r.viewLocked())
}
