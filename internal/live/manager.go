// Package live keeps a local copy of a document-store query current.
//
// A Manager opens a push subscription when the device is online and falls
// back to one-shot reads and periodic recovery when the channel fails. Every
// accepted result is decoded, enriched with linked previews, sorted
// newest-first and handed to a single listener.
package live

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Default timings.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// State is the lifecycle state of a Manager.
type State int

// Manager states.
const (
	StateOffline State = iota
	StateSubscribing
	StateLive
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Codec turns store documents into entities. Link and Attach are optional;
// when both are set each entity may be enriched with the preview of the
// document it references.
type Codec[T model.Entity] struct {
	Decode func(service.Document) (T, error)
	Link   func(T) (collection, id string, ok bool)
	Attach func(T, model.LinkedPreview) T
}

// Update is what the listener receives. Refreshed is false when only the
// connection state changed and Items repeats the last accepted set.
type Update[T model.Entity] struct {
	Items     []T
	State     State
	IsLive    bool
	IsOnline  bool
	Refreshed bool
}

// Options configures a Manager.
type Options struct {
	Clock        clock.Clock
	Resolver     service.Resolver
	Name         string
	PollInterval time.Duration
	FetchTimeout time.Duration
	StartOffline bool
}

// Manager runs the subscription state machine for one scope.
type Manager[T model.Entity] struct {
	source       service.Source
	resolver     service.Resolver
	clock        clock.Clock
	ctx          context.Context
	cancel       context.CancelFunc
	listener     func(Update[T])
	unsubscribe  service.Unsubscribe
	recovery     clock.Timer
	codec        Codec[T]
	scope        service.Scope
	name         string
	items        []T
	pollInterval time.Duration
	fetchTimeout time.Duration
	generation   uint64
	issued       uint64
	applied      uint64
	state        State
	mu           sync.Mutex
	online       bool
	started      bool
}

// NewManager creates a manager for scope. Nothing happens until Start.
func NewManager[T model.Entity](source service.Source, scope service.Scope, codec Codec[T], opts Options) *Manager[T] {
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Name == "" {
		opts.Name = scope.Collection
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}

	return &Manager[T]{
		source:       source,
		resolver:     opts.Resolver,
		clock:        opts.Clock,
		codec:        codec,
		scope:        scope,
		name:         opts.Name,
		pollInterval: opts.PollInterval,
		fetchTimeout: opts.FetchTimeout,
		online:       !opts.StartOffline,
		state:        StateOffline,
	}
}

// OnUpdate registers the listener. Calls are serialized and happen while the
// manager's lock is held; the listener must not call back into the manager.
func (m *Manager[T]) OnUpdate(fn func(Update[T])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// Start begins delivering updates. Calling Start again, or after Close, has
// no effect.
func (m *Manager[T]) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	online := m.online
	m.mu.Unlock()

	common.LogInfo("Starting live feed", common.Fields{
		"feed":   m.name,
		"scope":  m.scope.String(),
		"online": online,
	})

	if online {
		m.subscribe()
		return
	}
	m.fallbackFetch()
}

// SetOnline reports a connectivity transition. Going offline releases the
// live channel and serves a one-shot read; coming back online subscribes
// again.
func (m *Manager[T]) SetOnline(online bool) {
	m.mu.Lock()
	if m.state == StateClosed || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	if !m.started {
		m.mu.Unlock()
		return
	}

	if online {
		m.stopRecoveryLocked()
		m.mu.Unlock()
		m.subscribe()
		return
	}

	m.generation++
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.stopRecoveryLocked()
	m.transitionLocked(StateOffline)
	m.publishLocked(false)
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.fallbackFetch()
}

// State returns the current lifecycle state.
func (m *Manager[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Items returns the last accepted, sorted entity set.
func (m *Manager[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.items...)
}

// Close releases the channel and cancels timers. Callbacks still in flight
// are discarded. Close is idempotent.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.generation++
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.stopRecoveryLocked()
	m.transitionLocked(StateClosed)
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *Manager[T]) subscribe() {
	m.mu.Lock()
	if m.state == StateClosed || !m.online {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	prev := m.unsubscribe
	m.unsubscribe = nil
	m.transitionLocked(StateSubscribing)
	m.publishLocked(false)
	ctx := m.ctx
	m.mu.Unlock()

	if prev != nil {
		prev()
	}

	unsub, err := m.source.Subscribe(ctx, m.scope,
		func(docs []service.Document) { m.handleSnapshot(gen, docs) },
		func(err error) { m.handleError(gen, err) },
	)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.handleError(gen, err)
		return
	}
	m.unsubscribe = unsub
	m.mu.Unlock()
}

func (m *Manager[T]) handleSnapshot(gen uint64, docs []service.Document) {
	m.mu.Lock()
	if gen != m.generation || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.issued++
	seq := m.issued
	ctx := m.ctx
	m.mu.Unlock()

	items := m.process(ctx, docs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.state == StateClosed || seq < m.applied {
		return
	}
	m.applied = seq
	m.items = items
	m.transitionLocked(StateLive)
	m.publishLocked(true)
}

func (m *Manager[T]) handleError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.generation++
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.transitionLocked(StateDegraded)
	m.publishLocked(false)
	m.scheduleRecoveryLocked()
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	if !errors.Is(err, common.ErrSubscriptionLost) {
		err = errors.Join(common.ErrSubscriptionLost, err)
	}
	common.LogWarn(err, "Live subscription failed, polling instead", common.Fields{
		"feed":  m.name,
		"scope": m.scope.String(),
	})

	m.fallbackFetch()
}

// fallbackFetch serves a one-shot read. A failed read leaves the last known
// set in place.
func (m *Manager[T]) fallbackFetch() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	m.issued++
	seq := m.issued
	parent := m.ctx
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, m.fetchTimeout)
	defer cancel()

	docs, err := m.source.FetchOnce(ctx, m.scope)
	if err != nil {
		metrics.FallbackFetches.WithLabelValues(m.name, "error").Inc()
		common.LogWarn(err, "Fallback fetch failed", common.Fields{
			"feed":  m.name,
			"scope": m.scope.String(),
		})
		return
	}
	metrics.FallbackFetches.WithLabelValues(m.name, "success").Inc()

	items := m.process(ctx, docs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || m.state == StateClosed || seq < m.applied {
		return
	}
	m.applied = seq
	m.items = items
	m.publishLocked(true)
}

func (m *Manager[T]) scheduleRecoveryLocked() {
	m.stopRecoveryLocked()
	m.recovery = m.clock.AfterFunc(m.pollInterval, m.recover)
}

func (m *Manager[T]) stopRecoveryLocked() {
	if m.recovery != nil {
		m.recovery.Stop()
		m.recovery = nil
	}
}

func (m *Manager[T]) recover() {
	m.mu.Lock()
	if m.state != StateDegraded || !m.online {
		m.mu.Unlock()
		return
	}
	m.recovery = nil
	m.mu.Unlock()

	common.LogDebug("Retrying live subscription", common.Fields{"feed": m.name})

	m.fallbackFetch()
	m.subscribe()
}

// process decodes, enriches and sorts a result set. Documents that fail to
// decode are skipped.
func (m *Manager[T]) process(ctx context.Context, docs []service.Document) []T {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := m.codec.Decode(normalizeDocument(doc))
		if err != nil {
			common.LogDebug("Skipping undecodable document", common.Fields{
				"feed":  m.name,
				"id":    doc.ID,
				"error": err.Error(),
			})
			continue
		}
		items = append(items, item)
	}

	if m.resolver != nil && m.codec.Link != nil && m.codec.Attach != nil {
		items = m.enrich(ctx, items)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Created().After(items[j].Created())
	})
	return items
}

type linkKey struct {
	collection string
	id         string
}

// enrich attaches linked previews. Each referenced document is read at most
// once per cycle; failures and missing documents leave the entity as is.
func (m *Manager[T]) enrich(ctx context.Context, items []T) []T {
	resolved := make(map[linkKey]*model.LinkedPreview)
	for i, item := range items {
		collection, id, ok := m.codec.Link(item)
		if !ok || id == "" {
			continue
		}
		key := linkKey{collection: collection, id: id}
		preview, seen := resolved[key]
		if !seen {
			preview = m.resolve(ctx, key)
			resolved[key] = preview
		}
		if preview != nil {
			items[i] = m.codec.Attach(item, *preview)
		}
	}
	return items
}

func (m *Manager[T]) resolve(ctx context.Context, key linkKey) *model.LinkedPreview {
	doc, err := m.resolver.FetchByID(ctx, key.collection, key.id)
	if err != nil {
		common.LogDebug("Linked document unavailable", common.Fields{
			"feed":       m.name,
			"collection": key.collection,
			"id":         key.id,
			"error":      err.Error(),
		})
		return nil
	}
	if doc == nil {
		return nil
	}
	preview := PreviewFromDocument(*doc)
	return &preview
}

// PreviewFromDocument builds the display preview of a linked document.
func PreviewFromDocument(doc service.Document) model.LinkedPreview {
	name := doc.String("name")
	if name == "" {
		name = doc.String("displayName")
	}
	return model.LinkedPreview{
		DisplayName: name,
		ImageURL:    doc.String("imageUrl"),
	}
}

func (m *Manager[T]) transitionLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	metrics.SubscriptionState.WithLabelValues(m.name).Set(float64(to))
	metrics.SubscriptionTransitions.WithLabelValues(m.name, from.String(), to.String()).Inc()
	common.LogInfo("Live feed state changed", common.Fields{
		"feed": m.name,
		"from": from.String(),
		"to":   to.String(),
	})
}

func (m *Manager[T]) publishLocked(refreshed bool) {
	if m.listener == nil {
		return
	}
	m.listener(Update[T]{
		Items:     append([]T(nil), m.items...),
		State:     m.state,
		IsLive:    m.state == StateLive,
		IsOnline:  m.online,
		Refreshed: refreshed,
	})
}
