package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

var errBoom = errors.New("boom")

type fakeSource struct {
	onSnapshot   service.SnapshotFunc
	onError      service.ErrorFunc
	fetchErr     error
	subscribeErr error
	docs         []service.Document
	fetches      int
	subscribes   int
	unsubscribes int
	mu           sync.Mutex
}

func (s *fakeSource) FetchOnce(_ context.Context, _ service.Scope) ([]service.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return append([]service.Document(nil), s.docs...), nil
}

func (s *fakeSource) Subscribe(_ context.Context, _ service.Scope, onSnapshot service.SnapshotFunc, onError service.ErrorFunc) (service.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.onSnapshot = onSnapshot
	s.onError = onError
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.unsubscribes++
			s.mu.Unlock()
		})
	}, nil
}

func (s *fakeSource) push(docs ...service.Document) {
	s.mu.Lock()
	fn := s.onSnapshot
	s.mu.Unlock()
	fn(docs)
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	fn(err)
}

func (s *fakeSource) counts() (fetches, subscribes, unsubscribes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.subscribes, s.unsubscribes
}

type fakeResolver struct {
	docs  map[string]*service.Document
	errs  map[string]error
	calls map[string]int
	mu    sync.Mutex
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		docs:  make(map[string]*service.Document),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (r *fakeResolver) FetchByID(_ context.Context, _, id string) (*service.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
	if err := r.errs[id]; err != nil {
		return nil, err
	}
	return r.docs[id], nil
}

func reviewCodec() Codec[model.Review] {
	return Codec[model.Review]{
		Decode: func(d service.Document) (model.Review, error) {
			if d.String("text") == "" {
				return model.Review{}, errors.New("missing text")
			}
			return model.Review{
				ID:        d.ID,
				Text:      d.String("text"),
				ProductID: d.String("productId"),
				Rating:    d.Int("rating"),
				CreatedAt: d.Time(service.FieldCreatedAt),
			}, nil
		},
		Link: func(r model.Review) (string, string, bool) {
			return service.CollectionProducts, r.ProductID, r.ProductID != ""
		},
		Attach: func(r model.Review, p model.LinkedPreview) model.Review {
			r.Product = &p
			return r
		},
	}
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func reviewDoc(id, text string, minute int) service.Document {
	return service.Document{
		ID:         id,
		Collection: service.CollectionReviews,
		Fields: map[string]any{
			"text":                text,
			"rating":              4,
			service.FieldCreatedAt: model.NewTimestamp(base.Add(time.Duration(minute) * time.Minute)),
		},
	}
}

type recorder struct {
	updates []Update[model.Review]
	mu      sync.Mutex
}

func (r *recorder) record(u Update[model.Review]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) last(t *testing.T) Update[model.Review] {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.updates)
	return r.updates[len(r.updates)-1]
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func ids(items []model.Review) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

type harness struct {
	src   *fakeSource
	clk   *clock.Fake
	rec   *recorder
	mgr   *Manager[model.Review]
	res   *fakeResolver
	scope service.Scope
}

func newHarness(t *testing.T, offline bool) *harness {
	t.Helper()
	h := &harness{
		src:   &fakeSource{},
		clk:   clock.NewFake(base),
		rec:   &recorder{},
		res:   newFakeResolver(),
		scope: service.Scope{Collection: service.CollectionReviews},
	}
	h.mgr = NewManager(h.src, h.scope, reviewCodec(), Options{
		Clock:        h.clk,
		Resolver:     h.res,
		Name:         "test-reviews",
		PollInterval: 5 * time.Second,
		StartOffline: offline,
	})
	h.mgr.OnUpdate(h.rec.record)
	t.Cleanup(h.mgr.Close)
	return h
}

func TestManager_FirstSnapshotGoesLive(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())

	assert.Equal(t, StateSubscribing, h.mgr.State())
	first := h.rec.last(t)
	assert.False(t, first.IsLive)
	assert.True(t, first.IsOnline)

	h.src.push(reviewDoc("a", "old", 1), reviewDoc("b", "new", 5), reviewDoc("c", "mid", 3))

	update := h.rec.last(t)
	assert.Equal(t, StateLive, update.State)
	assert.True(t, update.IsLive)
	assert.True(t, update.Refreshed)
	assert.Equal(t, []string{"b", "c", "a"}, ids(update.Items))
	assert.Equal(t, base.Add(5*time.Minute), update.Items[0].CreatedAt)
}

func TestManager_NormalizesTimestampRepresentations(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())

	docs := []service.Document{
		{ID: "rfc", Fields: map[string]any{"text": "x", service.FieldCreatedAt: base.Add(2 * time.Minute).Format(time.RFC3339)}},
		{ID: "millis", Fields: map[string]any{"text": "x", service.FieldCreatedAt: float64(base.Add(4 * time.Minute).UnixMilli())}},
		{ID: "map", Fields: map[string]any{"text": "x", service.FieldCreatedAt: map[string]any{
			"seconds":     float64(base.Add(3 * time.Minute).Unix()),
			"nanoseconds": float64(0),
		}}},
		{ID: "native", Fields: map[string]any{"text": "x", service.FieldCreatedAt: base.Add(time.Minute)}},
		{ID: "missing", Fields: map[string]any{"text": "x"}},
	}
	h.src.push(docs...)

	update := h.rec.last(t)
	assert.Equal(t, []string{"millis", "map", "rfc", "native", "missing"}, ids(update.Items))
	assert.True(t, update.Items[4].CreatedAt.IsZero())
}

func TestManager_SkipsUndecodableDocuments(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())

	h.src.push(reviewDoc("a", "fine", 1), reviewDoc("b", "", 2))

	assert.Equal(t, []string{"a"}, ids(h.rec.last(t).Items))
}

func TestManager_ResolvesLinksOncePerCycle(t *testing.T) {
	h := newHarness(t, false)
	h.res.docs["p1"] = &service.Document{
		ID:         "p1",
		Collection: service.CollectionProducts,
		Fields:     map[string]any{"name": "Oat Milk", "imageUrl": "https://img/oat.png"},
	}
	h.res.errs["p2"] = errBoom
	h.mgr.Start(context.Background())

	withProduct := func(doc service.Document, productID string) service.Document {
		doc.Fields["productId"] = productID
		return doc
	}
	h.src.push(
		withProduct(reviewDoc("a", "one", 1), "p1"),
		withProduct(reviewDoc("b", "two", 2), "p1"),
		withProduct(reviewDoc("c", "three", 3), "p2"),
		withProduct(reviewDoc("d", "four", 4), "p3"),
		reviewDoc("e", "five", 5),
	)

	items := h.rec.last(t).Items
	require.Len(t, items, 5)
	byID := make(map[string]model.Review)
	for _, item := range items {
		byID[item.ID] = item
	}

	require.NotNil(t, byID["a"].Product)
	assert.Equal(t, model.LinkedPreview{DisplayName: "Oat Milk", ImageURL: "https://img/oat.png"}, *byID["a"].Product)
	require.NotNil(t, byID["b"].Product)
	assert.Nil(t, byID["c"].Product, "resolver error leaves the entity unenriched")
	assert.Nil(t, byID["d"].Product, "missing link target leaves the entity unenriched")
	assert.Nil(t, byID["e"].Product)

	assert.Equal(t, 1, h.res.calls["p1"])
	assert.Equal(t, 1, h.res.calls["p2"])
	assert.Equal(t, 1, h.res.calls["p3"])
}

func TestManager_ErrorDegradesAndFallsBack(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.push(reviewDoc("a", "one", 1))

	h.src.mu.Lock()
	h.src.docs = []service.Document{reviewDoc("a", "one", 1), reviewDoc("b", "two", 2)}
	h.src.mu.Unlock()

	h.src.fail(errBoom)

	assert.Equal(t, StateDegraded, h.mgr.State())
	fetches, subscribes, unsubscribes := h.src.counts()
	assert.Equal(t, 1, fetches, "immediate fallback fetch")
	assert.Equal(t, 1, subscribes)
	assert.Equal(t, 1, unsubscribes, "failed channel released")

	update := h.rec.last(t)
	assert.False(t, update.IsLive)
	assert.Equal(t, StateDegraded, update.State)
	assert.Equal(t, []string{"b", "a"}, ids(update.Items))
	assert.Equal(t, 1, h.clk.Pending(), "recovery scheduled")
}

func TestManager_RecoveryResubscribes(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.push(reviewDoc("a", "one", 1))
	h.src.fail(errBoom)

	h.clk.Advance(5 * time.Second)

	fetches, subscribes, _ := h.src.counts()
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 2, subscribes)
	assert.Equal(t, StateSubscribing, h.mgr.State())

	h.src.push(reviewDoc("a", "one", 1), reviewDoc("c", "three", 3))
	update := h.rec.last(t)
	assert.True(t, update.IsLive)
	assert.Equal(t, []string{"c", "a"}, ids(update.Items))
}

func TestManager_RecoveryKeepsPollingWhileSubscribeFails(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.fail(errBoom)

	h.src.mu.Lock()
	h.src.subscribeErr = errBoom
	h.src.mu.Unlock()

	h.clk.Advance(5 * time.Second)
	assert.Equal(t, StateDegraded, h.mgr.State())
	h.clk.Advance(5 * time.Second)

	fetches, subscribes, _ := h.src.counts()
	assert.Equal(t, 3, subscribes)
	// one immediate fetch per failure plus one per recovery tick
	assert.Equal(t, 5, fetches)
	assert.Equal(t, 1, h.clk.Pending())
}

func TestManager_StaleCallbacksIgnoredAfterError(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())

	h.src.mu.Lock()
	staleSnapshot := h.src.onSnapshot
	h.src.mu.Unlock()

	h.src.fail(errBoom)
	before := h.rec.len()

	staleSnapshot([]service.Document{reviewDoc("z", "late", 9)})

	assert.Equal(t, before, h.rec.len())
	assert.Equal(t, StateDegraded, h.mgr.State())
}

func TestManager_FailedFallbackKeepsLastSet(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.push(reviewDoc("a", "one", 1))

	h.src.mu.Lock()
	h.src.fetchErr = errBoom
	h.src.mu.Unlock()

	h.src.fail(errBoom)

	assert.Equal(t, []string{"a"}, ids(h.mgr.Items()))
	assert.Equal(t, []string{"a"}, ids(h.rec.last(t).Items))
}

func TestManager_StartOfflineFetchesOnce(t *testing.T) {
	h := newHarness(t, true)
	h.src.docs = []service.Document{reviewDoc("a", "one", 1)}
	h.mgr.Start(context.Background())

	fetches, subscribes, _ := h.src.counts()
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 0, subscribes)
	assert.Equal(t, StateOffline, h.mgr.State())

	update := h.rec.last(t)
	assert.False(t, update.IsOnline)
	assert.False(t, update.IsLive)
	assert.Equal(t, []string{"a"}, ids(update.Items))
}

func TestManager_ConnectivityTransitions(t *testing.T) {
	h := newHarness(t, true)
	h.mgr.Start(context.Background())

	h.mgr.SetOnline(true)
	_, subscribes, _ := h.src.counts()
	assert.Equal(t, 1, subscribes)
	assert.Equal(t, StateSubscribing, h.mgr.State())
	h.src.push(reviewDoc("a", "one", 1))
	assert.Equal(t, StateLive, h.mgr.State())

	h.mgr.SetOnline(false)
	fetches, _, unsubscribes := h.src.counts()
	assert.Equal(t, 1, unsubscribes)
	assert.Equal(t, 2, fetches)
	assert.Equal(t, StateOffline, h.mgr.State())
	assert.False(t, h.rec.last(t).IsOnline)

	// Repeating the same connectivity state is a no-op.
	h.mgr.SetOnline(false)
	fetches, _, _ = h.src.counts()
	assert.Equal(t, 2, fetches)

	h.mgr.SetOnline(true)
	_, subscribes, _ = h.src.counts()
	assert.Equal(t, 2, subscribes)
}

func TestManager_OfflineCancelsRecovery(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.fail(errBoom)
	require.Equal(t, 1, h.clk.Pending())

	h.mgr.SetOnline(false)
	assert.Equal(t, 0, h.clk.Pending())

	h.clk.Advance(time.Minute)
	_, subscribes, _ := h.src.counts()
	assert.Equal(t, 1, subscribes)
}

func TestManager_CloseIsFinal(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.push(reviewDoc("a", "one", 1))

	h.mgr.Close()
	h.mgr.Close()

	_, _, unsubscribes := h.src.counts()
	assert.Equal(t, 1, unsubscribes)
	assert.Equal(t, StateClosed, h.mgr.State())
	before := h.rec.len()

	h.src.push(reviewDoc("b", "two", 2))
	h.src.fail(errBoom)
	h.mgr.SetOnline(false)
	h.mgr.Start(context.Background())

	assert.Equal(t, before, h.rec.len())
	assert.Equal(t, 0, h.clk.Pending())
}

func TestManager_CloseCancelsRecoveryTimer(t *testing.T) {
	h := newHarness(t, false)
	h.mgr.Start(context.Background())
	h.src.fail(errBoom)
	require.Equal(t, 1, h.clk.Pending())

	h.mgr.Close()
	assert.Equal(t, 0, h.clk.Pending())
}

func TestManager_SubscribeErrorDegrades(t *testing.T) {
	h := newHarness(t, false)
	h.src.subscribeErr = errBoom
	h.src.docs = []service.Document{reviewDoc("a", "one", 1)}
	h.mgr.Start(context.Background())

	assert.Equal(t, StateDegraded, h.mgr.State())
	assert.Equal(t, []string{"a"}, ids(h.mgr.Items()))
}

func TestState_String(t *testing.T) {
	tests := []struct {
		want  string
		state State
	}{
		{"offline", StateOffline},
		{"subscribing", StateSubscribing},
		{"live", StateLive},
		{"degraded", StateDegraded},
		{"closed", StateClosed},
		{"unknown", State(42)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
