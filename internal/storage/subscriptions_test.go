package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/service"
)

type snapshotLog struct {
	snapshots [][]service.Document
	errs      []error
	mu        sync.Mutex
}

func (l *snapshotLog) onSnapshot(docs []service.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, docs)
}

func (l *snapshotLog) onError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *snapshotLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snapshots)
}

func (l *snapshotLog) last() []service.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snapshots) == 0 {
		return nil
	}
	return l.snapshots[len(l.snapshots)-1]
}

func TestSubscribe_InitialSnapshotIsSynchronous(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Write(ctx, service.CollectionComments, map[string]any{"postId": "p1", "text": "first"})
	require.NoError(t, err)

	log := &snapshotLog{}
	unsub, err := store.Subscribe(ctx, service.Scope{Collection: service.CollectionComments}, log.onSnapshot, log.onError)
	require.NoError(t, err)
	defer unsub()

	require.Equal(t, 1, log.count())
	assert.Len(t, log.last(), 1)
}

func TestSubscribe_PushesAfterCommits(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	log := &snapshotLog{}
	scope := service.Scope{Collection: service.CollectionComments, Field: "postId", Value: "p1"}
	unsub, err := store.Subscribe(ctx, scope, log.onSnapshot, log.onError)
	require.NoError(t, err)
	defer unsub()
	require.Empty(t, log.last())

	id, err := store.Write(ctx, service.CollectionComments, map[string]any{"postId": "p1", "text": "hello"})
	require.NoError(t, err)
	require.Equal(t, 2, log.count())
	require.Len(t, log.last(), 1)
	assert.Equal(t, id, log.last()[0].ID)

	// Writes outside the scope still refresh the collection's subscribers,
	// but the snapshot content is unchanged.
	_, err = store.Write(ctx, service.CollectionComments, map[string]any{"postId": "p2", "text": "elsewhere"})
	require.NoError(t, err)
	assert.Len(t, log.last(), 1)

	// Other collections do not notify.
	before := log.count()
	_, err = store.Write(ctx, service.CollectionPosts, map[string]any{"title": "t"})
	require.NoError(t, err)
	assert.Equal(t, before, log.count())

	require.NoError(t, store.Update(ctx, service.CollectionComments, id, map[string]any{"text": "edited"}))
	assert.Equal(t, "edited", log.last()[0].String("text"))

	require.NoError(t, store.Delete(ctx, service.CollectionComments, id))
	assert.Empty(t, log.last())
	assert.Empty(t, log.errs)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	log := &snapshotLog{}
	unsub, err := store.Subscribe(ctx, service.Scope{Collection: service.CollectionPosts}, log.onSnapshot, log.onError)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Subscribers())

	unsub()
	unsub()
	assert.Equal(t, 0, store.Subscribers())

	_, err = store.Write(ctx, service.CollectionPosts, map[string]any{"title": "t"})
	require.NoError(t, err)
	assert.Equal(t, 1, log.count())
}

func TestSubscribe_ContextCancelUnsubscribes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	log := &snapshotLog{}
	_, err := store.Subscribe(ctx, service.Scope{Collection: service.CollectionPosts}, log.onSnapshot, log.onError)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribe_CancelledContext(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := &snapshotLog{}
	unsub, err := store.Subscribe(ctx, service.Scope{Collection: service.CollectionPosts}, log.onSnapshot, log.onError)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, unsub)
	assert.Equal(t, 0, store.Subscribers())
	assert.Equal(t, 0, log.count())

	_, err = store.Write(context.Background(), service.CollectionPosts, map[string]any{"title": "t"})
	require.NoError(t, err)
	assert.Equal(t, 0, log.count())
}

func TestSubscribe_Errors(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Subscribe(ctx, service.Scope{Collection: service.CollectionPosts}, nil, nil)
	assert.ErrorIs(t, err, ErrNilParameter)

	_, err = store.Subscribe(ctx, service.Scope{}, func([]service.Document) {}, nil)
	assert.ErrorIs(t, err, ErrEmptyString)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Subscribe(ctx, service.Scope{Collection: service.CollectionPosts}, func([]service.Document) {}, nil)
	assert.ErrorIs(t, err, common.ErrClosed)
}

func TestSubscribe_CloseDropsSubscribers(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	log := &snapshotLog{}
	_, err := store.Subscribe(context.Background(), service.Scope{Collection: service.CollectionPosts}, log.onSnapshot, log.onError)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.Equal(t, 0, store.Subscribers())
}
