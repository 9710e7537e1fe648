package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/service"
)

type subscription struct {
	onSnapshot service.SnapshotFunc
	onError    service.ErrorFunc
	release    func() bool
	scope      service.Scope
	mu         sync.Mutex // serializes deliveries
	stopped    bool
}

func (sub *subscription) stop() {
	sub.mu.Lock()
	sub.stopped = true
	release := sub.release
	sub.mu.Unlock()
	if release != nil {
		release()
	}
}

// Subscribe delivers the current matching set synchronously, then a fresh
// snapshot after every committed change to the scope's collection. The
// subscription ends when the returned function is called or ctx is done.
func (s *SQLiteStorage) Subscribe(ctx context.Context, scope service.Scope, onSnapshot service.SnapshotFunc, onError service.ErrorFunc) (service.Unsubscribe, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if onSnapshot == nil {
		return nil, fmt.Errorf("%w: onSnapshot", ErrNilParameter)
	}
	if onError == nil {
		onError = func(error) {}
	}

	sub := &subscription{
		scope:      scope,
		onSnapshot: onSnapshot,
		onError:    onError,
	}

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		return nil, common.ErrClosed
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	s.subsMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			sub.stop()
		})
	}
	// Held until the initial snapshot is delivered, so a cancellation that
	// fires early waits for release to be set.
	sub.mu.Lock()
	sub.release = context.AfterFunc(ctx, unsubscribe)
	if err := ctx.Err(); err != nil {
		sub.mu.Unlock()
		unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", scope, err)
	}

	docs, err := s.fetchTx(ctx, s.db, scope)
	if err != nil {
		sub.mu.Unlock()
		unsubscribe()
		return nil, fmt.Errorf("%w: initial snapshot of %s: %w", common.ErrSubscriptionLost, scope, err)
	}
	onSnapshot(docs)
	sub.mu.Unlock()

	common.LogDebug("Subscription opened", common.Fields{"scope": scope.String(), "id": id})
	return unsubscribe, nil
}

// notify pushes a fresh snapshot to every subscription on collection. A
// subscription whose snapshot cannot be read is failed and dropped.
func (s *SQLiteStorage) notify(ctx context.Context, collection string) {
	s.subsMu.Lock()
	targets := make(map[uint64]*subscription)
	for id, sub := range s.subs {
		if sub.scope.Collection == collection {
			targets[id] = sub
		}
	}
	s.subsMu.Unlock()

	// Deliveries must not be cut short by the writer's deadline.
	ctx = context.WithoutCancel(ctx)

	for id, sub := range targets {
		sub.mu.Lock()
		if sub.stopped {
			sub.mu.Unlock()
			continue
		}

		docs, err := s.fetchTx(ctx, s.db, sub.scope)
		if err != nil {
			sub.stopped = true
			sub.mu.Unlock()

			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()

			common.LogWarn(err, "Dropping subscription after failed snapshot", common.Fields{
				"scope": sub.scope.String(),
			})
			sub.onError(fmt.Errorf("%w: %w", common.ErrSubscriptionLost, err))
			continue
		}

		sub.onSnapshot(docs)
		sub.mu.Unlock()
	}
}

// Subscribers returns the number of open subscriptions.
func (s *SQLiteStorage) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}
