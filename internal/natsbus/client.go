package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/service"
)

// Client defaults.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultReconnectWait  = 2 * time.Second
)

// ClientOptions configures a Client.
type ClientOptions struct {
	Prefix         string
	Name           string
	RequestTimeout time.Duration
	ReconnectWait  time.Duration
}

func (o *ClientOptions) applyDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Name == "" {
		o.Name = "store-client"
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = DefaultReconnectWait
	}
}

// Client is a service.DocumentStore backed by a remote Server.
type Client struct {
	nc        *nats.Conn
	breaker   *gobreaker.CircuitBreaker[*response]
	subs      map[uint64]*remoteSub
	listeners []func(online bool)
	prefix    string
	name      string
	timeout   time.Duration
	nextID    uint64
	mu        sync.Mutex
	ownsConn  bool
	closed    bool
}

// Dial connects to url and returns a client that owns the connection. The
// connection retries forever; connectivity changes are reported through
// OnConnectivity.
func Dial(url string, opts ClientOptions) (*Client, error) {
	opts.applyDefaults()

	nc, err := nats.Connect(url,
		nats.Name(opts.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(opts.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	c := NewClient(nc, opts)
	c.ownsConn = true
	return c, nil
}

// NewClient wraps an existing connection. It installs the connection's
// disconnect, reconnect and closed handlers.
func NewClient(nc *nats.Conn, opts ClientOptions) *Client {
	opts.applyDefaults()

	c := &Client{
		nc:      nc,
		subs:    make(map[uint64]*remoteSub),
		prefix:  opts.Prefix,
		name:    opts.Name,
		timeout: opts.RequestTimeout,
	}
	c.breaker = newBreaker(opts.Name)

	nc.SetDisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err == nil {
			err = errors.New("connection lost")
		}
		go c.connectionLost(err)
	})
	nc.SetReconnectHandler(func(_ *nats.Conn) {
		common.LogInfo("Store connection restored", common.Fields{"client": c.name})
		go c.notifyConnectivity(true)
	})
	nc.SetClosedHandler(func(_ *nats.Conn) {
		go c.connectionLost(nats.ErrConnectionClosed)
	})

	return c
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*response] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			common.LogInfo("Store circuit breaker state changed", common.Fields{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// OnConnectivity registers fn to be called on every connectivity transition.
func (c *Client) OnConnectivity(fn func(online bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Online reports whether the connection is currently up.
func (c *Client) Online() bool {
	return c.nc.IsConnected()
}

func (c *Client) notifyConnectivity(online bool) {
	c.mu.Lock()
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// connectionLost fails every open subscription, then reports the device as
// offline.
func (c *Client) connectionLost(cause error) {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[uint64]*remoteSub)
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		common.LogWarn(cause, "Store connection lost", common.Fields{
			"client":        c.name,
			"subscriptions": len(subs),
		})
	}

	for _, sub := range subs {
		sub.fail(fmt.Errorf("%w: %w", common.ErrSubscriptionLost, cause))
	}

	if !closed {
		c.notifyConnectivity(false)
	}
}

// request performs one round trip. Transport failures count against the
// circuit breaker; application errors in the response do not.
func (c *Client) request(ctx context.Context, op string, req request) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.nc.IsConnected() {
		metrics.StoreRequests.WithLabelValues(op, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s", common.ErrOffline, op)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.breaker.Execute(func() (*response, error) {
		msg, reqErr := c.nc.RequestWithContext(ctx, requestSubject(c.prefix, op), data)
		if reqErr != nil {
			return nil, reqErr
		}
		var out response
		if decodeErr := json.Unmarshal(msg.Data, &out); decodeErr != nil {
			return nil, fmt.Errorf("decode %s response: %w", op, decodeErr)
		}
		return &out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.StoreRequests.WithLabelValues(op, "rejected").Inc()
			return nil, fmt.Errorf("%w: %s: %w", common.ErrOffline, op, err)
		}
		metrics.StoreRequests.WithLabelValues(op, "failure").Inc()
		return nil, &common.RetryableError{Err: fmt.Errorf("%s request: %w", op, err), Retryable: true}
	}

	if appErr := resp.err(); appErr != nil {
		metrics.StoreRequests.WithLabelValues(op, "failure").Inc()
		return nil, appErr
	}
	metrics.StoreRequests.WithLabelValues(op, "success").Inc()
	return resp, nil
}

// FetchOnce implements service.Fetcher.
func (c *Client) FetchOnce(ctx context.Context, scope service.Scope) ([]service.Document, error) {
	msg := toScopeMsg(scope)
	resp, err := c.request(ctx, opFetch, request{Scope: &msg})
	if err != nil {
		return nil, err
	}
	return decodeDocuments(resp.Docs), nil
}

// FetchByID implements service.Resolver.
func (c *Client) FetchByID(ctx context.Context, collection, id string) (*service.Document, error) {
	resp, err := c.request(ctx, opGet, request{Collection: collection, ID: id})
	if err != nil {
		return nil, err
	}
	if resp.Doc == nil {
		return nil, nil
	}
	doc := resp.Doc.document()
	return &doc, nil
}

// Write implements service.Writer.
func (c *Client) Write(ctx context.Context, collection string, data map[string]any) (string, error) {
	resp, err := c.request(ctx, opWrite, request{Collection: collection, Data: data})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Put implements service.Writer.
func (c *Client) Put(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := c.request(ctx, opPut, request{Collection: collection, ID: id, Data: data})
	return err
}

// Update implements service.Writer.
func (c *Client) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	_, err := c.request(ctx, opUpdate, request{Collection: collection, ID: id, Data: patch})
	return err
}

// Subscribe implements service.Subscriber. The initial snapshot is delivered
// before Subscribe returns.
func (c *Client) Subscribe(ctx context.Context, scope service.Scope, onSnapshot service.SnapshotFunc, onError service.ErrorFunc) (service.Unsubscribe, error) {
	if onSnapshot == nil {
		return nil, errors.New("onSnapshot is required")
	}
	if onError == nil {
		onError = func(error) {}
	}

	subject, err := snapshotSubject(c.prefix, scope)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, common.ErrClosed
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	sub := &remoteSub{onSnapshot: onSnapshot, onError: onError}
	// The handler may fire before Subscribe returns; it blocks on sub.mu
	// until natsSub is set.
	sub.mu.Lock()
	natsSub, err := c.nc.Subscribe(subject, sub.handle)
	if err != nil {
		sub.mu.Unlock()
		return nil, fmt.Errorf("%w: subscribe %s: %w", common.ErrSubscriptionLost, subject, err)
	}
	sub.natsSub = natsSub
	sub.mu.Unlock()

	msg := toScopeMsg(scope)
	resp, err := c.request(ctx, opSubscribe, request{Scope: &msg})
	if err != nil {
		_ = natsSub.Unsubscribe()
		return nil, err
	}

	c.mu.Lock()
	c.subs[id] = sub
	c.mu.Unlock()

	sub.deliver(resp.Seq, resp.Docs)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			sub.stop()
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

// Close releases every subscription and, when the client dialed the
// connection itself, drains it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[uint64]*remoteSub)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	if !c.ownsConn {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		// A connection that is down or reconnecting cannot drain.
		c.nc.Close()
		if !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrConnectionReconnecting) {
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}

// remoteSub delivers pushed snapshots in sequence order, dropping any that
// arrive after a newer one.
type remoteSub struct {
	onSnapshot service.SnapshotFunc
	onError    service.ErrorFunc
	natsSub    *nats.Subscription
	lastSeq    uint64
	mu         sync.Mutex
	delivered  bool
	done       bool
}

func (s *remoteSub) handle(msg *nats.Msg) {
	var snap snapshotMsg
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		s.fail(fmt.Errorf("%w: decode snapshot: %w", common.ErrSubscriptionLost, err))
		return
	}
	if snap.Error != "" {
		s.fail(fmt.Errorf("%w: %s", common.ErrSubscriptionLost, snap.Error))
		return
	}
	s.deliver(snap.Seq, snap.Docs)
}

func (s *remoteSub) deliver(seq uint64, docs []documentMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || (s.delivered && seq <= s.lastSeq) {
		return
	}
	s.delivered = true
	s.lastSeq = seq
	s.onSnapshot(decodeDocuments(docs))
}

func (s *remoteSub) fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	natsSub := s.natsSub
	s.mu.Unlock()

	if natsSub != nil {
		_ = natsSub.Unsubscribe()
	}
	s.onError(err)
}

func (s *remoteSub) stop() {
	s.mu.Lock()
	s.done = true
	natsSub := s.natsSub
	s.mu.Unlock()
	if natsSub != nil {
		_ = natsSub.Unsubscribe()
	}
}

var _ service.DocumentStore = (*Client)(nil)
