package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/metrics"
	"github.com/Veraticus/shopcompare/internal/service"
)

// DefaultQueue is the queue group shared by store servers, so several
// bridges can serve the same subjects.
const DefaultQueue = "shop-store"

// ServerOptions configures a Server.
type ServerOptions struct {
	Prefix string
	Queue  string
}

// Server answers store requests arriving over NATS.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	store  service.DocumentStore
	nc     *nats.Conn
	feeds  map[string]*scopeFeed
	prefix string
	queue  string
	subs   []*nats.Subscription
	mu     sync.Mutex
	closed bool
}

// scopeFeed is one store subscription fanned out to every client that asked
// for the same scope.
type scopeFeed struct {
	unsubscribe service.Unsubscribe
	subject     string
	collection  string
	docs        []documentMsg
	seq         uint64
	mu          sync.Mutex
	failed      bool
}

// NewServer creates a bridge for store on nc. Call Start to begin serving.
func NewServer(nc *nats.Conn, store service.DocumentStore, opts ServerOptions) *Server {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	return &Server{
		store:  store,
		nc:     nc,
		prefix: opts.Prefix,
		queue:  opts.Queue,
		feeds:  make(map[string]*scopeFeed),
	}
}

// Start registers the request handlers. Store subscriptions opened on behalf
// of clients live until Close or until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrClosed
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	handlers := map[string]func(context.Context, request) response{
		opFetch:     s.handleFetch,
		opGet:       s.handleGet,
		opWrite:     s.handleWrite,
		opPut:       s.handlePut,
		opUpdate:    s.handleUpdate,
		opSubscribe: s.handleSubscribe,
	}

	for op, handle := range handlers {
		sub, err := s.nc.QueueSubscribe(requestSubject(s.prefix, op), s.queue, func(msg *nats.Msg) {
			s.serve(op, msg, handle)
		})
		if err != nil {
			s.unsubscribeAllLocked()
			return fmt.Errorf("subscribe %s: %w", op, err)
		}
		s.subs = append(s.subs, sub)
	}

	if err := s.nc.Flush(); err != nil {
		s.unsubscribeAllLocked()
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	common.LogInfo("Store bridge started", common.Fields{
		"prefix": s.prefix,
		"queue":  s.queue,
	})
	return nil
}

func (s *Server) serve(op string, msg *nats.Msg, handle func(context.Context, request) response) {
	var req request
	var resp response
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		resp = response{Error: fmt.Sprintf("decode request: %v", err), Code: codeInvalid}
	} else {
		resp = handle(s.ctx, req)
	}

	result := "success"
	if resp.Error != "" {
		result = "failure"
		common.LogDebug("Store request failed", common.Fields{
			"operation": op,
			"error":     resp.Error,
		})
	}
	metrics.StoreRequests.WithLabelValues("serve_"+op, result).Inc()

	if err := msg.Respond(marshal(resp)); err != nil {
		common.LogWarn(err, "Failed to respond to store request", common.Fields{"operation": op})
	}
}

func (s *Server) handleFetch(ctx context.Context, req request) response {
	if req.Scope == nil {
		return response{Error: "missing scope", Code: codeInvalid}
	}
	docs, err := s.store.FetchOnce(ctx, req.Scope.scope())
	if err != nil {
		return errorResponse(err)
	}
	return response{Docs: encodeDocuments(docs)}
}

func (s *Server) handleGet(ctx context.Context, req request) response {
	doc, err := s.store.FetchByID(ctx, req.Collection, req.ID)
	if err != nil {
		return errorResponse(err)
	}
	if doc == nil {
		return response{}
	}
	msg := encodeDocument(*doc)
	return response{Doc: &msg}
}

func (s *Server) handleWrite(ctx context.Context, req request) response {
	id, err := s.store.Write(ctx, req.Collection, req.Data)
	if err != nil {
		return errorResponse(err)
	}
	return response{ID: id}
}

func (s *Server) handlePut(ctx context.Context, req request) response {
	if err := s.store.Put(ctx, req.Collection, req.ID, req.Data); err != nil {
		return errorResponse(err)
	}
	return response{ID: req.ID}
}

func (s *Server) handleUpdate(ctx context.Context, req request) response {
	if err := s.store.Update(ctx, req.Collection, req.ID, req.Data); err != nil {
		return errorResponse(err)
	}
	return response{ID: req.ID}
}

// handleSubscribe joins the caller to the scope's feed, opening the store
// subscription on first use, and returns the current snapshot.
func (s *Server) handleSubscribe(_ context.Context, req request) response {
	if req.Scope == nil {
		return response{Error: "missing scope", Code: codeInvalid}
	}
	scope := req.Scope.scope()
	subject, err := snapshotSubject(s.prefix, scope)
	if err != nil {
		return errorResponse(err)
	}

	feed, err := s.feed(scope, subject)
	if err != nil {
		return errorResponse(err)
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	return response{Subject: subject, Docs: feed.docs, Seq: feed.seq}
}

func (s *Server) feed(scope service.Scope, subject string) (*scopeFeed, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, common.ErrClosed
	}
	if feed, ok := s.feeds[subject]; ok {
		s.mu.Unlock()
		return feed, nil
	}
	feed := &scopeFeed{subject: subject, collection: scope.Collection}
	s.feeds[subject] = feed
	ctx := s.ctx
	s.mu.Unlock()

	unsub, err := s.store.Subscribe(ctx, scope,
		func(docs []service.Document) { s.publish(feed, docs) },
		func(err error) { s.fail(feed, err) },
	)
	if err != nil {
		s.mu.Lock()
		delete(s.feeds, subject)
		s.mu.Unlock()
		return nil, err
	}

	feed.mu.Lock()
	feed.unsubscribe = unsub
	feed.mu.Unlock()

	common.LogInfo("Opened scope feed", common.Fields{"scope": scope.String(), "subject": subject})
	return feed, nil
}

func (s *Server) publish(feed *scopeFeed, docs []service.Document) {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.failed {
		return
	}

	feed.seq++
	feed.docs = encodeDocuments(docs)
	if err := s.nc.Publish(feed.subject, marshal(snapshotMsg{Docs: feed.docs, Seq: feed.seq})); err != nil {
		common.LogWarn(err, "Failed to publish snapshot", common.Fields{"subject": feed.subject})
		return
	}
	metrics.SnapshotsPublished.WithLabelValues(feed.collection).Inc()
}

// fail tells listening clients the feed is gone. The next subscribe request
// for the scope opens a fresh store subscription.
func (s *Server) fail(feed *scopeFeed, cause error) {
	s.mu.Lock()
	if s.feeds[feed.subject] == feed {
		delete(s.feeds, feed.subject)
	}
	s.mu.Unlock()

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.failed {
		return
	}
	feed.failed = true
	feed.seq++

	common.LogWarn(cause, "Scope feed failed", common.Fields{"subject": feed.subject})
	if err := s.nc.Publish(feed.subject, marshal(snapshotMsg{Error: cause.Error(), Seq: feed.seq})); err != nil {
		common.LogWarn(err, "Failed to publish feed failure", common.Fields{"subject": feed.subject})
	}
}

// Feeds returns the number of open scope feeds.
func (s *Server) Feeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

// Close stops serving and releases every store subscription.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.unsubscribeAllLocked()
	feeds := s.feeds
	s.feeds = make(map[string]*scopeFeed)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	for _, feed := range feeds {
		feed.mu.Lock()
		feed.failed = true
		unsub := feed.unsubscribe
		feed.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}
	return nil
}

func (s *Server) unsubscribeAllLocked() {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	if err := errors.Join(errs...); err != nil {
		common.LogWarn(err, "Failed to release bridge subscriptions", nil)
	}
}

// EmbeddedBroker is an in-process NATS server for single-machine setups.
type EmbeddedBroker struct {
	server *server.Server
}

// StartEmbedded starts a NATS server on host:port. Port -1 picks a free port.
func StartEmbedded(host string, port int) (*EmbeddedBroker, error) {
	opts := &server.Options{
		ServerName: "shop-store",
		Host:       host,
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 8 * 1024 * 1024, // 8MB max message size
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	// Start in background
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}

	return &EmbeddedBroker{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (b *EmbeddedBroker) ClientURL() string {
	return b.server.ClientURL()
}

// Shutdown stops the broker and waits for it to exit.
func (b *EmbeddedBroker) Shutdown() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
