package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Veraticus/shopcompare/internal/cache"
	"github.com/Veraticus/shopcompare/internal/catalog"
	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/config"
	"github.com/Veraticus/shopcompare/internal/feed"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/natsbus"
	"github.com/Veraticus/shopcompare/internal/service"
	"github.com/Veraticus/shopcompare/internal/storage"
)

// openDatabase opens the local database, creating its directory if needed.
func openDatabase(cfg config.Config) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return storage.NewSQLiteStorage(cfg.DatabasePath)
}

// initStorage opens the local database and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// catalogEnv bundles the catalog with the resources it holds open.
type catalogEnv struct {
	store   *storage.SQLiteStorage
	cache   *cache.TTLCache[[]model.Product]
	catalog *catalog.Service
}

func openCatalog(ctx context.Context) (*catalogEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := cache.New[[]model.Product](cfg.CacheTTL, clock.NewReal())
	return &catalogEnv{store: store, cache: c, catalog: catalog.New(store, c)}, nil
}

func (e *catalogEnv) Close() {
	e.cache.Close()
	_ = e.store.Close()
}

// feedEnv is the store a feed runs against: the local database, or a
// remote bridge when --remote is set.
type feedEnv struct {
	store    feed.Store
	resolver service.Resolver
	remote   *natsbus.Client
	cache    *cache.TTLCache[service.Document]
	options  feed.Options
	closer   func()
}

func openFeedEnv(ctx context.Context, remote bool) (*feedEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	previews := cache.New[service.Document](cfg.CacheTTL, clock.NewReal())
	env := &feedEnv{
		cache: previews,
		options: feed.Options{
			HighlightWindow: cfg.HighlightWindow,
			PollInterval:    cfg.PollInterval,
		},
	}

	if remote {
		client, err := natsbus.Dial(cfg.NATSURL, natsbus.ClientOptions{Prefix: cfg.NATSPrefix, Name: "shop-cli"})
		if err != nil {
			previews.Close()
			return nil, err
		}
		env.store = client
		env.remote = client
		env.resolver = cache.NewResolver(client, previews, "previews")
		env.options.StartOffline = !client.Online()
		env.closer = func() { _ = client.Close() }
	} else {
		store, err := initStorage(ctx, cfg)
		if err != nil {
			previews.Close()
			return nil, err
		}
		env.store = store
		env.resolver = cache.NewResolver(store, previews, "previews")
		env.closer = func() { _ = store.Close() }
	}

	env.options.Resolver = env.resolver
	return env, nil
}

// follow forwards the remote connection's state to f.
func (e *feedEnv) follow(f interface{ SetOnline(bool) }) {
	if e.remote != nil {
		e.remote.OnConnectivity(f.SetOnline)
	}
}

func (e *feedEnv) Close() {
	e.closer()
	e.cache.Close()
}
