package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/tripchat/internal/config"
	httpadapter "github.com/aretw0/tripchat/pkg/adapters/http"
	"github.com/aretw0/tripchat/pkg/adapters/file"
	"github.com/aretw0/tripchat/pkg/adapters/memory"
	"github.com/aretw0/tripchat/pkg/adapters/redis"
	"github.com/aretw0/tripchat/pkg/adapters/tiered"
	"github.com/aretw0/tripchat/pkg/cache"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/observability"
	"github.com/aretw0/tripchat/pkg/persistence/middleware"
	"github.com/aretw0/tripchat/pkg/ports"
	"github.com/aretw0/tripchat/pkg/registry"
	"github.com/aretw0/tripchat/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// Redis key spaces under the configured prefix.
const (
	kvPrefix   = "kv:"
	lockPrefix = "lock:"
)

// App is a wired session manager and everything it owns.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Sessions *session.Manager
	Streams  *httpadapter.StreamManager
	Metrics  *prometheus.Registry

	autosave *session.AutoSaver
	closers  []func() error
}

// NewApp builds the store stack and the session manager described by cfg.
// Extra lifecycle hooks run after the built-in logging and metrics hooks.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger, extra ...domain.LifecycleHooks) (_ *App, err error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Streams: httpadapter.NewStreamManager(),
		Metrics: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = app.Close(ctx)
		}
	}()

	app.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(app.Metrics)

	store, locker, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithHooks(func(ns registry.NamespaceID) cache.Hooks {
			return metrics.CacheHooks(ns)
		}),
	}
	if len(cfg.Store.Redact) > 0 {
		regOpts = append(regOpts, registry.WithPersistFilter(middleware.NewRedactor(cfg.Store.Redact)))
	}
	app.Registry = registry.New(store, regOpts...)
	app.closers = append(app.closers, func() error {
		app.Registry.Close()
		return nil
	})
	for _, p := range cfg.Policies() {
		if err := app.Registry.Register(ctx, p); err != nil {
			return nil, fmt.Errorf("register %s: %w", p.Namespace, err)
		}
	}

	hooks := append([]domain.LifecycleHooks{
		observability.LoggingHooks(logger),
		metrics.LifecycleHooks(),
		app.Streams.Hooks(),
	}, extra...)
	opts := []session.Option{
		session.WithConfig(cfg.Session),
		session.WithLogger(logger),
		session.WithLifecycleHooks(observability.Combine(hooks...)),
	}
	if locker != nil {
		opts = append(opts, session.WithLocker(locker))
	}
	app.Sessions = session.NewManager(app.Registry, opts...)
	if err := app.Sessions.Init(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// openStore builds the backend, its middleware and the optional L1 tier.
func (app *App) openStore(ctx context.Context) (ports.KeyValueStore, ports.DistributedLocker, error) {
	cfg := app.Config.Store

	var (
		store  ports.KeyValueStore
		locker ports.DistributedLocker
	)
	switch cfg.Backend {
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendFile:
		store = file.New(cfg.Dir)
	case config.BackendRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := redis.NewFromClient(client, redis.WithPrefix(cfg.Redis.Prefix+kvPrefix), redis.WithTTL(cfg.Redis.TTL))
		app.closers = append(app.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		if cfg.Redis.Lock {
			locker = redis.NewLocker(client, cfg.Redis.Prefix+lockPrefix)
		}
		store = rs
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	mws := []middleware.Middleware{middleware.NewMetricsMiddleware(app.Metrics)}
	if cfg.QuotaBytes > 0 {
		mws = append(mws, middleware.NewQuotaMiddleware(cfg.QuotaBytes))
	}
	if len(cfg.Redact) > 0 {
		mws = append(mws, middleware.NewRedactMiddleware(cfg.Redact))
	}
	if cfg.EncryptionKey != "" {
		key, err := app.Config.EncryptionKey()
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	store = middleware.Chain(store, mws...)

	if cfg.L1Entries > 0 {
		l1, err := tiered.New(store, cfg.L1Entries, tiered.WithL1TTL(cfg.L1TTL))
		if err != nil {
			return nil, nil, fmt.Errorf("l1 tier: %w", err)
		}
		app.closers = append(app.closers, func() error {
			l1.Close()
			return nil
		})
		store = l1
	}
	return store, locker, nil
}

// StartAutoSave starts the configured background flush, if any.
func (app *App) StartAutoSave(ctx context.Context) {
	if app.Config.AutoSaveInterval > 0 && app.autosave == nil {
		app.autosave = app.Sessions.StartAutoSave(ctx, app.Config.AutoSaveInterval)
	}
}

// Close flushes conversations and releases the store stack in reverse
// order of construction.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	if app.autosave != nil {
		app.autosave.Stop()
	}
	if app.Sessions != nil {
		errs = append(errs, app.Sessions.Close(ctx))
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}
