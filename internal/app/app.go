// Package app owns the live registry context of a regd process: it loads
// the descriptor, swaps in a new context on reload and runs the admin API.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/regd/internal/cachemanager"
	"github.com/zjrosen/regd/internal/config"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/eventsink"
	"github.com/zjrosen/regd/internal/httpapi"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/logwriter"
	"github.com/zjrosen/regd/internal/metrics"
	"github.com/zjrosen/regd/internal/pubsub"
	"github.com/zjrosen/regd/internal/query"
	"github.com/zjrosen/regd/internal/regctx"
	"github.com/zjrosen/regd/internal/secrets"
	"github.com/zjrosen/regd/internal/tracing"
	"github.com/zjrosen/regd/internal/watcher"
)

var tracer = otel.Tracer("github.com/zjrosen/regd/internal/app")

// ReloadEvent is published on Events after every reload attempt.
type ReloadEvent struct {
	Source   string
	Warnings descriptor.Warnings
	Err      error
}

// Option customizes New.
type Option func(*App)

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNodeID fixes the node identifier. By default one is generated per
// process and kept across reloads.
func WithNodeID(id string) Option {
	return func(a *App) { a.nodeID = id }
}

// WithSink adds an activity sink fed alongside REG_LOG.
func WithSink(s logwriter.Sink) Option {
	return func(a *App) { a.sinks = append(a.sinks, s) }
}

// WithRegister adds custom plugin factories to every context.
func WithRegister(fn func(*regctx.Set) error) Option {
	return func(a *App) { a.register = fn }
}

// App holds the current registry context. Reads go through Current; a
// reload builds a complete new context before it becomes visible.
type App struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	nodeID   string
	sinks    []logwriter.Sink
	register func(*regctx.Set) error

	secrets    *secrets.Resolver
	redis      *redis.Client
	queryCache cachemanager.CacheManager[string, query.Result]
	events     *eventsink.Sink
	tracing    *tracing.Provider
	broker     *pubsub.Broker[ReloadEvent]

	// reloadMu serializes reloads.
	reloadMu sync.Mutex
	current  atomic.Pointer[regctx.Context]
	warnings atomic.Pointer[descriptor.Warnings]

	closeOnce sync.Once
}

// New wires the process-wide services described by cfg. It does not load
// the descriptor; call Reload for that.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, broker: pubsub.NewBroker[ReloadEvent]()}
	for _, opt := range opts {
		opt(a)
	}
	if a.nodeID == "" {
		a.nodeID = uuid.NewString()
	}

	var err error
	if a.secrets, err = secrets.NewResolver(cfg.Secrets.Key); err != nil {
		return nil, fmt.Errorf("configuring secrets: %w", err)
	}

	if a.tracing, err = tracing.NewProvider(ctx, cfg.Tracing); err != nil {
		return nil, fmt.Errorf("configuring tracing: %w", err)
	}

	if cfg.Cache.Backend == cachemanager.BackendRedis {
		if a.redis, err = cachemanager.NewRedisClient(ctx, cfg.Cache.RedisURL); err != nil {
			a.shutdownServices(ctx)
			return nil, err
		}
		a.queryCache = cachemanager.NewRedisCacheManager[string, query.Result](a.redis, cfg.Cache.KeyPrefix, "queries", a.metrics)
		log.Info(log.CatCache, "Using redis query cache", "prefix", cfg.Cache.KeyPrefix)
	}

	if cfg.Events.Enabled() {
		a.events, err = eventsink.Dial(ctx, eventsink.Config{
			Brokers:  cfg.Events.Brokers,
			Topic:    cfg.Events.Topic,
			ClientID: cfg.Events.ClientID,
		}, a.nodeID, a.metrics)
		if err != nil {
			a.shutdownServices(ctx)
			return nil, err
		}
		a.sinks = append(a.sinks, a.events)
	}
	return a, nil
}

// Current returns the active context, or nil before the first successful
// reload.
func (a *App) Current() *regctx.Context {
	return a.current.Load()
}

// Warnings returns the warnings of the active descriptor.
func (a *App) Warnings() descriptor.Warnings {
	if w := a.warnings.Load(); w != nil {
		return *w
	}
	return nil
}

// Events returns the broker reload events are published on.
func (a *App) Events() *pubsub.Broker[ReloadEvent] {
	return a.broker
}

// Reload loads the descriptor and builds a new context. On success the new
// context replaces the old one, which is then closed. On failure the old
// context stays active.
func (a *App) Reload(ctx context.Context) (err error) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	path := a.cfg.Descriptor.Path
	ctx, span := tracer.Start(ctx, tracing.SpanReload)
	span.SetAttributes(attribute.String(tracing.AttrDescriptorSource, path))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	next, warnings, err := a.build(ctx)
	a.metrics.ObserveReload(err)
	a.publish(ctx, path, warnings, err)
	if err != nil {
		log.ErrorErr(log.CatConfig, "Reload rejected, keeping previous configuration", err, "path", path)
		return err
	}

	prev := a.current.Swap(next)
	a.warnings.Store(&warnings)
	if a.redis != nil && prev != nil {
		if err := a.queryCache.Flush(ctx); err != nil {
			log.ErrorErr(log.CatCache, "Failed to flush query cache", err)
		}
	}
	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			log.ErrorErr(log.CatConfig, "Failed to close previous context", err)
		}
	}
	log.Info(log.CatConfig, "Configuration active", "path", path, "node", next.NodeID(), "warnings", len(warnings))
	return nil
}

func (a *App) build(ctx context.Context) (*regctx.Context, descriptor.Warnings, error) {
	d, warnings, err := a.load(ctx)
	if err != nil {
		return nil, warnings, err
	}
	c, err := regctx.Build(ctx, d, regctx.Options{
		Metrics:           a.metrics,
		Secrets:           a.secrets.Resolve,
		QueryCache:        a.queryCache,
		LogWriter:         a.cfg.LogWriter,
		Sinks:             a.sinks,
		Migrate:           a.cfg.Database.Migrate,
		NodeID:            a.nodeID,
		Register:          a.register,
		DescriptorOptions: a.cfg.DescriptorOptions(),
	})
	if err != nil {
		return nil, warnings, err
	}
	return c, warnings, nil
}

func (a *App) load(ctx context.Context) (*descriptor.Descriptor, descriptor.Warnings, error) {
	_, span := tracer.Start(ctx, tracing.SpanLoad)
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrDescriptorSource, a.cfg.Descriptor.Path))

	d, warnings, err := descriptor.Load(a.cfg.Descriptor.Path, a.cfg.DescriptorOptions()...)
	a.metrics.ObserveDescriptorLoad(err, len(warnings))
	for _, w := range warnings {
		log.Warn(log.CatConfig, "Descriptor warning", "warning", w.String())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return d, warnings, err
}

func (a *App) publish(ctx context.Context, source string, warnings descriptor.Warnings, err error) {
	typ := pubsub.ReloadedEvent
	if err != nil {
		typ = pubsub.ReloadFailedEvent
	}
	a.broker.Publish(typ, ReloadEvent{Source: source, Warnings: warnings, Err: err})
	if a.events != nil {
		_ = a.events.PublishReload(ctx, source, len(warnings), err)
	}
}

// Run serves the admin API and, when enabled, reloads on descriptor
// changes until ctx is cancelled. Reload must have succeeded once.
func (a *App) Run(ctx context.Context) error {
	if a.Current() == nil {
		return httpapi.ErrNotReady
	}
	g, ctx := errgroup.WithContext(ctx)

	srv := httpapi.New(a, httpapi.Config{
		Addr:            a.cfg.HTTP.Addr,
		ReadTimeout:     a.cfg.HTTP.ReadTimeout,
		ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
		Tokens:          httpapi.NewTokenService(a.cfg.HTTP.JWTSecret),
	}, a.metrics)
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	if a.cfg.Watch.Enabled {
		w, err := watcher.New(watcher.Config{
			Files:    []string{a.cfg.Descriptor.Path},
			Debounce: a.cfg.Watch.Debounce,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return a.watch(ctx, w) })
	}
	return g.Wait()
}

func (a *App) watch(ctx context.Context, w *watcher.Watcher) error {
	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("watching descriptor: %w", err)
	}
	defer func() { _ = w.Stop() }()
	log.Info(log.CatWatcher, "Watching descriptor", "path", a.cfg.Descriptor.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			log.Info(log.CatWatcher, "Descriptor changed, reloading", "path", a.cfg.Descriptor.Path)
			// A rejected reload keeps the previous context and is already
			// logged and counted.
			_ = a.Reload(ctx)
		}
	}
}

// Close closes the active context and the shared services.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		a.reloadMu.Lock()
		defer a.reloadMu.Unlock()
		if c := a.current.Swap(nil); c != nil {
			errs = append(errs, c.Close(ctx))
		}
		errs = append(errs, a.shutdownServices(ctx))
		a.broker.Close()
	})
	return errors.Join(errs...)
}

func (a *App) shutdownServices(ctx context.Context) error {
	var errs []error
	if a.events != nil {
		a.events.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, a.tracing.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

var _ httpapi.Source = (*App)(nil)
