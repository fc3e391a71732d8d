// Package regctx holds the registry context: the typed descriptor plus the
// runtime managers built from it.
package regctx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/regd/internal/aspect"
	"github.com/zjrosen/regd/internal/cachemanager"
	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/logwriter"
	"github.com/zjrosen/regd/internal/metrics"
	"github.com/zjrosen/regd/internal/query"
	"github.com/zjrosen/regd/internal/tenant"
)

var tracer = otel.Tracer("github.com/zjrosen/regd/internal/regctx")

var (
	// ErrNilDescriptor is returned by Build without a descriptor.
	ErrNilDescriptor = errors.New("nil descriptor")

	// ErrClosed is returned by DataAccess after Close.
	ErrClosed = errors.New("registry context closed")
)

// Options configures Build. The zero value is usable.
type Options struct {
	Metrics     *metrics.Metrics
	DataSources *dataaccess.DataSources
	// Secrets resolves dbConfig passwords before a database is opened and
	// remote instance passwords in ResolvedRemoteInstance.
	Secrets descriptor.SecretResolver
	// QueryCache overrides the in-memory query result cache.
	QueryCache cachemanager.CacheManager[string, query.Result]
	LogWriter  logwriter.Config
	// Sinks receive activity records in addition to REG_LOG.
	Sinks []logwriter.Sink
	// Migrate applies the schema when the database is first opened.
	Migrate bool
	// NodeID replaces the generated node identifier.
	NodeID string
	// Register adds custom factories before the set is sealed.
	Register func(*Set) error
	// DescriptorOptions are used to parse handler and aspect fragments.
	DescriptorOptions []descriptor.Option
}

// Context is the registry context. Configuration values never change after
// Build; the runtime registries it exposes are safe for concurrent use.
type Context struct {
	desc    *descriptor.Descriptor
	opts    Options
	nodeID  string
	clone   bool
	set     *Set
	metrics *metrics.Metrics

	handlers *handler.LifecycleManager
	edits    *handler.EditManager
	queries  *query.Manager
	aspects  *aspect.Store

	*state
}

// Build creates a context from d. Plugins with unknown factory keys are
// skipped with a warning; a factory that rejects its configuration fails
// the build.
func Build(ctx context.Context, d *descriptor.Descriptor, opts Options) (*Context, error) {
	_, span := tracer.Start(ctx, "regctx.build")
	defer span.End()

	if d == nil {
		return nil, ErrNilDescriptor
	}
	if err := descriptor.Validate(d); err != nil {
		return nil, err
	}

	c := &Context{
		desc:     d.Clone(),
		opts:     opts,
		nodeID:   opts.NodeID,
		metrics:  opts.Metrics,
		handlers: handler.NewLifecycleManager(opts.Metrics),
		edits:    handler.NewEditManager(),
		queries:  query.NewManager(),
		aspects:  aspect.NewStore(),
		state:    newState(),
	}
	if c.nodeID == "" {
		c.nodeID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("regd.node_id", c.nodeID))

	sinks := append([]logwriter.Sink{logwriter.SinkFunc(c.writeLogs)}, opts.Sinks...)
	c.logWriter = logwriter.New(logwriter.Tee(sinks...), opts.LogWriter, opts.Metrics)

	set, err := DefaultSet(Deps{
		Handler: handler.Deps{
			Recorder:       c.logWriter,
			NoCache:        c,
			RemoteInstance: c.desc.RemoteInstance,
		},
		Query: query.Deps{
			DataAccess: c.DataAccess,
			Cache:      c.queryCache(),
			TTL:        c.desc.Cache.LastAccessedExpiration,
			NoCache:    c.IsNoCachePath,
			Metrics:    opts.Metrics,
		},
	})
	if err != nil {
		c.abort()
		return nil, err
	}
	if opts.Register != nil {
		if err := opts.Register(set); err != nil {
			c.abort()
			return nil, fmt.Errorf("registering custom plugins: %w", err)
		}
	}
	set.Seal()
	c.set = set

	if err := c.install(); err != nil {
		c.abort()
		return nil, err
	}

	log.Info(log.CatConfig, "registry context built",
		"node", c.nodeID,
		"dbConfig", c.desc.CurrentDBConfig,
		"mounts", len(c.desc.Mounts),
		"handlers", len(c.desc.Handlers),
		"aspects", len(c.desc.Aspects))
	return c, nil
}

func (c *Context) queryCache() cachemanager.CacheManager[string, query.Result] {
	if c.opts.QueryCache != nil {
		return c.opts.QueryCache
	}
	if !c.desc.EnableCache {
		return nil
	}
	return cachemanager.NewInMemoryCacheManager[string, query.Result]("queries",
		c.desc.Cache.LastAccessedExpiration, cachemanager.DefaultCleanupInterval, c.metrics)
}

func (c *Context) install() error {
	for _, m := range c.desc.Mounts {
		if err := c.installMount(m); err != nil {
			return err
		}
	}
	for _, h := range c.desc.Handlers {
		if _, err := c.installHandler(h, handler.PhaseSystem); err != nil {
			return err
		}
	}
	for _, a := range c.desc.Aspects {
		if err := c.installAspect(tenant.SuperID, a); err != nil {
			return err
		}
	}
	for _, q := range c.desc.QueryProcessors {
		if err := c.installQueryProcessor(q); err != nil {
			return err
		}
	}
	return nil
}

// abort releases what a failed Build started.
func (c *Context) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.logWriter.Close(ctx)
}

// Close flushes the activity log and closes the database. Closing a clone
// does nothing.
func (c *Context) Close(ctx context.Context) error {
	if c.clone {
		return nil
	}
	var errs []error
	if err := c.logWriter.Close(ctx); err != nil && !errors.Is(err, logwriter.ErrClosed) {
		errs = append(errs, err)
	}
	if err := c.closeDataAccess(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CloneOption adjusts a clone.
type CloneOption func(*Context)

// CloneReadOnly overrides the read-only flag of the clone.
func CloneReadOnly(readOnly bool) CloneOption {
	return func(c *Context) {
		c.desc.ReadOnly = readOnly
	}
}

// CloneRegistryRoot overrides the registry root of the clone.
func CloneRegistryRoot(root string) CloneOption {
	return func(c *Context) {
		c.desc.RegistryRoot = descriptor.NormalizeRegistryRoot(root)
	}
}

// Clone returns a context flagged as a clone. It has its own copy of the
// configuration values and shares every runtime registry, the database and
// the log writer with c.
func (c *Context) Clone(opts ...CloneOption) *Context {
	cl := *c
	cl.desc = c.desc.Clone()
	cl.clone = true
	for _, opt := range opts {
		opt(&cl)
	}
	return &cl
}

// IsClone reports whether c was created by Clone.
func (c *Context) IsClone() bool { return c.clone }

// NodeID identifies this registry node.
func (c *Context) NodeID() string { return c.nodeID }

// Descriptor returns a copy of the configuration.
func (c *Context) Descriptor() *descriptor.Descriptor { return c.desc.Clone() }

func (c *Context) RegistryRoot() string { return c.desc.RegistryRoot }
func (c *Context) IsReadOnly() bool { return c.desc.ReadOnly }
func (c *Context) IsCacheEnabled() bool { return c.desc.EnableCache }
func (c *Context) VersionOnChange() bool { return c.desc.VersionResourcesOnChange }
func (c *Context) CacheConfig() descriptor.CacheConfig { return c.desc.Cache }
func (c *Context) StaticConfig() descriptor.StaticConfig { return c.desc.Static }
func (c *Context) ProfilesPath() string { return c.desc.Static.ProfilesPath }
func (c *Context) ServicePath() string { return c.desc.Static.ServicePath }

// DBConfig returns the named database configuration.
func (c *Context) DBConfig(name string) (descriptor.DBConfig, bool) {
	return c.desc.DBConfig(name)
}

// DBConfigNames returns the dbConfig names, sorted.
func (c *Context) DBConfigNames() []string {
	names := make([]string, len(c.desc.DBConfigs))
	for i, cfg := range c.desc.DBConfigs {
		names[i] = cfg.Name
	}
	sort.Strings(names)
	return names
}

// DefaultDBConfig returns the configuration named by currentDBConfig.
func (c *Context) DefaultDBConfig() descriptor.DBConfig {
	cfg, _ := c.desc.DBConfig(c.desc.CurrentDBConfig)
	return cfg
}

func (c *Context) Mounts() []descriptor.Mount {
	return append([]descriptor.Mount(nil), c.desc.Mounts...)
}

func (c *Context) RemoteInstances() []descriptor.RemoteInstance {
	return append([]descriptor.RemoteInstance(nil), c.desc.RemoteInstances...)
}

// RemoteInstance returns the remote instance as written in the descriptor.
// Its password may still be a secret reference; see ResolvedRemoteInstance.
func (c *Context) RemoteInstance(id string) (descriptor.RemoteInstance, bool) {
	return c.desc.RemoteInstance(id)
}

func (c *Context) QueryProcessors() []descriptor.QueryProcessorDef {
	return append([]descriptor.QueryProcessorDef(nil), c.desc.QueryProcessors...)
}

// HandlerDefs returns the handler definitions of the descriptor.
func (c *Context) HandlerDefs() []descriptor.HandlerDef {
	return append([]descriptor.HandlerDef(nil), c.desc.Handlers...)
}

func (c *Context) HandlerManager() *handler.LifecycleManager { return c.handlers }
func (c *Context) EditManager() *handler.EditManager { return c.edits }
func (c *Context) QueryManager() *query.Manager { return c.queries }
func (c *Context) Aspects() *aspect.Store { return c.aspects }
func (c *Context) LogWriter() *logwriter.Writer { return c.logWriter }
func (c *Context) Plugins() *Set { return c.set }
func (c *Context) Metrics() *metrics.Metrics { return c.metrics }

type ctxKey struct{}

// WithContext returns a copy of ctx carrying rc.
func WithContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the registry context carried by ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok && rc != nil
}
