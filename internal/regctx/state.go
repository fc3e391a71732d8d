package regctx

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/logwriter"
	"github.com/zjrosen/regd/internal/tenant"
)

// state is shared between a context and its clones.
type state struct {
	mu          sync.RWMutex
	noCache     []*regexp.Regexp
	systemPaths map[string]struct{}

	// dataMu guards data and dataClosed. Failed opens are not cached.
	dataMu     sync.Mutex
	data       *dataaccess.Manager
	dataClosed bool

	logWriter *logwriter.Writer
}

func newState() *state {
	return &state{systemPaths: make(map[string]struct{})}
}

// NoCachePattern returns the expression matching path and everything
// below it, including versioned and parameterized forms like path;version:2.
func NoCachePattern(path string) string {
	return regexp.QuoteMeta(path) + "($|/.*|;.*)"
}

// RegisterNoCachePath excludes path and its descendants from caching.
func (s *state) RegisterNoCachePath(path string) {
	re := regexp.MustCompile("^(?:" + NoCachePattern(path) + ")$")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.noCache {
		if existing.String() == re.String() {
			return
		}
	}
	s.noCache = append(s.noCache, re)
	log.Debug(log.CatCache, "registered no-cache path", "path", path)
}

// IsNoCachePath reports whether path was excluded from caching.
func (s *state) IsNoCachePath(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, re := range s.noCache {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func systemPathKey(tenantID int, path string) string {
	return strconv.Itoa(tenantID) + ":" + path
}

// RegisterSystemResourcePath records that the system resource at path was
// created for the tenant.
func (s *state) RegisterSystemResourcePath(tenantID int, absolutePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemPaths[systemPathKey(tenantID, absolutePath)] = struct{}{}
}

// IsSystemResourcePathRegistered reports whether the system resource at
// path was registered for the tenant.
func (s *state) IsSystemResourcePathRegistered(tenantID int, absolutePath string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.systemPaths[systemPathKey(tenantID, absolutePath)]
	return ok
}

// SystemResourcePaths returns the registered keys, sorted.
func (s *state) SystemResourcePaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.systemPaths))
	for k := range s.systemPaths {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DataAccess returns the database of the current dbConfig, opening it on
// the first successful call. A failed open is retried by the next caller.
// Cancelling ctx does not affect the shared pool once it is open.
func (c *Context) DataAccess(ctx context.Context) (*dataaccess.Manager, error) {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	if c.dataClosed {
		return nil, ErrClosed
	}
	if c.data != nil {
		return c.data, nil
	}
	m, err := c.openDataAccess(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	c.data = m
	return m, nil
}

func (c *Context) openDataAccess(ctx context.Context) (*dataaccess.Manager, error) {
	cfg, err := c.resolvedDBConfig(c.desc.CurrentDBConfig)
	if err != nil {
		return nil, err
	}
	m, err := dataaccess.Open(ctx, cfg, c.opts.DataSources)
	if err != nil {
		return nil, err
	}
	if c.opts.Migrate {
		if err := m.Migrate(ctx); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	return m, nil
}

// resolvedDBConfig returns the named dbConfig with its password resolved.
func (c *Context) resolvedDBConfig(name string) (descriptor.DBConfig, error) {
	cfg, ok := c.desc.DBConfig(name)
	if !ok {
		return cfg, fmt.Errorf("dbConfig %q: %w", name, descriptor.ErrUnknownReference)
	}
	if c.opts.Secrets != nil && cfg.Password != "" {
		pw, err := c.opts.Secrets(cfg.Password)
		if err != nil {
			return cfg, fmt.Errorf("dbConfig %q: resolving password: %w", name, err)
		}
		cfg.Password = pw
	}
	return cfg, nil
}

// ResolvedRemoteInstance returns the remote instance with its trusted
// password resolved through the configured secret resolver.
func (c *Context) ResolvedRemoteInstance(id string) (descriptor.RemoteInstance, error) {
	r, ok := c.desc.RemoteInstance(id)
	if !ok {
		return r, fmt.Errorf("remoteInstance %q: %w", id, descriptor.ErrUnknownReference)
	}
	if c.opts.Secrets != nil && r.TrustedPassword != "" {
		pw, err := c.opts.Secrets(r.TrustedPassword)
		if err != nil {
			return r, fmt.Errorf("remoteInstance %q: resolving password: %w", id, err)
		}
		r.TrustedPassword = pw
	}
	return r, nil
}

// OpenDBConfig opens the named dbConfig without caching the manager. The
// caller closes it.
func (c *Context) OpenDBConfig(ctx context.Context, name string) (*dataaccess.Manager, error) {
	cfg, err := c.resolvedDBConfig(name)
	if err != nil {
		return nil, err
	}
	return dataaccess.Open(ctx, cfg, c.opts.DataSources)
}

func (c *Context) closeDataAccess() error {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	c.dataClosed = true
	if c.data == nil {
		return nil
	}
	m := c.data
	c.data = nil
	return m.Close()
}

// writeLogs is the REG_LOG sink of the activity log writer.
func (c *Context) writeLogs(ctx context.Context, records []dataaccess.LogRecord) error {
	m, err := c.DataAccess(ctx)
	if err != nil {
		return err
	}
	return m.Logs().AddLogs(ctx, records)
}

// AbsolutePath places a registry path under the registry root.
func (c *Context) AbsolutePath(path string) string {
	root := c.desc.RegistryRoot
	if root == "" || root == descriptor.RootPath {
		return path
	}
	if path == descriptor.RootPath {
		return root
	}
	return root + path
}

// RelativePath strips the registry root from an absolute path. Paths
// outside the root are returned unchanged.
func (c *Context) RelativePath(absolute string) string {
	root := c.desc.RegistryRoot
	if root == "" || !strings.HasPrefix(absolute, "/") {
		return absolute
	}
	if absolute == root {
		return descriptor.RootPath
	}
	if rest, ok := strings.CutPrefix(absolute, root+descriptor.PathSeparator); ok {
		return descriptor.PathSeparator + rest
	}
	return absolute
}

// ConnectionID identifies the database behind cfg for cache keys.
func ConnectionID(cfg descriptor.DBConfig) string {
	if cfg.UsesDataSource() {
		return "datasource:" + cfg.DataSource
	}
	return cfg.UserName + "@" + cfg.URL
}

// CacheKey builds the resource cache key of path. Paths in the node-local
// repository are prefixed with the node id so nodes sharing a cache never
// collide on them.
func (c *Context) CacheKey(connectionID string, tenantID int, path string) string {
	conn := strings.ToLower(connectionID)
	local := c.AbsolutePath(descriptor.LocalBasePath)
	if path == local || strings.HasPrefix(path, local+descriptor.PathSeparator) {
		conn = c.nodeID + ":" + conn
	}
	return conn + ":" + strconv.Itoa(tenantID) + ":" + path
}

// MountCacheID returns the connection id cache entries under m are keyed
// by: the remote's dbConfig connection when it names one, otherwise its
// cacheId. It reports false when the mount has neither.
func (c *Context) MountCacheID(m descriptor.Mount) (string, bool) {
	remote, ok := c.desc.RemoteInstance(m.InstanceID)
	if !ok {
		return "", false
	}
	if remote.DBConfig != "" {
		if cfg, ok := c.desc.DBConfig(remote.DBConfig); ok {
			return ConnectionID(cfg), true
		}
	}
	if remote.CacheID != "" {
		return remote.CacheID, true
	}
	return "", false
}

// ResourceCacheKey builds the cache key of a registry path for the tenant.
// Paths under a mount are translated to the remote target path and keyed
// by the mount's connection; everything else uses the current dbConfig.
func (c *Context) ResourceCacheKey(tenantID int, path string) string {
	if tenantID == tenant.InvalidID {
		tenantID = tenant.SuperID
	}
	abs := c.AbsolutePath(path)
	for _, m := range c.desc.Mounts {
		if abs != m.Path && !strings.HasPrefix(abs, m.Path+descriptor.PathSeparator) {
			continue
		}
		id, ok := c.MountCacheID(m)
		if !ok {
			break
		}
		return c.CacheKey(id, tenantID, m.TargetPath+strings.TrimPrefix(abs, m.Path))
	}
	return c.CacheKey(ConnectionID(c.DefaultDBConfig()), tenantID, abs)
}
