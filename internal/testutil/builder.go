// Package testutil builds registry descriptors and contexts for tests.
package testutil

import (
	"context"
	"fmt"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/logwriter"
	"github.com/zjrosen/regd/internal/regctx"
)

// aspectData holds an <aspect> element.
type aspectData struct {
	name   string
	class  string
	states string
}

// Builder accumulates descriptor elements and renders them as XML.
type Builder struct {
	current     string
	readOnly    bool
	enableCache bool
	dbConfigs   []dbConfigData
	remotes     []remoteData
	mounts      []mountData
	handlers    []handlerData
	aspects     []aspectData
	queryTypes  [][2]string
}

// NewBuilder starts an empty descriptor whose current dbConfig is "local".
func NewBuilder() *Builder {
	return &Builder{current: "local"}
}

// WithCurrentDBConfig names the active dbConfig.
func (b *Builder) WithCurrentDBConfig(name string) *Builder {
	b.current = name
	return b
}

// WithReadOnly marks the registry read-only.
func (b *Builder) WithReadOnly() *Builder {
	b.readOnly = true
	return b
}

// WithCache enables the registry cache.
func (b *Builder) WithCache() *Builder {
	b.enableCache = true
	return b
}

// WithDBConfig adds a dbConfig.
func (b *Builder) WithDBConfig(name, url string, opts ...DBConfigOption) *Builder {
	d := dbConfigData{name: name, url: url}
	for _, opt := range opts {
		opt(&d)
	}
	b.dbConfigs = append(b.dbConfigs, d)
	return b
}

// WithLocalDB adds an embedded SQLite dbConfig under ${registry.home}.
func (b *Builder) WithLocalDB(name string, opts ...DBConfigOption) *Builder {
	return b.WithDBConfig(name, "jdbc:h2:${registry.home}/database/"+strings.ToUpper(name)+"_DB", opts...)
}

// WithRemote adds a remote instance.
func (b *Builder) WithRemote(id, url string, opts ...RemoteOption) *Builder {
	r := remoteData{id: id, url: url}
	for _, opt := range opts {
		opt(&r)
	}
	b.remotes = append(b.remotes, r)
	return b
}

// WithMount adds a mount.
func (b *Builder) WithMount(path, instanceID, targetPath string, opts ...MountOption) *Builder {
	m := mountData{path: path, instanceID: instanceID, targetPath: targetPath}
	for _, opt := range opts {
		opt(&m)
	}
	b.mounts = append(b.mounts, m)
	return b
}

// WithHandler adds a handler guarded by a URLMatcher unless Filter says
// otherwise.
func (b *Builder) WithHandler(class string, opts ...HandlerOption) *Builder {
	h := handlerData{class: class, filterClass: "URLMatcher"}
	for _, opt := range opts {
		opt(&h)
	}
	b.handlers = append(b.handlers, h)
	return b
}

// WithLifecycle adds a lifecycle aspect with comma separated states.
func (b *Builder) WithLifecycle(name, states string) *Builder {
	return b.WithAspect(name, "Lifecycle", states)
}

// WithAspect adds an aspect; states may be empty.
func (b *Builder) WithAspect(name, class, states string) *Builder {
	b.aspects = append(b.aspects, aspectData{name: name, class: class, states: states})
	return b
}

// WithQueryProcessor maps a query type to a processor key.
func (b *Builder) WithQueryProcessor(queryType, processor string) *Builder {
	b.queryTypes = append(b.queryTypes, [2]string{queryType, processor})
	return b
}

// XML renders the descriptor.
func (b *Builder) XML() string {
	var w xmlWriter
	w.open("wso2registry")
	w.elem("currentDBConfig", b.current)
	w.elem("readOnly", fmt.Sprint(b.readOnly))
	w.elem("enableCache", fmt.Sprint(b.enableCache))
	w.elem("registryRoot", "/")

	for _, d := range b.dbConfigs {
		w.open(`dbConfig name="` + esc(d.name) + `"`)
		w.elem("dataSource", d.dataSource)
		w.elem("url", d.url)
		w.elem("userName", d.user)
		w.elem("password", d.password)
		if d.maxActive > 0 {
			w.elem("maxActive", fmt.Sprint(d.maxActive))
		}
		if d.maxWait > 0 {
			w.elem("maxWait", fmt.Sprint(d.maxWait.Milliseconds()))
		}
		w.close("dbConfig")
	}
	for _, r := range b.remotes {
		w.open(`remoteInstance url="` + esc(r.url) + `"`)
		w.elem("id", r.id)
		w.elem("dbConfig", r.dbConfig)
		w.elem("cacheId", r.cacheID)
		if r.readOnly {
			w.elem("readOnly", "true")
		}
		w.close("remoteInstance")
	}
	for _, m := range b.mounts {
		attrs := `mount path="` + esc(m.path) + `"`
		if m.overwrite != "" {
			attrs += ` overwrite="` + m.overwrite + `"`
		}
		if m.resolveLinks != "" {
			attrs += ` resolveLinks="` + m.resolveLinks + `"`
		}
		w.open(attrs)
		w.elem("instanceId", m.instanceID)
		w.elem("targetPath", m.targetPath)
		w.close("mount")
	}
	for _, h := range b.handlers {
		attrs := `handler class="` + esc(h.class) + `"`
		if h.methods != "" {
			attrs += ` methods="` + esc(h.methods) + `"`
		}
		if h.profiles != "" {
			attrs += ` profiles="` + esc(h.profiles) + `"`
		}
		w.open(attrs)
		for _, p := range h.props {
			w.property(p)
		}
		w.open(`filter class="` + esc(h.filterClass) + `"`)
		for _, p := range h.filterProps {
			w.property(p)
		}
		w.close("filter")
		if h.edit[0] != "" {
			w.line(`<edit processor="` + esc(h.edit[0]) + `">` + esc(h.edit[1]) + `</edit>`)
		}
		w.close("handler")
	}
	for _, a := range b.aspects {
		w.open(`aspect name="` + esc(a.name) + `" class="` + esc(a.class) + `"`)
		if a.states != "" {
			w.property(property{"states", a.states})
		}
		w.close("aspect")
	}
	for _, q := range b.queryTypes {
		w.open("queryProcessor")
		w.elem("queryType", q[0])
		w.elem("processor", q[1])
		w.close("queryProcessor")
	}
	w.close("wso2registry")
	return w.String()
}

// Descriptor parses the rendered XML with ${registry.home} set to a
// temporary directory.
func (b *Builder) Descriptor(t *testing.T, opts ...descriptor.Option) (*descriptor.Descriptor, descriptor.Warnings) {
	t.Helper()
	opts = append([]descriptor.Option{descriptor.WithHome(t.TempDir())}, opts...)
	d, warnings, err := descriptor.LoadBytes([]byte(b.XML()), descriptor.FormatXML, opts...)
	require.NoError(t, err)
	return d, warnings
}

// Context builds a registry context and closes it when the test ends.
// The activity log is only flushed on demand or at close.
func (b *Builder) Context(t *testing.T, opts regctx.Options) *regctx.Context {
	t.Helper()
	d, _ := b.Descriptor(t)
	if opts.LogWriter.FlushInterval == 0 {
		opts.LogWriter = logwriter.Config{FlushInterval: time.Hour}
	}
	c, err := regctx.Build(context.Background(), d, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

type xmlWriter struct {
	b     strings.Builder
	depth int
}

func (w *xmlWriter) line(s string) {
	w.b.WriteString(strings.Repeat("    ", w.depth))
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *xmlWriter) open(tag string) {
	w.line("<" + tag + ">")
	w.depth++
}

func (w *xmlWriter) close(name string) {
	w.depth--
	w.line("</" + name + ">")
}

// elem writes <name>value</name>, skipping empty values.
func (w *xmlWriter) elem(name, value string) {
	if value == "" {
		return
	}
	w.line("<" + name + ">" + esc(value) + "</" + name + ">")
}

func (w *xmlWriter) property(p property) {
	w.line(`<property name="` + esc(p.name) + `">` + esc(p.value) + `</property>`)
}

func (w *xmlWriter) String() string {
	return w.b.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}
