package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/config"
	"github.com/zjrosen/regd/internal/metrics"
	"github.com/zjrosen/regd/internal/pubsub"
	"github.com/zjrosen/regd/internal/testutil"
)

func writeDescriptor(t *testing.T, path, xml string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(xml), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Descriptor.Path = filepath.Join(dir, "registry.xml")
	cfg.Descriptor.Home = dir
	cfg.Watch.Enabled = false
	cfg.Tracing.Enabled = false
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.LogWriter.FlushInterval = time.Hour
	writeDescriptor(t, cfg.Descriptor.Path, testutil.Governance().XML())
	return cfg
}

func newApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestApp_ReloadSwapsContext(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New(prometheus.NewRegistry())
	a := newApp(t, cfg, WithMetrics(m), WithNodeID("node-a"))
	assert.Nil(t, a.Current())

	require.NoError(t, a.Reload(context.Background()))
	first := a.Current()
	require.NotNil(t, first)
	assert.Equal(t, "node-a", first.NodeID())
	assert.Len(t, first.Mounts(), 2)

	writeDescriptor(t, cfg.Descriptor.Path, testutil.Minimal().XML())
	require.NoError(t, a.Reload(context.Background()))
	second := a.Current()
	assert.NotSame(t, first, second)
	assert.Empty(t, second.Mounts())
	assert.Equal(t, "node-a", second.NodeID(), "the node id survives reloads")

	_, err := first.DataAccess(context.Background())
	assert.Error(t, err, "the replaced context is closed")

	assert.Equal(t, float64(2), promtest.ToFloat64(m.Reloads.WithLabelValues("ok")))
}

func TestApp_FailedReloadKeepsPrevious(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New(prometheus.NewRegistry())
	a := newApp(t, cfg, WithMetrics(m))
	require.NoError(t, a.Reload(context.Background()))
	before := a.Current()

	writeDescriptor(t, cfg.Descriptor.Path, "<wso2registry><dbConfig")
	require.Error(t, a.Reload(context.Background()))
	assert.Same(t, before, a.Current())

	_, err := before.DataAccess(context.Background())
	require.NoError(t, err, "the active context is still usable")
	assert.Equal(t, float64(1), promtest.ToFloat64(m.Reloads.WithLabelValues("error")))
}

func TestApp_FirstReloadFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Descriptor.Path = filepath.Join(t.TempDir(), "missing.xml")
	a := newApp(t, cfg)

	require.Error(t, a.Reload(context.Background()))
	assert.Nil(t, a.Current())
	require.Error(t, a.Run(context.Background()), "Run needs a loaded context")
}

func TestApp_PublishesReloadEvents(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listener := pubsub.NewListener(ctx, a.Events())

	require.NoError(t, a.Reload(ctx))
	ev, ok := listener.Next()
	require.True(t, ok)
	assert.Equal(t, pubsub.ReloadedEvent, ev.Type)
	assert.Equal(t, cfg.Descriptor.Path, ev.Payload.Source)
	assert.NoError(t, ev.Payload.Err)

	writeDescriptor(t, cfg.Descriptor.Path, "not xml")
	require.Error(t, a.Reload(ctx))
	ev, ok = listener.Next()
	require.True(t, ok)
	assert.Equal(t, pubsub.ReloadFailedEvent, ev.Type)
	assert.Error(t, ev.Payload.Err)

	last, ok := a.Events().Last()
	require.True(t, ok)
	assert.Equal(t, ev.Seq, last.Seq)
}

func TestApp_RunReloadsOnChange(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Enabled = true
	cfg.Watch.Debounce = 20 * time.Millisecond
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.HTTP.Addr = ln.Addr().String()
	require.NoError(t, ln.Close())

	a := newApp(t, cfg)
	require.NoError(t, a.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	listener := pubsub.NewListener(ctx, a.Events())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the watcher time to register the directory.
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", cfg.HTTP.Addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	writeDescriptor(t, cfg.Descriptor.Path, testutil.Minimal().XML())
	ev, ok := listener.Next()
	require.True(t, ok)
	assert.Equal(t, pubsub.ReloadedEvent, ev.Type)
	assert.Empty(t, a.Current().Mounts())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_Close(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Reload(context.Background()))

	require.NoError(t, a.Close(context.Background()))
	assert.Nil(t, a.Current())
	require.NoError(t, a.Close(context.Background()), "close is idempotent")
}

func TestNew_RejectsBadServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisURL = "not a url"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}
