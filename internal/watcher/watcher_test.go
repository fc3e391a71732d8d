package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/watcher"
)

func start(t *testing.T, files ...string) <-chan struct{} {
	t.Helper()
	w, err := watcher.New(watcher.Config{Files: files, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ch, err := w.Start()
	require.NoError(t, err)
	return ch
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.xml")
	require.NoError(t, os.WriteFile(path, []byte("<registry/>"), 0o600))
	onChange := start(t, path)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("<registry id=%q/>", i)), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-onChange:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a notification")
	}
	select {
	case <-onChange:
		t.Fatal("writes in one burst should coalesce")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.xml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("<registry/>"), 0o600))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	onChange := start(t, path)

	require.NoError(t, os.WriteFile(other, []byte("y"), 0o600))
	select {
	case <-onChange:
		t.Fatal("unrelated files must not trigger a reload")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_SeesAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))
	onChange := start(t, path)

	tmp := filepath.Join(dir, ".registry.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("a: 2\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-onChange:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("rename over the descriptor should notify")
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := watcher.New(watcher.Config{})
	require.ErrorIs(t, err, watcher.ErrNoFiles)

	w, err := watcher.New(watcher.Config{Files: []string{filepath.Join(t.TempDir(), "missing", "x.xml")}})
	require.NoError(t, err)
	_, err = w.Start()
	require.Error(t, err, "a missing directory cannot be watched")
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
