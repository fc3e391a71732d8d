package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func readSettings(t *testing.T, path string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestSaveValue_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regd", "config.yaml")
	require.NoError(t, SaveValue(path, "descriptor.path", "/etc/regd/registry.xml"))

	v := readSettings(t, path)
	require.Equal(t, "/etc/regd/registry.xml", v.GetString("descriptor.path"))
}

func TestSaveValue_PreservesCommentsAndSiblings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.NoError(t, SaveValue(path, "descriptor.path", "conf/registry.yaml"))
	require.NoError(t, SaveValue(path, "secrets.key", "k3y"))
	require.NoError(t, SaveValue(path, "events.brokers", []string{"k1:9092"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# regd settings")
	require.Contains(t, string(data), "# .xml, .yaml, .json, .toml or .hcl")

	v := readSettings(t, path)
	require.Equal(t, "conf/registry.yaml", v.GetString("descriptor.path"))
	require.Equal(t, "default", v.GetString("descriptor.profile"))
	require.Equal(t, "k3y", v.GetString("secrets.key"))
	require.Equal(t, []string{"k1:9092"}, v.GetStringSlice("events.brokers"))
	require.Equal(t, "127.0.0.1:9763", v.GetString("http.addr"))
}

func TestSaveValue_NullSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  # nothing yet\n"), 0o600))

	require.NoError(t, SaveValue(path, "watch.enabled", false))
	v := readSettings(t, path)
	require.False(t, v.GetBool("watch.enabled"))
	require.True(t, v.IsSet("watch.enabled"))
}

func TestSaveValue_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: 8080\n"), 0o600))

	require.ErrorContains(t, SaveValue(path, "http.addr", "x"), "not a section")
	require.Error(t, SaveValue(path, "http..addr", "x"))

	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))
	require.ErrorContains(t, SaveValue(path, "a", 1), "not a mapping")
}
