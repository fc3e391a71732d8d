package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/regd/internal/httpapi"
	"github.com/zjrosen/regd/internal/presentation"
	"github.com/zjrosen/regd/internal/testutil"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// workspace writes a settings file pointing at a descriptor built from b
// and returns the settings path.
func workspace(t *testing.T, b *testutil.Builder) (settings, descriptorPath string) {
	t.Helper()
	dir := t.TempDir()
	descriptorPath = filepath.Join(dir, "registry.xml")
	require.NoError(t, os.WriteFile(descriptorPath, []byte(b.XML()), 0o600))

	settings = filepath.Join(dir, "regd.yaml")
	body := "descriptor:\n  path: " + descriptorPath + "\n  home: " + dir + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(settings, []byte(body), 0o600))
	return settings, descriptorPath
}

func TestValidate(t *testing.T) {
	settings, _ := workspace(t, testutil.Governance())

	out, err := run(t, "validate", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "Mounts:")
	assert.Contains(t, out, "local (of archive, local)")

	out, err = run(t, "validate", "-c", settings, "-o", "json")
	require.NoError(t, err)
	var summary presentation.SummaryDTO
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Mounts)
	assert.Equal(t, 2, summary.Remotes)
}

func TestValidate_Strict(t *testing.T) {
	settings, _ := workspace(t, testutil.Minimal().
		WithHandler("NoCacheHandler", testutil.Profiles("production"), testutil.FilterProperty("getPattern", "/tmp/.*")))

	out, err := run(t, "validate", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "not enabled for profile")

	_, err = run(t, "validate", "-c", settings, "--strict")
	require.ErrorContains(t, err, "warning(s)")

	_, err = run(t, "validate", "-c", settings, "--strict", "--profile", "production")
	require.NoError(t, err)
}

func TestValidate_DescriptorFlagOverridesSettings(t *testing.T) {
	settings, _ := workspace(t, testutil.Governance())
	_, other := workspace(t, testutil.Minimal())

	out, err := run(t, "validate", "-c", settings, "-d", other, "-o", "json")
	require.NoError(t, err)
	var summary presentation.SummaryDTO
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Zero(t, summary.Mounts)
}

func TestValidate_MissingDescriptor(t *testing.T) {
	settings, _ := workspace(t, testutil.Minimal())
	_, err := run(t, "validate", "-c", settings, "-d", filepath.Join(t.TempDir(), "nope.xml"))
	require.Error(t, err)
}

func TestInspectionCommands(t *testing.T) {
	settings, _ := workspace(t, testutil.Governance())

	out, err := run(t, "mounts", "-c", settings, "-o", "json")
	require.NoError(t, err)
	var mounts []presentation.MountDTO
	require.NoError(t, json.Unmarshal([]byte(out), &mounts))
	require.Len(t, mounts, 2)
	assert.Equal(t, "gov", mounts[0].InstanceID)

	out, err = run(t, "remotes", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "https://cfg.example.com/registry")
	assert.Contains(t, out, "cfg-cache")

	out, err = run(t, "handlers", "-c", settings, "-o", "yaml")
	require.NoError(t, err)
	var handlers []presentation.HandlerDTO
	require.NoError(t, yaml.Unmarshal([]byte(out), &handlers))
	assert.NotEmpty(t, handlers)

	out, err = run(t, "aspects", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "Development > Testing > Production")

	out, err = run(t, "aspects", "-c", settings, "--tenant", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")

	_, err = run(t, "mounts", "-c", settings, "-o", "csv")
	require.Error(t, err)
}

func TestDumpConvertDiff(t *testing.T) {
	settings, descriptorPath := workspace(t, testutil.Governance())
	dir := filepath.Dir(descriptorPath)

	out, err := run(t, "dump", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "/_system/governance")

	out, err = run(t, "dump", "-c", settings, "--format", "legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "<currentConfig>local</currentConfig>")

	_, err = run(t, "dump", "-c", settings, "--format", "ini")
	require.ErrorContains(t, err, "unknown dump format")

	converted := filepath.Join(dir, "registry.yaml")
	_, err = run(t, "convert", "-c", settings, descriptorPath, converted)
	require.NoError(t, err)

	out, err = run(t, "diff", "-c", settings, descriptorPath, converted)
	require.NoError(t, err)
	assert.Equal(t, "no differences\n", out)

	_, minimal := workspace(t, testutil.Minimal())
	out, err = run(t, "diff", "-c", settings, descriptorPath, minimal)
	require.NoError(t, err)
	assert.Contains(t, out, "- ")
}

func TestDBCommands(t *testing.T) {
	settings, _ := workspace(t, testutil.Governance())

	out, err := run(t, "db", "ping", "-c", settings, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "archive")
	assert.Contains(t, out, "local")

	out, err = run(t, "db", "migrate", "-c", settings, "--name", "archive")
	require.NoError(t, err)
	assert.Contains(t, out, "archive: schema up to date")

	out, err = run(t, "logs", "-c", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")

	_, err = run(t, "logs", "-c", settings, "--action", "frobnicate")
	require.ErrorContains(t, err, "unknown action")
}

func TestSecretCommands(t *testing.T) {
	settings, _ := workspace(t, testutil.Minimal())

	key, err := run(t, "secret", "keygen", "-c", settings)
	require.NoError(t, err)
	key = strings.TrimSpace(key)
	require.NotEmpty(t, key)

	_, err = run(t, "secret", "encrypt", "-c", settings, "pw")
	require.ErrorContains(t, err, "secrets.key")

	t.Setenv("REGD_SECRETS_KEY", key)
	out, err := run(t, "secret", "encrypt", "-c", settings, "pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "enc:"), out)
}

func TestTokenCommand(t *testing.T) {
	settings, _ := workspace(t, testutil.Minimal())

	_, err := run(t, "token", "-c", settings)
	require.ErrorContains(t, err, "jwt_secret")

	t.Setenv("REGD_HTTP_JWT_SECRET", "s3cret")
	out, err := run(t, "token", "-c", settings, "--subject", "ops")
	require.NoError(t, err)
	claims, err := httpapi.NewTokenService("s3cret").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	out, err := run(t, "init", "-c", path, "-d", "/etc/regd/registry.xml")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "path: /etc/regd/registry.xml")

	_, err = run(t, "init", "-c", path)
	require.ErrorContains(t, err, "already exists")
	_, err = run(t, "init", "-c", path, "--force")
	require.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	settings, _ := workspace(t, testutil.Minimal())
	out, err := run(t, "version", "-c", settings)
	require.NoError(t, err)
	assert.Equal(t, "regd "+version+"\n", out)
}
