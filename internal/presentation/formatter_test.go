package presentation

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter(&bytes.Buffer{}, "")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f.format)

	_, err = NewFormatter(&bytes.Buffer{}, "xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(&buf, FormatTable)
	require.NoError(t, err)

	require.NoError(t, f.FormatMounts([]MountDTO{{
		Path: "/_system/governance", InstanceID: "gov", TargetPath: "/_system/gov-remote",
		ReadOnly: true, ExecuteQueryAllowed: true,
	}}))
	out := buf.String()
	for _, want := range []string{"PATH", "INSTANCE", "/_system/governance", "gov", "ro,query"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "-", "empty cells are dashed")
}

func TestFormatter_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(&buf, FormatTable)
	require.NoError(t, err)
	require.NoError(t, f.FormatAspects(nil))
	assert.Equal(t, "(none)\n", buf.String())
}

func TestFormatter_JSONAndYAML(t *testing.T) {
	handlers := []HandlerDTO{{Phase: "system", ID: 3, Handler: "ActivityLogHandler", Filter: "URLMatcher", Methods: []string{"PUT"}}}

	var buf bytes.Buffer
	f, err := NewFormatter(&buf, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, f.FormatHandlers(handlers))
	var fromJSON []HandlerDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, handlers, fromJSON)

	buf.Reset()
	f, err = NewFormatter(&buf, FormatYAML)
	require.NoError(t, err)
	require.NoError(t, f.FormatHandlers(handlers))
	assert.Contains(t, buf.String(), "handler: ActivityLogHandler")
	var fromYAML []HandlerDTO
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, handlers, fromYAML)
}

func TestFormatter_Summary(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFormatter(&buf, FormatTable)
	require.NoError(t, err)
	require.NoError(t, f.FormatSummary(SummaryDTO{
		NodeID:          "node-1",
		CurrentDBConfig: "local",
		DBConfigs:       []string{"archive", "local"},
		Mounts:          2,
		Warnings:        []string{"mount /x: no targetPath"},
	}))

	out := buf.String()
	assert.Contains(t, out, "node-1")
	assert.Contains(t, out, "local (of archive, local)")
	assert.Contains(t, out, "Registry root:")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "mount /x: no targetPath"))
}

func TestFlags(t *testing.T) {
	assert.Equal(t, "-", flags(false, "ro", false, "virtual"))
	assert.Equal(t, "ro,virtual", flags(true, "ro", true, "virtual", false, "query"))
}
