package descriptor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalizeRegistryRoot(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"//", ""},
		{"/registry", "/registry"},
		{"/registry/", "/registry"},
		{"registry", "/registry"},
		{" /a/b/ ", "/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRegistryRoot(tt.in))
		})
	}
}

func TestNormalizeUnder(t *testing.T) {
	tests := []struct {
		base, in, want string
	}{
		{ConfigBasePath, "users/", "/_system/config/users"},
		{ConfigBasePath, "/users", "/_system/config/users"},
		{ConfigBasePath, "/_system/config/profiles/", "/_system/config/profiles"},
		{ConfigBasePath, "/_system/configuration", "/_system/config/_system/configuration"},
		{GovernanceBasePath, "trunk/services", "/_system/governance/trunk/services"},
		{GovernanceBasePath, "/_system/governance", "/_system/governance"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUnder(tt.base, tt.in))
		})
	}
}

func TestNormalizeRegistryRoot_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.StringMatching(`/?([a-z]{1,5}/){0,3}[a-z]{0,5}/{0,3}`).Draw(rt, "root")
		got := NormalizeRegistryRoot(in)

		if got != "" {
			assert.True(rt, strings.HasPrefix(got, "/"))
			assert.False(rt, strings.HasSuffix(got, "/"))
		}
		assert.Equal(rt, got, NormalizeRegistryRoot(got), "idempotent")
	})
}

func TestNormalizeUnder_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.StringMatching(`/?[a-z]{1,6}(/[a-z]{1,6}){0,2}/?`).Draw(rt, "path")
		got := NormalizeUnder(ConfigBasePath, in)

		assert.True(rt, got == ConfigBasePath || strings.HasPrefix(got, ConfigBasePath+"/"))
		assert.Equal(rt, got, NormalizeUnder(ConfigBasePath, got), "idempotent")
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Empty(t, splitList(""))
}

func TestExpand_LeavesUnknownPlaceholders(t *testing.T) {
	o := newOptions([]Option{WithEnv(func(string) (string, bool) { return "", false })})
	assert.Equal(t, "${a.b} and ${c}", string(expand([]byte("${a.b} and ${c}"), o)))
}
