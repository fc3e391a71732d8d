package descriptor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/regd/internal/tenant"
)

type options struct {
	vars         map[string]string
	profile      string
	tenants      tenant.Resolver
	lookupEnv    func(string) (string, bool)
	readOnlyNode bool
}

// Option customizes a load.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		vars:      make(map[string]string),
		profile:   DefaultProfile,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHome sets the installation directory substituted for ${registry.home}
// (and its alias ${carbon.home}).
func WithHome(dir string) Option {
	return func(o *options) {
		home := strings.ReplaceAll(filepath.ToSlash(dir), `\`, "/")
		o.vars["registry.home"] = home
		o.vars["carbon.home"] = home
	}
}

// WithVar adds a ${name} substitution.
func WithVar(name, value string) Option {
	return func(o *options) {
		o.vars[name] = value
	}
}

// WithProfile selects the active profile used to filter handlers.
func WithProfile(profile string) Option {
	return func(o *options) {
		if p := strings.TrimSpace(profile); p != "" {
			o.profile = p
		}
	}
}

// WithTenantResolver resolves handler tenant attributes that are names.
func WithTenantResolver(r tenant.Resolver) Option {
	return func(o *options) {
		o.tenants = r
	}
}

// WithEnv replaces the environment lookup used for ${NAME} substitution.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(o *options) {
		if lookup != nil {
			o.lookupEnv = lookup
		}
	}
}

// WithReadOnlyNode forces the descriptor read-only regardless of its
// readOnly element.
func WithReadOnlyNode(readOnly bool) Option {
	return func(o *options) {
		o.readOnlyNode = readOnly
	}
}
