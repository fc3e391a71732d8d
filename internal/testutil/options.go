package testutil

import (
	"strconv"
	"time"
)

// property is one <property> child.
type property struct {
	name  string
	value string
}

// dbConfigData holds a <dbConfig> element.
type dbConfigData struct {
	name       string
	url        string
	user       string
	password   string
	dataSource string
	maxActive  int
	maxWait    time.Duration
}

// DBConfigOption customizes a dbConfig.
type DBConfigOption func(*dbConfigData)

// WithUser sets userName.
func WithUser(user string) DBConfigOption {
	return func(d *dbConfigData) { d.user = user }
}

// WithPassword sets password; use "secret:NAME" for a secret reference.
func WithPassword(password string) DBConfigOption {
	return func(d *dbConfigData) { d.password = password }
}

// WithDataSource makes the dbConfig refer to a registered data source.
func WithDataSource(name string) DBConfigOption {
	return func(d *dbConfigData) {
		d.dataSource = name
		d.url = ""
	}
}

// WithPool sets maxActive and maxWait.
func WithPool(maxActive int, maxWait time.Duration) DBConfigOption {
	return func(d *dbConfigData) {
		d.maxActive = maxActive
		d.maxWait = maxWait
	}
}

// remoteData holds a <remoteInstance> element.
type remoteData struct {
	id       string
	url      string
	dbConfig string
	cacheID  string
	readOnly bool
}

// RemoteOption customizes a remote instance.
type RemoteOption func(*remoteData)

// RemoteDBConfig points the remote at a local dbConfig.
func RemoteDBConfig(name string) RemoteOption {
	return func(r *remoteData) { r.dbConfig = name }
}

// RemoteCacheID sets cacheId.
func RemoteCacheID(id string) RemoteOption {
	return func(r *remoteData) { r.cacheID = id }
}

// RemoteReadOnly marks the remote read-only.
func RemoteReadOnly() RemoteOption {
	return func(r *remoteData) { r.readOnly = true }
}

// mountData holds a <mount> element.
type mountData struct {
	path         string
	instanceID   string
	targetPath   string
	overwrite    string
	resolveLinks string
}

// MountOption customizes a mount.
type MountOption func(*mountData)

// Virtual marks the mount virtual.
func Virtual() MountOption {
	return func(m *mountData) { m.overwrite = "virtual" }
}

// Overwrite sets the overwrite attribute ("true", "false" or "virtual").
func Overwrite(value string) MountOption {
	return func(m *mountData) { m.overwrite = value }
}

// ResolveLinks sets the resolveLinks attribute, which also decides
// whether queries may run through the mount.
func ResolveLinks(resolve bool) MountOption {
	return func(m *mountData) { m.resolveLinks = strconv.FormatBool(resolve) }
}

// handlerData holds a <handler> element with its filter.
type handlerData struct {
	class       string
	methods     string
	profiles    string
	filterClass string
	filterProps []property
	props       []property
	edit        [2]string // processor key, class
}

// HandlerOption customizes a handler.
type HandlerOption func(*handlerData)

// Methods restricts the handler to a comma separated method list.
func Methods(methods string) HandlerOption {
	return func(h *handlerData) { h.methods = methods }
}

// Profiles sets the profiles attribute.
func Profiles(profiles string) HandlerOption {
	return func(h *handlerData) { h.profiles = profiles }
}

// Filter replaces the default URLMatcher filter.
func Filter(class string) HandlerOption {
	return func(h *handlerData) { h.filterClass = class }
}

// FilterProperty adds a filter property, e.g. ("getPattern", "/a/.*").
func FilterProperty(name, value string) HandlerOption {
	return func(h *handlerData) { h.filterProps = append(h.filterProps, property{name, value}) }
}

// HandlerProperty adds a handler property.
func HandlerProperty(name, value string) HandlerOption {
	return func(h *handlerData) { h.props = append(h.props, property{name, value}) }
}

// Edit registers an edit processor with the handler.
func Edit(key, class string) HandlerOption {
	return func(h *handlerData) { h.edit = [2]string{key, class} }
}
