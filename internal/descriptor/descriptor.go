// Package descriptor loads the registry descriptor into typed configuration.
//
// The canonical format is XML (a root element with dbConfig, mount,
// remoteInstance, handler, aspect, queryProcessor, cacheConfig and
// staticConfiguration children). YAML, JSON, TOML and HCL documents with the
// same field names are accepted too. Every front-end decodes into the same
// string-typed raw document, and a single build step coerces and normalizes
// it, failing fast on malformed values and collecting warnings for elements
// that are skipped.
package descriptor

import (
	"errors"
	"fmt"
	"time"
)

// Registry path constants.
const (
	RootPath           = "/"
	PathSeparator      = "/"
	URLSeparator       = ";"
	ConfigBasePath     = "/_system/config"
	GovernanceBasePath = "/_system/governance"
	LocalBasePath      = "/_system/local"

	DefaultProfilesPath = ConfigBasePath + "/users"
	DefaultServicePath  = GovernanceBasePath + "/trunk/services"

	DefaultProfile = "default"

	// DefaultCacheExpiration applies to both cache expirations when the
	// descriptor has no cacheConfig element.
	DefaultCacheExpiration = 15 * time.Minute
)

var (
	// ErrMissingRequired is returned when a structurally required element or
	// attribute is absent.
	ErrMissingRequired = errors.New("missing required value")

	// ErrDuplicate is returned when two entries share an identifier that must
	// be unique (dbConfig name, remote instance id, mount path).
	ErrDuplicate = errors.New("duplicate definition")

	// ErrInvalidValue is returned when a typed field cannot be parsed.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnknownReference is returned when an entry names another entry that
	// does not exist.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrUnsupportedFormat is returned by Load for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported descriptor format")
)

// Descriptor is the typed registry configuration.
type Descriptor struct {
	RegistryRoot             string              `json:"registryRoot,omitempty"`
	ReadOnly                 bool                `json:"readOnly"`
	EnableCache              bool                `json:"enableCache"`
	DBConfigs                []DBConfig          `json:"dbConfigs"`
	CurrentDBConfig          string              `json:"currentDBConfig"`
	Cache                    CacheConfig         `json:"cache"`
	Static                   StaticConfig        `json:"static"`
	VersionResourcesOnChange bool                `json:"versionResourcesOnChange"`
	RemoteInstances          []RemoteInstance    `json:"remoteInstances,omitempty"`
	Mounts                   []Mount             `json:"mounts,omitempty"`
	Handlers                 []HandlerDef        `json:"handlers,omitempty"`
	Aspects                  []AspectDef         `json:"aspects,omitempty"`
	QueryProcessors          []QueryProcessorDef `json:"queryProcessors,omitempty"`
}

// DBConfig describes one named database configuration. It either names a
// registered data source or carries direct connection settings.
type DBConfig struct {
	Name                    string        `json:"name"`
	DataSource              string        `json:"dataSource,omitempty"`
	UserName                string        `json:"userName,omitempty"`
	Password                string        `json:"-"`
	URL                     string        `json:"url,omitempty"`
	DriverName              string        `json:"driverName,omitempty"`
	MaxWait                 time.Duration `json:"maxWait,omitempty"`
	TestWhileIdle           bool          `json:"testWhileIdle,omitempty"`
	TimeBetweenEvictionRuns time.Duration `json:"timeBetweenEvictionRuns,omitempty"`
	MinEvictableIdleTime    time.Duration `json:"minEvictableIdleTime,omitempty"`
	NumTestsPerEvictionRun  int           `json:"numTestsPerEvictionRun,omitempty"`
	MaxActive               int           `json:"maxActive,omitempty"`
	MaxIdle                 int           `json:"maxIdle,omitempty"`
	MinIdle                 int           `json:"minIdle,omitempty"`
	ValidationQuery         string        `json:"validationQuery,omitempty"`
}

// UsesDataSource reports whether the config refers to a named data source
// instead of a connection URL.
func (c DBConfig) UsesDataSource() bool {
	return c.DataSource != ""
}

// CacheConfig holds the registry resource cache expirations.
type CacheConfig struct {
	LastAccessedExpiration time.Duration `json:"lastAccessedExpiration"`
	LastModifiedExpiration time.Duration `json:"lastModifiedExpiration"`
}

// StaticConfig holds one-time start-up settings.
type StaticConfig struct {
	VersioningProperties   bool   `json:"versioningProperties"`
	VersioningComments     bool   `json:"versioningComments"`
	VersioningTags         bool   `json:"versioningTags"`
	VersioningRatings      bool   `json:"versioningRatings"`
	VersioningAssociations bool   `json:"versioningAssociations"`
	ProfilesPath           string `json:"profilesPath"`
	ServicePath            string `json:"servicePath"`
}

// RemoteInstance describes a remote registry that mounts can point at.
type RemoteInstance struct {
	ID              string `json:"id"`
	URL             string `json:"url,omitempty"`
	TrustedUser     string `json:"username,omitempty"`
	TrustedPassword string `json:"-"`
	Type            string `json:"type,omitempty"`
	DBConfig        string `json:"dbConfig,omitempty"`
	ReadOnly        bool   `json:"readOnly"`
	CacheEnabled    bool   `json:"enableCache"`
	CacheID         string `json:"cacheId,omitempty"`
	RegistryRoot    string `json:"registryRoot,omitempty"`
}

// Mount associates a local registry path with a path on a remote instance.
type Mount struct {
	Path                string `json:"path"`
	InstanceID          string `json:"instanceId"`
	TargetPath          string `json:"targetPath"`
	Overwrite           bool   `json:"overwrite"`
	Virtual             bool   `json:"virtual"`
	ExecuteQueryAllowed bool   `json:"executeQueryAllowed"`
}

// Property is a name/value pair configured on a handler, filter or aspect.
// Properties with type "xml" keep the raw inner XML of their element.
type Property struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
	XML   string `json:"xml,omitempty"`
}

// IsXML reports whether the property carries an XML fragment.
func (p Property) IsXML() bool {
	return p.Type == "xml"
}

// HandlerDef configures one handler with its filter.
type HandlerDef struct {
	Class string `json:"class"`
	// Methods is nil when the handler is engaged for every method.
	Methods    []string   `json:"methods,omitempty"`
	TenantID   int        `json:"tenantId"`
	Profiles   []string   `json:"profiles,omitempty"`
	Properties []Property `json:"properties,omitempty"`
	Filter     FilterDef  `json:"filter"`
	Edit       *EditDef   `json:"edit,omitempty"`
}

// FilterDef configures the filter guarding a handler.
type FilterDef struct {
	Class      string     `json:"class"`
	Properties []Property `json:"properties,omitempty"`
}

// EditDef registers a custom edit processor under a key.
type EditDef struct {
	Processor string `json:"processor"`
	Class     string `json:"class"`
}

// AspectDef configures a named aspect.
type AspectDef struct {
	Name       string     `json:"name"`
	Class      string     `json:"class"`
	Properties []Property `json:"properties,omitempty"`
	XML        string     `json:"xml,omitempty"`
}

// QueryProcessorDef maps a query type to a processor factory key.
type QueryProcessorDef struct {
	QueryType string `json:"queryType"`
	Processor string `json:"processor"`
}

// DBConfig returns the database configuration with the given name.
func (d *Descriptor) DBConfig(name string) (DBConfig, bool) {
	for _, c := range d.DBConfigs {
		if c.Name == name {
			return c, true
		}
	}
	return DBConfig{}, false
}

// RemoteInstance returns the remote instance with the given id.
func (d *Descriptor) RemoteInstance(id string) (RemoteInstance, bool) {
	for _, r := range d.RemoteInstances {
		if r.ID == id {
			return r, true
		}
	}
	return RemoteInstance{}, false
}

// Warning records an element that was skipped or adjusted while loading.
type Warning struct {
	Element string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Element, w.Message)
}

// Warnings is the list of warnings produced by one load.
type Warnings []Warning

// Strings renders each warning.
func (ws Warnings) Strings() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
