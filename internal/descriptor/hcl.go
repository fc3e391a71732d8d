package descriptor

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// HCL documents use blocks with labels for named entries:
//
//	currentDBConfig = "main"
//	dbConfig "main" {
//	  url = "jdbc:h2:${registry.home}/repository/database/REG_DB"
//	}
//	mount "/_system/config" {
//	  instanceId = "remote"
//	  targetPath = "/_system/nodes"
//	}
type hclDocument struct {
	RegistryRoot             *string             `hcl:"registryRoot,optional"`
	ReadOnly                 *string             `hcl:"readOnly,optional"`
	EnableCache              *string             `hcl:"enableCache,optional"`
	CurrentDBConfig          *string             `hcl:"currentDBConfig,optional"`
	VersionResourcesOnChange *string             `hcl:"versionResourcesOnChange,optional"`
	DBConfigs                []hclDBConfig       `hcl:"dbConfig,block"`
	CacheConfig              *hclCacheConfig     `hcl:"cacheConfig,block"`
	StaticConfiguration      *hclStaticConfig    `hcl:"staticConfiguration,block"`
	RemoteInstances          []hclRemoteInstance `hcl:"remoteInstance,block"`
	Mounts                   []hclMount          `hcl:"mount,block"`
	Handlers                 []hclHandler        `hcl:"handler,block"`
	Aspects                  []hclAspect         `hcl:"aspect,block"`
	QueryProcessors          []hclQueryProcessor `hcl:"queryProcessor,block"`
}

type hclDBConfig struct {
	Name                          string  `hcl:"name,label"`
	DataSource                    *string `hcl:"dataSource,optional"`
	UserName                      *string `hcl:"userName,optional"`
	Password                      *string `hcl:"password,optional"`
	URL                           *string `hcl:"url,optional"`
	DriverName                    *string `hcl:"driverName,optional"`
	MaxWait                       *string `hcl:"maxWait,optional"`
	TestWhileIdle                 *string `hcl:"testWhileIdle,optional"`
	TimeBetweenEvictionRunsMillis *string `hcl:"timeBetweenEvictionRunsMillis,optional"`
	MinEvictableIdleTimeMillis    *string `hcl:"minEvictableIdleTimeMillis,optional"`
	NumTestsPerEvictionRun        *string `hcl:"numTestsPerEvictionRun,optional"`
	MaxActive                     *string `hcl:"maxActive,optional"`
	MaxIdle                       *string `hcl:"maxIdle,optional"`
	MinIdle                       *string `hcl:"minIdle,optional"`
	ValidationQuery               *string `hcl:"validationQuery,optional"`
}

type hclCacheConfig struct {
	LastAccessedExpirationMillis *string `hcl:"lastAccessedExpirationMillis,optional"`
	LastModifiedExpirationMillis *string `hcl:"lastModifiedExpirationMillis,optional"`
}

type hclStaticConfig struct {
	VersioningProperties   *string `hcl:"versioningProperties,optional"`
	VersioningComments     *string `hcl:"versioningComments,optional"`
	VersioningTags         *string `hcl:"versioningTags,optional"`
	VersioningRatings      *string `hcl:"versioningRatings,optional"`
	VersioningAssociations *string `hcl:"versioningAssociations,optional"`
	ProfilesPath           *string `hcl:"profilesPath,optional"`
	ServicePath            *string `hcl:"servicePath,optional"`
}

type hclRemoteInstance struct {
	ID           string  `hcl:"id,label"`
	URL          *string `hcl:"url,optional"`
	Username     *string `hcl:"username,optional"`
	Password     *string `hcl:"password,optional"`
	Type         *string `hcl:"type,optional"`
	DBConfig     *string `hcl:"dbConfig,optional"`
	ReadOnly     *string `hcl:"readOnly,optional"`
	EnableCache  *string `hcl:"enableCache,optional"`
	CacheID      *string `hcl:"cacheId,optional"`
	RegistryRoot *string `hcl:"registryRoot,optional"`
}

type hclMount struct {
	Path         string  `hcl:"path,label"`
	InstanceID   *string `hcl:"instanceId,optional"`
	TargetPath   *string `hcl:"targetPath,optional"`
	Overwrite    *string `hcl:"overwrite,optional"`
	ResolveLinks *string `hcl:"resolveLinks,optional"`
}

type hclProperty struct {
	Name  string  `hcl:"name,label"`
	Type  *string `hcl:"type,optional"`
	Value *string `hcl:"value,optional"`
	XML   *string `hcl:"xml,optional"`
}

type hclFilter struct {
	Class      string        `hcl:"class,label"`
	Properties []hclProperty `hcl:"property,block"`
}

type hclEdit struct {
	Processor string `hcl:"processor,label"`
	Class     string `hcl:"class"`
}

type hclHandler struct {
	Class      string        `hcl:"class,label"`
	Methods    *string       `hcl:"methods,optional"`
	Tenant     *string       `hcl:"tenant,optional"`
	Profiles   *string       `hcl:"profiles,optional"`
	Properties []hclProperty `hcl:"property,block"`
	Filter     *hclFilter    `hcl:"filter,block"`
	Edit       *hclEdit      `hcl:"edit,block"`
}

type hclAspect struct {
	Name       string        `hcl:"name,label"`
	Class      *string       `hcl:"class,optional"`
	Properties []hclProperty `hcl:"property,block"`
	XML        *string       `hcl:"xml,optional"`
}

type hclQueryProcessor struct {
	QueryType string  `hcl:"queryType,label"`
	Processor *string `hcl:"processor,optional"`
}

// parseHCL reads an HCL descriptor. Interpolations are evaluated natively
// against the load variables and the environment, so unknown variables are
// errors here rather than being kept verbatim.
func parseHCL(data []byte, filename string, o *options) (*Descriptor, Warnings, error) {
	f, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("parsing descriptor HCL: %w", diags)
	}
	var doc hclDocument
	if diags := gohcl.DecodeBody(f.Body, evalContext(o), &doc); diags.HasErrors() {
		return nil, nil, fmt.Errorf("decoding descriptor HCL: %w", diags)
	}
	return build(doc.raw(), o)
}

// evalContext exposes dotted variables as objects (registry.home becomes
// registry = { home = ... }) and the environment as env.NAME.
func evalContext(o *options) *hcl.EvalContext {
	objects := make(map[string]map[string]cty.Value)
	vars := make(map[string]cty.Value)
	for name, value := range o.vars {
		prefix, attr, ok := strings.Cut(name, ".")
		if !ok {
			vars[name] = cty.StringVal(value)
			continue
		}
		if objects[prefix] == nil {
			objects[prefix] = make(map[string]cty.Value)
		}
		objects[prefix][attr] = cty.StringVal(value)
	}
	for prefix, attrs := range objects {
		vars[prefix] = cty.ObjectVal(attrs)
	}

	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if v, ok := o.lookupEnv(name); ok && name != "" {
			env[name] = cty.StringVal(v)
		}
	}
	vars["env"] = cty.ObjectVal(env)
	return &hcl.EvalContext{Variables: vars}
}

func (h *hclDocument) raw() *rawDocument {
	doc := &rawDocument{
		RegistryRoot:             h.RegistryRoot,
		ReadOnly:                 h.ReadOnly,
		EnableCache:              h.EnableCache,
		CurrentDBConfig:          h.CurrentDBConfig,
		VersionResourcesOnChange: h.VersionResourcesOnChange,
	}
	for _, c := range h.DBConfigs {
		doc.DBConfigs = append(doc.DBConfigs, rawDBConfig{
			Name:                          strPtr(c.Name),
			DataSource:                    c.DataSource,
			UserName:                      c.UserName,
			Password:                      c.Password,
			URL:                           c.URL,
			DriverName:                    c.DriverName,
			MaxWait:                       c.MaxWait,
			TestWhileIdle:                 c.TestWhileIdle,
			TimeBetweenEvictionRunsMillis: c.TimeBetweenEvictionRunsMillis,
			MinEvictableIdleTimeMillis:    c.MinEvictableIdleTimeMillis,
			NumTestsPerEvictionRun:        c.NumTestsPerEvictionRun,
			MaxActive:                     c.MaxActive,
			MaxIdle:                       c.MaxIdle,
			MinIdle:                       c.MinIdle,
			ValidationQuery:               c.ValidationQuery,
		})
	}
	if c := h.CacheConfig; c != nil {
		doc.CacheConfig = &rawCacheConfig{
			LastAccessedExpirationMillis: c.LastAccessedExpirationMillis,
			LastModifiedExpirationMillis: c.LastModifiedExpirationMillis,
		}
	}
	if s := h.StaticConfiguration; s != nil {
		doc.StaticConfiguration = &rawStaticConfig{
			VersioningProperties:   s.VersioningProperties,
			VersioningComments:     s.VersioningComments,
			VersioningTags:         s.VersioningTags,
			VersioningRatings:      s.VersioningRatings,
			VersioningAssociations: s.VersioningAssociations,
			ProfilesPath:           s.ProfilesPath,
			ServicePath:            s.ServicePath,
		}
	}
	for _, r := range h.RemoteInstances {
		doc.RemoteInstances = append(doc.RemoteInstances, rawRemoteInstance{
			ID:           strPtr(r.ID),
			URL:          r.URL,
			Username:     r.Username,
			Password:     r.Password,
			Type:         r.Type,
			DBConfig:     r.DBConfig,
			ReadOnly:     r.ReadOnly,
			EnableCache:  r.EnableCache,
			CacheID:      r.CacheID,
			RegistryRoot: r.RegistryRoot,
		})
	}
	for _, m := range h.Mounts {
		doc.Mounts = append(doc.Mounts, rawMount{
			Path:         strPtr(m.Path),
			InstanceID:   m.InstanceID,
			TargetPath:   m.TargetPath,
			Overwrite:    m.Overwrite,
			ResolveLinks: m.ResolveLinks,
		})
	}
	for _, hh := range h.Handlers {
		rh := rawHandler{
			Class:      strPtr(hh.Class),
			Methods:    hh.Methods,
			Tenant:     hh.Tenant,
			Profiles:   hh.Profiles,
			Properties: hclProperties(hh.Properties),
		}
		if hh.Filter != nil {
			rh.Filter = &rawFilter{Class: strPtr(hh.Filter.Class), Properties: hclProperties(hh.Filter.Properties)}
		}
		if hh.Edit != nil {
			rh.Edit = &rawEdit{Processor: strPtr(hh.Edit.Processor), Class: hh.Edit.Class}
		}
		doc.Handlers = append(doc.Handlers, rh)
	}
	for _, a := range h.Aspects {
		ra := rawAspect{Name: strPtr(a.Name), Class: a.Class, Properties: hclProperties(a.Properties)}
		if a.XML != nil {
			ra.Inner = *a.XML
		}
		doc.Aspects = append(doc.Aspects, ra)
	}
	for _, q := range h.QueryProcessors {
		doc.QueryProcessors = append(doc.QueryProcessors, rawQueryProcessor{
			QueryType: strPtr(q.QueryType),
			Processor: q.Processor,
		})
	}
	return doc
}

func hclProperties(props []hclProperty) []rawProperty {
	var out []rawProperty
	for _, p := range props {
		rp := rawProperty{Name: p.Name}
		if p.Type != nil {
			rp.Type = *p.Type
		}
		if p.Value != nil {
			rp.Text = *p.Value
		}
		if p.XML != nil {
			rp.Inner = *p.XML
		}
		out = append(out, rp)
	}
	return out
}
