package descriptor

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/zjrosen/regd/internal/tenant"
)

// RootElement is the root element name written for full descriptors and
// for the legacy export.
const RootElement = "wso2registry"

// rawDocument mirrors the descriptor as written, with every value still a
// string. Pointers distinguish an absent element from an empty one.
type rawDocument struct {
	XMLName                  xml.Name            `xml:"" mapstructure:"-" yaml:"-"`
	RegistryRoot             *string             `xml:"registryRoot,omitempty" mapstructure:"registryRoot" yaml:"registryRoot,omitempty"`
	ReadOnly                 *string             `xml:"readOnly,omitempty" mapstructure:"readOnly" yaml:"readOnly,omitempty"`
	EnableCache              *string             `xml:"enableCache,omitempty" mapstructure:"enableCache" yaml:"enableCache,omitempty"`
	DBConfigs                []rawDBConfig       `xml:"dbConfig" mapstructure:"dbConfig" yaml:"dbConfig,omitempty"`
	CurrentDBConfig          *string             `xml:"currentDBConfig,omitempty" mapstructure:"currentDBConfig" yaml:"currentDBConfig,omitempty"`
	CacheConfig              *rawCacheConfig     `xml:"cacheConfig,omitempty" mapstructure:"cacheConfig" yaml:"cacheConfig,omitempty"`
	StaticConfiguration      *rawStaticConfig    `xml:"staticConfiguration,omitempty" mapstructure:"staticConfiguration" yaml:"staticConfiguration,omitempty"`
	VersionResourcesOnChange *string             `xml:"versionResourcesOnChange,omitempty" mapstructure:"versionResourcesOnChange" yaml:"versionResourcesOnChange,omitempty"`
	RemoteInstances          []rawRemoteInstance `xml:"remoteInstance" mapstructure:"remoteInstance" yaml:"remoteInstance,omitempty"`
	Mounts                   []rawMount          `xml:"mount" mapstructure:"mount" yaml:"mount,omitempty"`
	Handlers                 []rawHandler        `xml:"handler" mapstructure:"handler" yaml:"handler,omitempty"`
	Aspects                  []rawAspect         `xml:"aspect" mapstructure:"aspect" yaml:"aspect,omitempty"`
	QueryProcessors          []rawQueryProcessor `xml:"queryProcessor" mapstructure:"queryProcessor" yaml:"queryProcessor,omitempty"`
}

type rawDBConfig struct {
	Name                          *string `xml:"name,attr,omitempty" mapstructure:"name" yaml:"name,omitempty"`
	DataSource                    *string `xml:"dataSource,omitempty" mapstructure:"dataSource" yaml:"dataSource,omitempty"`
	UserName                      *string `xml:"userName,omitempty" mapstructure:"userName" yaml:"userName,omitempty"`
	Password                      *string `xml:"password,omitempty" mapstructure:"password" yaml:"password,omitempty"`
	URL                           *string `xml:"url,omitempty" mapstructure:"url" yaml:"url,omitempty"`
	DriverName                    *string `xml:"driverName,omitempty" mapstructure:"driverName" yaml:"driverName,omitempty"`
	MaxWait                       *string `xml:"maxWait,omitempty" mapstructure:"maxWait" yaml:"maxWait,omitempty"`
	TestWhileIdle                 *string `xml:"testWhileIdle,omitempty" mapstructure:"testWhileIdle" yaml:"testWhileIdle,omitempty"`
	TimeBetweenEvictionRunsMillis *string `xml:"timeBetweenEvictionRunsMillis,omitempty" mapstructure:"timeBetweenEvictionRunsMillis" yaml:"timeBetweenEvictionRunsMillis,omitempty"`
	MinEvictableIdleTimeMillis    *string `xml:"minEvictableIdleTimeMillis,omitempty" mapstructure:"minEvictableIdleTimeMillis" yaml:"minEvictableIdleTimeMillis,omitempty"`
	NumTestsPerEvictionRun        *string `xml:"numTestsPerEvictionRun,omitempty" mapstructure:"numTestsPerEvictionRun" yaml:"numTestsPerEvictionRun,omitempty"`
	MaxActive                     *string `xml:"maxActive,omitempty" mapstructure:"maxActive" yaml:"maxActive,omitempty"`
	MaxIdle                       *string `xml:"maxIdle,omitempty" mapstructure:"maxIdle" yaml:"maxIdle,omitempty"`
	MinIdle                       *string `xml:"minIdle,omitempty" mapstructure:"minIdle" yaml:"minIdle,omitempty"`
	ValidationQuery               *string `xml:"validationQuery,omitempty" mapstructure:"validationQuery" yaml:"validationQuery,omitempty"`
}

type rawCacheConfig struct {
	LastAccessedExpirationMillis *string `xml:"lastAccessedExpirationMillis,omitempty" mapstructure:"lastAccessedExpirationMillis" yaml:"lastAccessedExpirationMillis,omitempty"`
	LastModifiedExpirationMillis *string `xml:"lastModifiedExpirationMillis,omitempty" mapstructure:"lastModifiedExpirationMillis" yaml:"lastModifiedExpirationMillis,omitempty"`
}

type rawStaticConfig struct {
	VersioningProperties   *string `xml:"versioningProperties,omitempty" mapstructure:"versioningProperties" yaml:"versioningProperties,omitempty"`
	VersioningComments     *string `xml:"versioningComments,omitempty" mapstructure:"versioningComments" yaml:"versioningComments,omitempty"`
	VersioningTags         *string `xml:"versioningTags,omitempty" mapstructure:"versioningTags" yaml:"versioningTags,omitempty"`
	VersioningRatings      *string `xml:"versioningRatings,omitempty" mapstructure:"versioningRatings" yaml:"versioningRatings,omitempty"`
	VersioningAssociations *string `xml:"versioningAssociations,omitempty" mapstructure:"versioningAssociations" yaml:"versioningAssociations,omitempty"`
	ProfilesPath           *string `xml:"profilesPath,omitempty" mapstructure:"profilesPath" yaml:"profilesPath,omitempty"`
	ServicePath            *string `xml:"servicePath,omitempty" mapstructure:"servicePath" yaml:"servicePath,omitempty"`
}

type rawRemoteInstance struct {
	URL          *string `xml:"url,attr,omitempty" mapstructure:"url" yaml:"url,omitempty"`
	ID           *string `xml:"id,omitempty" mapstructure:"id" yaml:"id,omitempty"`
	Username     *string `xml:"username,omitempty" mapstructure:"username" yaml:"username,omitempty"`
	Password     *string `xml:"password,omitempty" mapstructure:"password" yaml:"password,omitempty"`
	Type         *string `xml:"type,omitempty" mapstructure:"type" yaml:"type,omitempty"`
	DBConfig     *string `xml:"dbConfig,omitempty" mapstructure:"dbConfig" yaml:"dbConfig,omitempty"`
	ReadOnly     *string `xml:"readOnly,omitempty" mapstructure:"readOnly" yaml:"readOnly,omitempty"`
	EnableCache  *string `xml:"enableCache,omitempty" mapstructure:"enableCache" yaml:"enableCache,omitempty"`
	CacheID      *string `xml:"cacheId,omitempty" mapstructure:"cacheId" yaml:"cacheId,omitempty"`
	RegistryRoot *string `xml:"registryRoot,omitempty" mapstructure:"registryRoot" yaml:"registryRoot,omitempty"`
}

type rawMount struct {
	Path         *string `xml:"path,attr,omitempty" mapstructure:"path" yaml:"path,omitempty"`
	Overwrite    *string `xml:"overwrite,attr,omitempty" mapstructure:"overwrite" yaml:"overwrite,omitempty"`
	ResolveLinks *string `xml:"resolveLinks,attr,omitempty" mapstructure:"resolveLinks" yaml:"resolveLinks,omitempty"`
	InstanceID   *string `xml:"instanceId,omitempty" mapstructure:"instanceId" yaml:"instanceId,omitempty"`
	TargetPath   *string `xml:"targetPath,omitempty" mapstructure:"targetPath" yaml:"targetPath,omitempty"`
}

type rawProperty struct {
	Name string `xml:"name,attr" mapstructure:"name" yaml:"name"`
	Type string `xml:"type,attr,omitempty" mapstructure:"type" yaml:"type,omitempty"`
	Text string `xml:",chardata" mapstructure:"value" yaml:"value,omitempty"`
	// Inner is the raw markup inside the element, used by type="xml".
	Inner string `xml:",innerxml" mapstructure:"xml" yaml:"xml,omitempty"`
}

type rawFilter struct {
	Class      *string       `xml:"class,attr,omitempty" mapstructure:"class" yaml:"class,omitempty"`
	Properties []rawProperty `xml:"property" mapstructure:"property" yaml:"property,omitempty"`
}

type rawEdit struct {
	Processor *string `xml:"processor,attr,omitempty" mapstructure:"processor" yaml:"processor,omitempty"`
	Class     string  `xml:",chardata" mapstructure:"class" yaml:"class,omitempty"`
}

type rawHandler struct {
	Class      *string       `xml:"class,attr,omitempty" mapstructure:"class" yaml:"class,omitempty"`
	Methods    *string       `xml:"methods,attr,omitempty" mapstructure:"methods" yaml:"methods,omitempty"`
	Tenant     *string       `xml:"tenant,attr,omitempty" mapstructure:"tenant" yaml:"tenant,omitempty"`
	Profiles   *string       `xml:"profiles,attr,omitempty" mapstructure:"profiles" yaml:"profiles,omitempty"`
	Properties []rawProperty `xml:"property" mapstructure:"property" yaml:"property,omitempty"`
	Filter     *rawFilter    `xml:"filter,omitempty" mapstructure:"filter" yaml:"filter,omitempty"`
	Edit       *rawEdit      `xml:"edit,omitempty" mapstructure:"edit" yaml:"edit,omitempty"`
}

type rawAspect struct {
	Name       *string       `xml:"name,attr,omitempty" mapstructure:"name" yaml:"name,omitempty"`
	Class      *string       `xml:"class,attr,omitempty" mapstructure:"class" yaml:"class,omitempty"`
	Properties []rawProperty `xml:"property" mapstructure:"property" yaml:"property,omitempty"`
	Inner      string        `xml:",innerxml" mapstructure:"xml" yaml:"xml,omitempty"`
}

type rawQueryProcessor struct {
	QueryType *string `xml:"queryType,omitempty" mapstructure:"queryType" yaml:"queryType,omitempty"`
	Processor *string `xml:"processor,omitempty" mapstructure:"processor" yaml:"processor,omitempty"`
}

func strPtr(s string) *string {
	return &s
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolStr(b bool) *string {
	return strPtr(strconv.FormatBool(b))
}

func millisStr(d time.Duration) *string {
	return strPtr(strconv.FormatInt(d.Milliseconds(), 10))
}

// toRaw converts a typed descriptor back into its document form. Loading the
// result again yields an equal Descriptor.
func toRaw(d *Descriptor) *rawDocument {
	doc := &rawDocument{
		XMLName:                  xml.Name{Local: RootElement},
		ReadOnly:                 boolStr(d.ReadOnly),
		EnableCache:              boolStr(d.EnableCache),
		CurrentDBConfig:          optStr(d.CurrentDBConfig),
		VersionResourcesOnChange: boolStr(d.VersionResourcesOnChange),
	}
	root := d.RegistryRoot
	if root == "" {
		root = RootPath
	}
	doc.RegistryRoot = strPtr(root)

	for _, c := range d.DBConfigs {
		rc := rawDBConfig{Name: strPtr(c.Name)}
		if c.UsesDataSource() {
			rc.DataSource = strPtr(c.DataSource)
		} else {
			rc.UserName = optStr(c.UserName)
			rc.Password = optStr(c.Password)
			rc.URL = optStr(c.URL)
			rc.DriverName = optStr(c.DriverName)
			if c.MaxWait > 0 {
				rc.MaxWait = millisStr(c.MaxWait)
			}
			if c.TestWhileIdle {
				rc.TestWhileIdle = boolStr(true)
			}
			if c.TimeBetweenEvictionRuns > 0 {
				rc.TimeBetweenEvictionRunsMillis = millisStr(c.TimeBetweenEvictionRuns)
			}
			if c.MinEvictableIdleTime > 0 {
				rc.MinEvictableIdleTimeMillis = millisStr(c.MinEvictableIdleTime)
			}
			if c.NumTestsPerEvictionRun > 0 {
				rc.NumTestsPerEvictionRun = strPtr(strconv.Itoa(c.NumTestsPerEvictionRun))
			}
			if c.MaxActive > 0 {
				rc.MaxActive = strPtr(strconv.Itoa(c.MaxActive))
			}
			if c.MaxIdle > 0 {
				rc.MaxIdle = strPtr(strconv.Itoa(c.MaxIdle))
			}
			if c.MinIdle > 0 {
				rc.MinIdle = strPtr(strconv.Itoa(c.MinIdle))
			}
			rc.ValidationQuery = optStr(c.ValidationQuery)
		}
		doc.DBConfigs = append(doc.DBConfigs, rc)
	}

	doc.CacheConfig = &rawCacheConfig{
		LastAccessedExpirationMillis: millisStr(d.Cache.LastAccessedExpiration),
		LastModifiedExpirationMillis: millisStr(d.Cache.LastModifiedExpiration),
	}
	doc.StaticConfiguration = &rawStaticConfig{
		VersioningProperties:   boolStr(d.Static.VersioningProperties),
		VersioningComments:     boolStr(d.Static.VersioningComments),
		VersioningTags:         boolStr(d.Static.VersioningTags),
		VersioningRatings:      boolStr(d.Static.VersioningRatings),
		VersioningAssociations: boolStr(d.Static.VersioningAssociations),
		ProfilesPath:           optStr(d.Static.ProfilesPath),
		ServicePath:            optStr(d.Static.ServicePath),
	}

	for _, r := range d.RemoteInstances {
		doc.RemoteInstances = append(doc.RemoteInstances, rawRemoteInstance{
			URL:          optStr(r.URL),
			ID:           strPtr(r.ID),
			Username:     optStr(r.TrustedUser),
			Password:     optStr(r.TrustedPassword),
			Type:         optStr(r.Type),
			DBConfig:     optStr(r.DBConfig),
			ReadOnly:     boolStr(r.ReadOnly),
			EnableCache:  boolStr(r.CacheEnabled),
			CacheID:      optStr(r.CacheID),
			RegistryRoot: optStr(r.RegistryRoot),
		})
	}

	for _, m := range d.Mounts {
		rm := rawMount{
			Path:       strPtr(m.Path),
			InstanceID: strPtr(m.InstanceID),
			TargetPath: strPtr(m.TargetPath),
		}
		switch {
		case m.Overwrite:
			rm.Overwrite = strPtr("true")
		case m.Virtual:
			rm.Overwrite = strPtr("virtual")
		}
		if !m.ExecuteQueryAllowed {
			rm.ResolveLinks = strPtr("false")
		}
		doc.Mounts = append(doc.Mounts, rm)
	}

	for _, h := range d.Handlers {
		rh := rawHandler{
			Class:      strPtr(h.Class),
			Properties: rawProperties(h.Properties),
			Filter: &rawFilter{
				Class:      strPtr(h.Filter.Class),
				Properties: rawProperties(h.Filter.Properties),
			},
		}
		if h.Methods != nil {
			rh.Methods = strPtr(strings.Join(h.Methods, ","))
		}
		if h.TenantID != tenant.InvalidID {
			rh.Tenant = strPtr(strconv.Itoa(h.TenantID))
		}
		if len(h.Profiles) > 0 {
			rh.Profiles = strPtr(strings.Join(h.Profiles, ","))
		}
		if h.Edit != nil {
			rh.Edit = &rawEdit{Processor: strPtr(h.Edit.Processor), Class: h.Edit.Class}
		}
		doc.Handlers = append(doc.Handlers, rh)
	}

	for _, a := range d.Aspects {
		ra := rawAspect{Name: strPtr(a.Name), Class: strPtr(a.Class)}
		// The inner markup already carries the property elements.
		if a.XML != "" {
			ra.Inner = a.XML
		} else {
			ra.Properties = rawProperties(a.Properties)
		}
		doc.Aspects = append(doc.Aspects, ra)
	}

	for _, q := range d.QueryProcessors {
		doc.QueryProcessors = append(doc.QueryProcessors, rawQueryProcessor{
			QueryType: optStr(q.QueryType),
			Processor: optStr(q.Processor),
		})
	}
	return doc
}

func rawProperties(props []Property) []rawProperty {
	if len(props) == 0 {
		return nil
	}
	out := make([]rawProperty, 0, len(props))
	for _, p := range props {
		rp := rawProperty{Name: p.Name, Type: p.Type}
		if p.IsXML() {
			rp.Inner = p.XML
		} else {
			rp.Text = p.Value
		}
		out = append(out, rp)
	}
	return out
}
