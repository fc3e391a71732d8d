package descriptor

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strings"

	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/tenant"
)

// builder turns a raw document into a Descriptor, collecting warnings for
// skipped elements.
type builder struct {
	opts     *options
	warnings Warnings
}

func (b *builder) warn(element, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.warnings = append(b.warnings, Warning{Element: element, Message: msg})
	log.Warn(log.CatConfig, msg, "element", element)
}

func build(doc *rawDocument, o *options) (*Descriptor, Warnings, error) {
	b := &builder{opts: o}
	d, err := b.build(doc)
	if err != nil {
		return nil, b.warnings, err
	}
	return d, b.warnings, nil
}

func (b *builder) build(doc *rawDocument) (*Descriptor, error) {
	d := &Descriptor{
		RegistryRoot:             NormalizeRegistryRoot(text(doc.RegistryRoot)),
		ReadOnly:                 isTrue(doc.ReadOnly) || b.opts.readOnlyNode,
		EnableCache:              isTrue(doc.EnableCache),
		VersionResourcesOnChange: isTrue(doc.VersionResourcesOnChange),
	}

	if err := b.dbConfigs(d, doc.DBConfigs); err != nil {
		return nil, err
	}
	if err := b.cacheConfig(d, doc.CacheConfig); err != nil {
		return nil, err
	}
	d.Static = b.staticConfig(doc.StaticConfiguration)

	current := text(doc.CurrentDBConfig)
	if current == "" {
		return nil, fmt.Errorf("currentDBConfig: %w", ErrMissingRequired)
	}
	if _, ok := d.DBConfig(current); !ok {
		return nil, fmt.Errorf("currentDBConfig %q does not name a dbConfig: %w", current, ErrUnknownReference)
	}
	d.CurrentDBConfig = current

	if err := b.remoteInstances(d, doc.RemoteInstances); err != nil {
		return nil, err
	}
	if err := b.mounts(d, doc.Mounts); err != nil {
		return nil, err
	}
	b.handlers(d, doc.Handlers)
	b.queryProcessors(d, doc.QueryProcessors)
	if err := b.aspects(d, doc.Aspects); err != nil {
		return nil, err
	}
	return d, nil
}

func (b *builder) dbConfigs(d *Descriptor, raws []rawDBConfig) error {
	for _, rc := range raws {
		name := text(rc.Name)
		if name == "" {
			return fmt.Errorf("dbConfig: the database configuration name cannot be empty: %w", ErrMissingRequired)
		}
		if _, dup := d.DBConfig(name); dup {
			return fmt.Errorf("dbConfig %q: %w", name, ErrDuplicate)
		}
		elem := "dbConfig " + name
		c := DBConfig{Name: name, DataSource: text(rc.DataSource)}
		if !c.UsesDataSource() {
			var err error
			if c, err = b.directDBConfig(elem, c, rc); err != nil {
				return err
			}
		}
		d.DBConfigs = append(d.DBConfigs, c)
	}
	return nil
}

func (b *builder) directDBConfig(elem string, c DBConfig, rc rawDBConfig) (DBConfig, error) {
	c.URL = text(rc.URL)
	if c.URL == "" {
		return c, fmt.Errorf("%s: url: %w", elem, ErrMissingRequired)
	}
	c.UserName = text(rc.UserName)
	c.Password = text(rc.Password)
	c.DriverName = text(rc.DriverName)
	c.ValidationQuery = text(rc.ValidationQuery)

	var err error
	if c.MaxWait, err = parseMillis(elem, "maxWait", rc.MaxWait); err != nil {
		return c, err
	}
	if c.TestWhileIdle, err = parseBool(elem, "testWhileIdle", rc.TestWhileIdle); err != nil {
		return c, err
	}
	if c.TimeBetweenEvictionRuns, err = parseMillis(elem, "timeBetweenEvictionRunsMillis", rc.TimeBetweenEvictionRunsMillis); err != nil {
		return c, err
	}
	if c.MinEvictableIdleTime, err = parseMillis(elem, "minEvictableIdleTimeMillis", rc.MinEvictableIdleTimeMillis); err != nil {
		return c, err
	}
	if c.NumTestsPerEvictionRun, err = parseInt(elem, "numTestsPerEvictionRun", rc.NumTestsPerEvictionRun); err != nil {
		return c, err
	}
	if c.MaxActive, err = parseInt(elem, "maxActive", rc.MaxActive); err != nil {
		return c, err
	}
	if c.MaxIdle, err = parseInt(elem, "maxIdle", rc.MaxIdle); err != nil {
		return c, err
	}
	if c.MinIdle, err = parseInt(elem, "minIdle", rc.MinIdle); err != nil {
		return c, err
	}
	return c, nil
}

func (b *builder) cacheConfig(d *Descriptor, rc *rawCacheConfig) error {
	d.Cache = CacheConfig{
		LastAccessedExpiration: DefaultCacheExpiration,
		LastModifiedExpiration: DefaultCacheExpiration,
	}
	if rc == nil {
		return nil
	}
	if text(rc.LastAccessedExpirationMillis) == "" {
		return fmt.Errorf("cacheConfig: lastAccessedExpirationMillis: %w", ErrMissingRequired)
	}
	if text(rc.LastModifiedExpirationMillis) == "" {
		return fmt.Errorf("cacheConfig: lastModifiedExpirationMillis: %w", ErrMissingRequired)
	}
	var err error
	if d.Cache.LastAccessedExpiration, err = parseMillis("cacheConfig", "lastAccessedExpirationMillis", rc.LastAccessedExpirationMillis); err != nil {
		return err
	}
	if d.Cache.LastModifiedExpiration, err = parseMillis("cacheConfig", "lastModifiedExpirationMillis", rc.LastModifiedExpirationMillis); err != nil {
		return err
	}
	return nil
}

func (b *builder) staticConfig(rs *rawStaticConfig) StaticConfig {
	s := StaticConfig{
		VersioningProperties:   true,
		VersioningComments:     true,
		VersioningTags:         true,
		VersioningRatings:      true,
		VersioningAssociations: true,
		ProfilesPath:           DefaultProfilesPath,
		ServicePath:            DefaultServicePath,
	}
	if rs == nil {
		return s
	}
	flag := func(v *string, def bool) bool {
		if v == nil {
			return def
		}
		return isTrue(v)
	}
	s.VersioningProperties = flag(rs.VersioningProperties, true)
	s.VersioningComments = flag(rs.VersioningComments, true)
	s.VersioningTags = flag(rs.VersioningTags, true)
	s.VersioningRatings = flag(rs.VersioningRatings, true)
	s.VersioningAssociations = flag(rs.VersioningAssociations, true)
	if p := text(rs.ProfilesPath); p != "" {
		s.ProfilesPath = NormalizeUnder(ConfigBasePath, p)
	}
	if p := text(rs.ServicePath); p != "" {
		s.ServicePath = NormalizeUnder(GovernanceBasePath, p)
	}
	return s
}

func (b *builder) remoteInstances(d *Descriptor, raws []rawRemoteInstance) error {
	for _, rr := range raws {
		id := text(rr.ID)
		if id == "" {
			return fmt.Errorf("remoteInstance: id: %w", ErrMissingRequired)
		}
		if _, dup := d.RemoteInstance(id); dup {
			return fmt.Errorf("remoteInstance %q: two remote instances can't have the same id: %w", id, ErrDuplicate)
		}
		elem := "remoteInstance " + id
		r := RemoteInstance{
			ID:              id,
			URL:             text(rr.URL),
			TrustedUser:     text(rr.Username),
			TrustedPassword: text(rr.Password),
			Type:            text(rr.Type),
			DBConfig:        text(rr.DBConfig),
			CacheID:         text(rr.CacheID),
		}
		if rr.RegistryRoot != nil {
			r.RegistryRoot = NormalizeRegistryRoot(text(rr.RegistryRoot))
		}
		var err error
		if r.ReadOnly, err = parseBool(elem, "readOnly", rr.ReadOnly); err != nil {
			return err
		}
		if r.CacheEnabled, err = parseBool(elem, "enableCache", rr.EnableCache); err != nil {
			return err
		}
		d.RemoteInstances = append(d.RemoteInstances, r)
	}
	return nil
}

func (b *builder) mounts(d *Descriptor, raws []rawMount) error {
	seen := make(map[string]bool, len(raws))
	for i, rm := range raws {
		path := text(rm.Path)
		if path == "" {
			b.warn(fmt.Sprintf("mount[%d]", i), "mount has no path attribute, skipping")
			continue
		}
		if seen[path] {
			return fmt.Errorf("mount %q: two mounts can't have the same path: %w", path, ErrDuplicate)
		}
		elem := "mount " + path
		instanceID := text(rm.InstanceID)
		if instanceID == "" {
			b.warn(elem, "mount has no instanceId, skipping")
			continue
		}
		target := text(rm.TargetPath)
		if target == "" {
			b.warn(elem, "mount has no targetPath, skipping")
			continue
		}
		m := Mount{
			Path:                path,
			InstanceID:          instanceID,
			TargetPath:          target,
			ExecuteQueryAllowed: !strings.EqualFold(text(rm.ResolveLinks), "false"),
		}
		switch ow := text(rm.Overwrite); {
		case strings.EqualFold(ow, "true"):
			m.Overwrite = true
		case strings.EqualFold(ow, "virtual"):
			m.Virtual = true
		}
		seen[path] = true
		d.Mounts = append(d.Mounts, m)
	}
	return nil
}

func (b *builder) handlers(d *Descriptor, raws []rawHandler) {
	for i, rh := range raws {
		class := text(rh.Class)
		elem := fmt.Sprintf("handler[%d] %s", i, class)
		if class == "" {
			b.warn(elem, "handler has no class attribute, skipping")
			continue
		}
		h := HandlerDef{Class: class, TenantID: tenant.InvalidID}

		if rh.Profiles != nil {
			h.Profiles = dedupe(splitList(text(rh.Profiles)))
			if !slices.Contains(h.Profiles, b.opts.profile) {
				b.warn(elem, "handler not enabled for profile %q, skipping", b.opts.profile)
				continue
			}
		}
		if rh.Methods != nil {
			h.Methods = b.methods(elem, text(rh.Methods))
		}
		if ref := text(rh.Tenant); ref != "" {
			id, ok := tenant.Parse(ref, b.opts.tenants)
			if !ok {
				b.warn(elem, "unknown tenant %q", ref)
			}
			h.TenantID = id
		}
		h.Properties = b.properties(elem, rh.Properties)

		if rh.Filter == nil || text(rh.Filter.Class) == "" {
			b.warn(elem, "handler has no filter, skipping")
			continue
		}
		h.Filter = FilterDef{
			Class:      text(rh.Filter.Class),
			Properties: b.properties(elem+" filter", rh.Filter.Properties),
		}

		if rh.Edit != nil {
			key, editClass := text(rh.Edit.Processor), strings.TrimSpace(rh.Edit.Class)
			if key == "" || editClass == "" {
				b.warn(elem, "edit element needs a processor attribute and a class, ignoring it")
			} else {
				h.Edit = &EditDef{Processor: key, Class: editClass}
			}
		}
		d.Handlers = append(d.Handlers, h)
	}
}

// methods returns a non-nil slice: an explicit methods attribute never
// means "all methods", even when every entry is unknown.
func (b *builder) methods(elem, list string) []string {
	out := []string{}
	for _, name := range splitList(list) {
		m, ok := method.Parse(name)
		if !ok {
			b.warn(elem, "unknown method %q, ignoring it", name)
			continue
		}
		if !slices.Contains(out, string(m)) {
			out = append(out, string(m))
		}
	}
	return out
}

func (b *builder) properties(elem string, raws []rawProperty) []Property {
	var out []Property
	for _, rp := range raws {
		name := strings.TrimSpace(rp.Name)
		if name == "" {
			b.warn(elem, "property without a name, skipping")
			continue
		}
		p := Property{Name: name, Type: strings.TrimSpace(rp.Type)}
		if p.IsXML() {
			p.XML = strings.TrimSpace(rp.Inner)
		} else {
			p.Value = strings.TrimSpace(rp.Text)
		}
		out = append(out, p)
	}
	return out
}

func (b *builder) queryProcessors(d *Descriptor, raws []rawQueryProcessor) {
	for i, rq := range raws {
		q := QueryProcessorDef{QueryType: text(rq.QueryType), Processor: text(rq.Processor)}
		if q.QueryType == "" || q.Processor == "" {
			b.warn(fmt.Sprintf("queryProcessor[%d]", i), "queryProcessor needs queryType and processor, skipping")
			continue
		}
		d.QueryProcessors = append(d.QueryProcessors, q)
	}
}

func (b *builder) aspects(d *Descriptor, raws []rawAspect) error {
	for i, ra := range raws {
		name := text(ra.Name)
		if name == "" {
			return fmt.Errorf("aspect[%d]: name: %w", i, ErrMissingRequired)
		}
		class := text(ra.Class)
		if class == "" {
			return fmt.Errorf("aspect %q: class: %w", name, ErrMissingRequired)
		}
		inner := strings.TrimSpace(ra.Inner)
		props := ra.Properties
		if len(props) == 0 && inner != "" {
			var err error
			if props, err = innerProperties(inner); err != nil {
				return fmt.Errorf("aspect %q: %w: %w", name, ErrInvalidValue, err)
			}
		}
		d.Aspects = append(d.Aspects, AspectDef{
			Name:       name,
			Class:      class,
			Properties: b.properties("aspect "+name, props),
			XML:        inner,
		})
	}
	return nil
}

// innerProperties reads the property children out of an aspect's raw inner
// markup, for front-ends that carry the markup as a plain string.
func innerProperties(inner string) ([]rawProperty, error) {
	var wrapper struct {
		Properties []rawProperty `xml:"property"`
	}
	if err := xml.Unmarshal([]byte("<aspect>"+inner+"</aspect>"), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Properties, nil
}

func dedupe(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
