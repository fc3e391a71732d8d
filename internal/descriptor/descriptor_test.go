package descriptor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/tenant"
)

func loadTestdata(t *testing.T, opts ...Option) (*Descriptor, Warnings) {
	t.Helper()
	opts = append([]Option{WithHome("/opt/regd")}, opts...)
	d, warnings, err := Load(filepath.Join("testdata", "registry.xml"), opts...)
	require.NoError(t, err)
	return d, warnings
}

// minimal wraps body in a root element with one valid dbConfig.
func minimal(body string) string {
	return `<wso2registry>
  <currentDBConfig>main</currentDBConfig>
  <dbConfig name="main"><url>jdbc:sqlite:/tmp/regd.db</url></dbConfig>
  ` + body + `
</wso2registry>`
}

func parseString(t *testing.T, doc string, opts ...Option) (*Descriptor, Warnings, error) {
	t.Helper()
	return Parse(strings.NewReader(doc), opts...)
}

func TestParse_TopLevel(t *testing.T) {
	d, _ := loadTestdata(t)

	assert.Equal(t, "", d.RegistryRoot)
	assert.False(t, d.ReadOnly)
	assert.True(t, d.EnableCache)
	assert.False(t, d.VersionResourcesOnChange)
	assert.Equal(t, "wso2registry", d.CurrentDBConfig)
	assert.Equal(t, DefaultCacheExpiration, d.Cache.LastAccessedExpiration)
	assert.Equal(t, DefaultCacheExpiration, d.Cache.LastModifiedExpiration)
}

func TestParse_DBConfigs(t *testing.T) {
	d, _ := loadTestdata(t)
	require.Len(t, d.DBConfigs, 2)

	main, ok := d.DBConfig("wso2registry")
	require.True(t, ok)
	assert.Equal(t, "jdbc:h2:/opt/regd/repository/database/WSO2CARBON_DB;DB_CLOSE_ON_EXIT=FALSE", main.URL)
	assert.Equal(t, "wso2carbon", main.UserName)
	assert.Equal(t, "wso2carbon", main.Password)
	assert.Equal(t, "org.h2.Driver", main.DriverName)
	assert.Equal(t, 50, main.MaxActive)
	assert.Equal(t, 5, main.MinIdle)
	assert.Equal(t, time.Minute, main.MaxWait)
	assert.True(t, main.TestWhileIdle)
	assert.Equal(t, time.Minute, main.TimeBetweenEvictionRuns)
	assert.Equal(t, 15*time.Minute, main.MinEvictableIdleTime)
	assert.Equal(t, "SELECT 1", main.ValidationQuery)
	assert.False(t, main.UsesDataSource())

	gov, ok := d.DBConfig("governance")
	require.True(t, ok)
	assert.True(t, gov.UsesDataSource())
	assert.Equal(t, "jdbc/WSO2GovDB", gov.DataSource)
}

func TestParse_RemoteAndMounts(t *testing.T) {
	d, warnings := loadTestdata(t)

	require.Len(t, d.RemoteInstances, 1)
	r := d.RemoteInstances[0]
	assert.Equal(t, "gov", r.ID)
	assert.Equal(t, "https://gov.example.com:9443/registry", r.URL)
	assert.Equal(t, "governance", r.DBConfig)
	assert.True(t, r.CacheEnabled)
	assert.False(t, r.ReadOnly)
	assert.Equal(t, "", r.RegistryRoot)

	require.Len(t, d.Mounts, 2)
	assert.Equal(t, Mount{
		Path: "/_system/governance", InstanceID: "gov", TargetPath: "/_system/governance",
		Overwrite: true, ExecuteQueryAllowed: true,
	}, d.Mounts[0])
	assert.Equal(t, Mount{
		Path: "/_system/config", InstanceID: "gov", TargetPath: "/_system/nodes",
		Virtual: true, ExecuteQueryAllowed: false,
	}, d.Mounts[1])

	assert.Contains(t, warnings.Strings(), "mount /_system/broken: mount has no targetPath, skipping")
}

func TestParse_Handlers(t *testing.T) {
	d, warnings := loadTestdata(t)

	require.Len(t, d.Handlers, 2, "profile mismatch and missing filter are skipped")

	logger := d.Handlers[0]
	assert.Equal(t, "MediaTypeLogger", logger.Class)
	assert.Equal(t, []string{"PUT", "GET"}, logger.Methods)
	assert.Equal(t, tenant.SuperID, logger.TenantID)
	require.Len(t, logger.Properties, 2)
	assert.Equal(t, Property{Name: "level", Value: "info"}, logger.Properties[0])
	assert.Equal(t, Property{Name: "rules", Type: "xml", XML: `<rule path="/a"/>`}, logger.Properties[1])
	assert.Equal(t, "MediaTypeMatcher", logger.Filter.Class)
	assert.Equal(t, []Property{{Name: "mediaType", Value: "application/wsdl+xml"}}, logger.Filter.Properties)
	assert.Nil(t, logger.Edit)

	noCache := d.Handlers[1]
	assert.Nil(t, noCache.Methods, "no methods attribute engages every method")
	assert.Equal(t, tenant.InvalidID, noCache.TenantID)
	assert.Equal(t, []string{"default", "uddi"}, noCache.Profiles)
	assert.Equal(t, &EditDef{Processor: "wsdl", Class: "WSDLEditProcessor"}, noCache.Edit)

	msgs := strings.Join(warnings.Strings(), "\n")
	assert.Contains(t, msgs, `unknown method "fetch"`)
	assert.Contains(t, msgs, `handler not enabled for profile "default"`)
	assert.Contains(t, msgs, "handler has no filter")
	assert.Len(t, warnings, 4)
}

func TestParse_ProfileSelectsHandlers(t *testing.T) {
	d, _ := loadTestdata(t, WithProfile("uddi"))

	var classes []string
	for _, h := range d.Handlers {
		classes = append(classes, h.Class)
	}
	assert.Equal(t, []string{"MediaTypeLogger", "NoCacheHandler", "UDDIHandler"}, classes)
}

func TestParse_AspectsAndQueryProcessors(t *testing.T) {
	d, _ := loadTestdata(t)

	require.Len(t, d.Aspects, 1)
	a := d.Aspects[0]
	assert.Equal(t, "ServiceLifeCycle", a.Name)
	assert.Equal(t, "Lifecycle", a.Class)
	assert.Equal(t, []Property{{Name: "states", Value: "Development,Testing,Production"}}, a.Properties)
	assert.Contains(t, a.XML, `<property name="states">`)

	assert.Equal(t, []QueryProcessorDef{{QueryType: "application/vnd.sql.query", Processor: "SQLQueryProcessor"}}, d.QueryProcessors)
}

func TestParse_StaticConfiguration(t *testing.T) {
	d, _ := loadTestdata(t)

	assert.Equal(t, StaticConfig{
		VersioningProperties:   true,
		VersioningComments:     false,
		VersioningTags:         true,
		VersioningRatings:      true,
		VersioningAssociations: true,
		ProfilesPath:           "/_system/config/users",
		ServicePath:            DefaultServicePath,
	}, d.Static)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "missing currentDBConfig",
			doc:  `<wso2registry><dbConfig name="main"><url>x</url></dbConfig></wso2registry>`,
			want: ErrMissingRequired,
		},
		{
			name: "unknown currentDBConfig",
			doc:  `<wso2registry><currentDBConfig>other</currentDBConfig><dbConfig name="main"><url>x</url></dbConfig></wso2registry>`,
			want: ErrUnknownReference,
		},
		{
			name: "dbConfig without name",
			doc:  minimal(`<dbConfig><url>x</url></dbConfig>`),
			want: ErrMissingRequired,
		},
		{
			name: "duplicate dbConfig",
			doc:  minimal(`<dbConfig name="main"><url>y</url></dbConfig>`),
			want: ErrDuplicate,
		},
		{
			name: "direct dbConfig without url",
			doc:  minimal(`<dbConfig name="other"><userName>u</userName></dbConfig>`),
			want: ErrMissingRequired,
		},
		{
			name: "malformed maxActive",
			doc:  minimal(`<dbConfig name="other"><url>x</url><maxActive>lots</maxActive></dbConfig>`),
			want: ErrInvalidValue,
		},
		{
			name: "malformed maxWait",
			doc:  minimal(`<dbConfig name="other"><url>x</url><maxWait>-5</maxWait></dbConfig>`),
			want: ErrInvalidValue,
		},
		{
			name: "maxWait beyond the duration range",
			doc:  minimal(`<dbConfig name="other"><url>x</url><maxWait>9223372036854775</maxWait></dbConfig>`),
			want: ErrInvalidValue,
		},
		{
			name: "cache expiration beyond the duration range",
			doc: minimal(`<cacheConfig><lastAccessedExpirationMillis>9223372036854775807</lastAccessedExpirationMillis>
				<lastModifiedExpirationMillis>10</lastModifiedExpirationMillis></cacheConfig>`),
			want: ErrInvalidValue,
		},
		{
			name: "cacheConfig missing child",
			doc:  minimal(`<cacheConfig><lastAccessedExpirationMillis>10</lastAccessedExpirationMillis></cacheConfig>`),
			want: ErrMissingRequired,
		},
		{
			name: "remote without id",
			doc:  minimal(`<remoteInstance url="http://r"/>`),
			want: ErrMissingRequired,
		},
		{
			name: "duplicate remote id",
			doc:  minimal(`<remoteInstance><id>r</id></remoteInstance><remoteInstance><id>r</id></remoteInstance>`),
			want: ErrDuplicate,
		},
		{
			name: "malformed remote boolean",
			doc:  minimal(`<remoteInstance><id>r</id><readOnly>yes please</readOnly></remoteInstance>`),
			want: ErrInvalidValue,
		},
		{
			name: "duplicate mount path",
			doc: minimal(`<mount path="/a"><instanceId>r</instanceId><targetPath>/b</targetPath></mount>
				<mount path="/a"/>`),
			want: ErrDuplicate,
		},
		{
			name: "aspect without name",
			doc:  minimal(`<aspect class="Lifecycle"/>`),
			want: ErrMissingRequired,
		},
		{
			name: "aspect without class",
			doc:  minimal(`<aspect name="lc"/>`),
			want: ErrMissingRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseString(t, tt.doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_MalformedXML(t *testing.T) {
	_, _, err := parseString(t, `<wso2registry><dbConfig>`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing descriptor XML")
}

func TestParse_DuplicateMountCheckedBeforeInstanceID(t *testing.T) {
	// The second mount has no instanceId but still collides with an
	// accepted path.
	_, _, err := parseString(t, minimal(`
		<mount path="/a"><instanceId>r</instanceId><targetPath>/b</targetPath></mount>
		<mount path="/a"><targetPath>/c</targetPath></mount>`))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestParse_SkippedMountDoesNotReservePath(t *testing.T) {
	d, warnings, err := parseString(t, minimal(`
		<mount path="/a"><targetPath>/c</targetPath></mount>
		<mount path="/a"><instanceId>r</instanceId><targetPath>/b</targetPath></mount>`))
	require.NoError(t, err)
	require.Len(t, d.Mounts, 1)
	assert.Equal(t, "r", d.Mounts[0].InstanceID)
	assert.Len(t, warnings, 1)
}

func TestParse_MountWithoutPathIsSkipped(t *testing.T) {
	d, warnings, err := parseString(t, minimal(`<mount><instanceId>r</instanceId><targetPath>/b</targetPath></mount>`))
	require.NoError(t, err)
	assert.Empty(t, d.Mounts)
	require.Len(t, warnings, 1)
	assert.Equal(t, "mount[0]", warnings[0].Element)
}

func TestParse_TenantNames(t *testing.T) {
	dir := tenant.NewDirectory(map[string]int{"acme": 7})
	doc := minimal(`
		<handler class="A" tenant="ACME"><filter class="URLMatcher"/></handler>
		<handler class="B" tenant="nobody"><filter class="URLMatcher"/></handler>`)

	d, warnings, err := parseString(t, doc, WithTenantResolver(dir))
	require.NoError(t, err)
	require.Len(t, d.Handlers, 2)
	assert.Equal(t, 7, d.Handlers[0].TenantID)
	assert.Equal(t, tenant.InvalidID, d.Handlers[1].TenantID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, `unknown tenant "nobody"`)
}

func TestParse_ExplicitUnknownMethodsAreNotAllMethods(t *testing.T) {
	d, _, err := parseString(t, minimal(`<handler class="A" methods="FETCH"><filter class="URLMatcher"/></handler>`))
	require.NoError(t, err)
	require.Len(t, d.Handlers, 1)
	assert.NotNil(t, d.Handlers[0].Methods)
	assert.Empty(t, d.Handlers[0].Methods)
}

func TestParse_EditWithoutProcessorIsIgnored(t *testing.T) {
	d, warnings, err := parseString(t, minimal(`<handler class="A"><filter class="F"/><edit>Cls</edit></handler>`))
	require.NoError(t, err)
	require.Len(t, d.Handlers, 1)
	assert.Nil(t, d.Handlers[0].Edit)
	assert.Len(t, warnings, 1)
}

func TestParse_QueryProcessorMissingFieldsIsSkipped(t *testing.T) {
	d, warnings, err := parseString(t, minimal(`<queryProcessor><queryType>q</queryType></queryProcessor>`))
	require.NoError(t, err)
	assert.Empty(t, d.QueryProcessors)
	assert.Len(t, warnings, 1)
}

func TestParse_ReadOnlyNodeOverrides(t *testing.T) {
	d, _, err := parseString(t, minimal(`<readOnly>false</readOnly>`), WithReadOnlyNode(true))
	require.NoError(t, err)
	assert.True(t, d.ReadOnly)
}

func TestParse_FlagsRequireExactTrue(t *testing.T) {
	d, _, err := parseString(t, minimal(`<readOnly>TRUE</readOnly><enableCache>yes</enableCache>`))
	require.NoError(t, err)
	assert.False(t, d.ReadOnly)
	assert.False(t, d.EnableCache)
}

func TestParse_VariableExpansion(t *testing.T) {
	env := map[string]string{"DB_HOST": "db.internal"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	doc := `<wso2registry>
  <currentDBConfig>main</currentDBConfig>
  <dbConfig name="main"><url>jdbc:postgresql://${DB_HOST}/${db.name}/${unknown.var}</url></dbConfig>
</wso2registry>`

	d, _, err := parseString(t, doc, WithEnv(lookup), WithVar("db.name", "reg"))
	require.NoError(t, err)
	assert.Equal(t, "jdbc:postgresql://db.internal/reg/${unknown.var}", d.DBConfigs[0].URL)
}

func TestParse_CarbonHomeAlias(t *testing.T) {
	doc := `<wso2registry>
  <currentDBConfig>main</currentDBConfig>
  <dbConfig name="main"><url>jdbc:h2:${carbon.home}/db</url></dbConfig>
</wso2registry>`
	d, _, err := parseString(t, doc, WithHome(`C:\regd`))
	require.NoError(t, err)
	assert.Equal(t, "jdbc:h2:C:/regd/db", d.DBConfigs[0].URL)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, _, err := Load("registry.ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadFS(t *testing.T) {
	d, _, err := LoadFS(os.DirFS("testdata"), "registry.xml", WithHome("/srv"))
	require.NoError(t, err)
	assert.Equal(t, "wso2registry", d.CurrentDBConfig)
}

func TestValidate(t *testing.T) {
	d, _ := loadTestdata(t)
	require.NoError(t, Validate(d))

	d.Mounts = append(d.Mounts, Mount{Path: "/x", InstanceID: "nowhere", TargetPath: "/y"})
	d.RemoteInstances[0].DBConfig = "missing"
	err := Validate(d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Contains(t, err.Error(), `mount "/x"`)
	assert.Contains(t, err.Error(), `remoteInstance "gov"`)
}

func TestWriteXML_RoundTrip(t *testing.T) {
	d, _ := loadTestdata(t, WithProfile("uddi"))

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, d))
	assert.True(t, strings.HasPrefix(buf.String(), "<?xml"))

	again, warnings, err := Parse(&buf, WithProfile("uddi"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, d, again)
}

func TestMarshalYAML_RoundTrip(t *testing.T) {
	d, _ := loadTestdata(t)

	out, err := MarshalYAML(d)
	require.NoError(t, err)

	again, _, err := LoadBytes(out, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func TestMarshalJSON_OmitsPasswords(t *testing.T) {
	d, _ := loadTestdata(t)
	out, err := MarshalJSON(d)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"password"`)
	assert.Contains(t, string(out), `"currentDBConfig": "wso2registry"`)
}

func TestExportXML(t *testing.T) {
	d, _ := loadTestdata(t)

	var buf bytes.Buffer
	resolve := func(ref string) (string, error) { return "resolved-" + ref, nil }
	require.NoError(t, ExportXML(&buf, d, resolve))

	out := buf.String()
	assert.Contains(t, out, "<wso2registry>")
	assert.Contains(t, out, "<currentConfig>wso2registry</currentConfig>")
	assert.Contains(t, out, `<dbConfig name="wso2registry">`)
	assert.Contains(t, out, "<password>resolved-wso2carbon</password>")
	assert.Contains(t, out, "<driverName>org.h2.Driver</driverName>")
	assert.Contains(t, out, `<dbConfig name="governance">`)
	assert.Less(t, strings.Index(out, "<url>"), strings.Index(out, "<userName>"))
	assert.Less(t, strings.Index(out, "<password>"), strings.Index(out, "<driverName>"))
}

func TestExportXML_ResolverError(t *testing.T) {
	d, _ := loadTestdata(t)
	boom := errors.New("vault sealed")
	err := ExportXML(&bytes.Buffer{}, d, func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestRedacted(t *testing.T) {
	d, _ := loadTestdata(t)
	r := d.Redacted()
	assert.Equal(t, redacted, r.DBConfigs[0].Password)
	assert.Equal(t, "wso2carbon", d.DBConfigs[0].Password, "original is untouched")
}

func TestDiff(t *testing.T) {
	a, _ := loadTestdata(t)
	b := a.Clone()

	out, err := Diff(a, b)
	require.NoError(t, err)
	assert.Empty(t, out)

	b.Mounts[0].TargetPath = "/elsewhere"
	out, err = Diff(a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "- ")
	assert.Contains(t, out, "+ ")
	assert.Contains(t, out, "/elsewhere")
}

func TestSave(t *testing.T) {
	d, _ := loadTestdata(t)
	dir := t.TempDir()

	for _, name := range []string{"out.xml", "nested/out.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, d))
		again, _, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, d, again, name)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp."), "temp file left behind: %s", e.Name())
	}

	assert.ErrorIs(t, Save(filepath.Join(dir, "out.hcl"), d), ErrUnsupportedFormat)
}
