package regctx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/aspect"
	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/handler/method"
	"github.com/zjrosen/regd/internal/logwriter"
	"github.com/zjrosen/regd/internal/plugin"
	"github.com/zjrosen/regd/internal/query"
	"github.com/zjrosen/regd/internal/tenant"
)

const testDescriptor = `<wso2registry>
    <currentDBConfig>local</currentDBConfig>
    <enableCache>true</enableCache>
    <registryRoot>/</registryRoot>

    <dbConfig name="local">
        <url>jdbc:h2:${registry.home}/database/REGD_DB;DB_CLOSE_ON_EXIT=FALSE</url>
        <userName>regd</userName>
        <password>secret:db</password>
        <validationQuery>SELECT 1</validationQuery>
    </dbConfig>
    <dbConfig name="archive">
        <url>jdbc:h2:${registry.home}/database/ARCHIVE_DB</url>
        <userName>Archiver</userName>
    </dbConfig>

    <remoteInstance url="https://gov.example.com/registry">
        <id>gov</id>
        <dbConfig>archive</dbConfig>
    </remoteInstance>
    <remoteInstance url="https://cfg.example.com/registry">
        <id>cfg</id>
        <cacheId>cfg-cache</cacheId>
        <readOnly>true</readOnly>
    </remoteInstance>

    <mount path="/_system/governance" overwrite="true">
        <instanceId>gov</instanceId>
        <targetPath>/_system/gov-remote</targetPath>
    </mount>
    <mount path="/_system/shared">
        <instanceId>cfg</instanceId>
        <targetPath>/_system/config</targetPath>
    </mount>

    <handler class="ActivityLogHandler" methods="PUT,DELETE">
        <filter class="URLMatcher">
            <property name="putPattern">/projects/.*</property>
            <property name="deletePattern">/projects/.*</property>
        </filter>
    </handler>
    <handler class="NoCacheHandler">
        <filter class="URLMatcher">
            <property name="getPattern">/volatile/.*</property>
        </filter>
        <edit processor="text">TextEditProcessor</edit>
    </handler>
    <handler class="com.example.UnknownHandler">
        <filter class="URLMatcher"/>
    </handler>

    <aspect name="ServiceLifecycle" class="Lifecycle">
        <property name="states">Development,Testing,Production</property>
    </aspect>
    <aspect name="Legacy" class="com.example.UnknownAspect"/>

    <queryProcessor>
        <queryType>application/vnd.sql.query</queryType>
        <processor>SQLQueryProcessor</processor>
    </queryProcessor>
    <queryProcessor>
        <queryType>application/x-other</queryType>
        <processor>com.example.Missing</processor>
    </queryProcessor>
</wso2registry>`

func secretsFor(values map[string]string) descriptor.SecretResolver {
	return func(ref string) (string, error) {
		if name, ok := strings.CutPrefix(ref, "secret:"); ok {
			v, ok := values[name]
			if !ok {
				return "", errors.New("unknown secret " + name)
			}
			return v, nil
		}
		return ref, nil
	}
}

func loadDescriptor(t *testing.T, xml string) *descriptor.Descriptor {
	t.Helper()
	d, _, err := descriptor.LoadBytes([]byte(xml), descriptor.FormatXML, descriptor.WithHome(t.TempDir()))
	require.NoError(t, err)
	return d
}

func buildContext(t *testing.T, opts Options) *Context {
	t.Helper()
	if opts.Secrets == nil {
		opts.Secrets = secretsFor(map[string]string{"db": "pw"})
	}
	opts.Migrate = true
	opts.LogWriter = logwriter.Config{FlushInterval: time.Hour}
	c, err := Build(context.Background(), loadDescriptor(t, testDescriptor), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestBuild_Accessors(t *testing.T) {
	c := buildContext(t, Options{})

	_, err := uuid.Parse(c.NodeID())
	require.NoError(t, err)
	assert.False(t, c.IsClone())
	assert.True(t, c.IsCacheEnabled())
	assert.Equal(t, []string{"archive", "local"}, c.DBConfigNames())
	assert.Equal(t, "local", c.DefaultDBConfig().Name)
	assert.Len(t, c.Mounts(), 2)
	assert.Len(t, c.RemoteInstances(), 2)
	_, ok := c.RemoteInstance("cfg")
	assert.True(t, ok)

	assert.Equal(t, []string{"ServiceLifecycle"}, c.Aspects().Names(tenant.SuperID), "unknown aspect classes are skipped")
	assert.Equal(t, []string{query.SQLQueryType}, c.QueryManager().Types(), "unknown query processors are skipped")
	assert.Equal(t, []string{"text"}, c.EditManager().Keys())

	system := c.HandlerManager().Handlers(handler.PhaseSystem)
	require.Len(t, system, 4, "two mounts and two known handlers")
}

func TestBuild_Options(t *testing.T) {
	c := buildContext(t, Options{NodeID: "node-1"})
	assert.Equal(t, "node-1", c.NodeID())

	_, err := Build(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrNilDescriptor)
}

func TestBuild_FactoryErrorFailsTheBuild(t *testing.T) {
	xml := strings.Replace(testDescriptor,
		`<property name="states">Development,Testing,Production</property>`, "", 1)
	_, err := Build(context.Background(), loadDescriptor(t, xml), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ServiceLifecycle")
}

type staticHandler struct{ name string }

func (h staticHandler) Handle(rc *handler.RequestContext) error {
	rc.Result = h.name
	rc.SetProcessingComplete(true)
	return nil
}

func TestBuild_CustomFactories(t *testing.T) {
	c := buildContext(t, Options{
		Register: func(s *Set) error {
			return s.Handlers.Register("com.example.UnknownHandler", func(props plugin.Properties) (handler.Handler, error) {
				return staticHandler{name: props.GetDefault("name", "custom")}, nil
			})
		},
	})
	assert.Len(t, c.HandlerManager().Handlers(handler.PhaseSystem), 5)

	err := c.Plugins().Handlers.Register("late", func(plugin.Properties) (handler.Handler, error) { return nil, nil })
	require.ErrorIs(t, err, plugin.ErrSealed)
}

func TestContext_ActivityLogReachesTheDatabase(t *testing.T) {
	c := buildContext(t, Options{})
	ctx := context.Background()

	rc := handler.NewRequestContext(ctx, method.Put, "/projects/a")
	rc.User = "admin"
	require.NoError(t, c.HandlerManager().Dispatch(rc))
	require.NoError(t, c.HandlerManager().Dispatch(handler.NewRequestContext(ctx, method.Put, "/elsewhere")))
	require.NoError(t, c.LogWriter().Flush(ctx))

	dam, err := c.DataAccess(ctx)
	require.NoError(t, err)
	logs, err := dam.Logs().Logs(ctx, dataaccess.NewLogQuery())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "/projects/a", logs[0].Path)
	assert.Equal(t, dataaccess.ActionUpdate, logs[0].Action)

	again, err := c.DataAccess(ctx)
	require.NoError(t, err)
	assert.Same(t, dam, again)
}

func TestContext_ExtraSinks(t *testing.T) {
	var got []dataaccess.LogRecord
	c := buildContext(t, Options{Sinks: []logwriter.Sink{
		logwriter.SinkFunc(func(_ context.Context, records []dataaccess.LogRecord) error {
			got = append(got, records...)
			return nil
		}),
	}})
	rc := handler.NewRequestContext(context.Background(), method.Delete, "/projects/b")
	require.NoError(t, c.HandlerManager().Dispatch(rc))
	require.NoError(t, c.LogWriter().Flush(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, dataaccess.ActionDelete, got[0].Action)
}

func TestContext_DataAccessSecretFailure(t *testing.T) {
	c := buildContext(t, Options{Secrets: secretsFor(nil)})
	_, err := c.DataAccess(context.Background())
	require.ErrorContains(t, err, "resolving password")
}

func TestContext_NoCacheHandlerRegistersPaths(t *testing.T) {
	c := buildContext(t, Options{})
	rc := handler.NewRequestContext(context.Background(), method.Get, "/volatile/x")
	require.NoError(t, c.HandlerManager().Dispatch(rc))
	assert.True(t, c.IsNoCachePath("/volatile/x"))
	assert.True(t, c.IsNoCachePath("/volatile/x;version:3"))
	assert.False(t, c.IsNoCachePath("/volatile/xy"))
}

func TestContext_MountRedirect(t *testing.T) {
	c := buildContext(t, Options{})
	rc := handler.NewRequestContext(context.Background(), method.Get, "/_system/governance/trunk/a")
	require.NoError(t, c.HandlerManager().Dispatch(rc))
	assert.Equal(t, "/_system/gov-remote/trunk/a", rc.ActualPath)

	err := c.HandlerManager().Dispatch(handler.NewRequestContext(context.Background(), method.Put, "/_system/shared/a"))
	require.ErrorIs(t, err, handler.ErrReadOnlyMount)
}

func TestContext_Query(t *testing.T) {
	c := buildContext(t, Options{})
	ctx := context.Background()
	dam, err := c.DataAccess(ctx)
	require.NoError(t, err)
	require.NoError(t, dam.Logs().AddLogs(ctx, []dataaccess.LogRecord{{Path: "/q/a", UserID: "u", Action: dataaccess.ActionAdd, TenantID: tenant.SuperID}}))

	res, err := c.ExecuteQuery(ctx, query.Query{
		Type:   query.SQLQueryType,
		Path:   "/_system/queries/paths",
		Text:   "SELECT REG_PATH FROM REG_LOG WHERE REG_USER_ID = ?",
		Params: map[string]any{"1": "u"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/q/a"}, res.Paths)
}

func TestContext_UpdateHandlerAndAspect(t *testing.T) {
	c := buildContext(t, Options{})

	ok, err := c.UpdateHandler([]byte(`<handler class="NoCacheHandler"><filter class="URLMatcher"><property name="getPattern">/tmp/.*</property></filter></handler>`), handler.PhaseUser)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, c.HandlerManager().Handlers(handler.PhaseUser), 1)

	ok, err = c.UpdateHandler([]byte(`<handler class="NoCacheHandler"/>`), handler.PhaseUser)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.UpdateHandler([]byte(`<handler`), handler.PhaseUser)
	require.Error(t, err)

	require.NoError(t, c.UpdateAspect(7, []byte(`<aspect name="Simple" class="Lifecycle"><property name="states">a,b</property></aspect>`)))
	a, ok := c.Aspects().Get(7, "Simple")
	require.True(t, ok)
	assert.IsType(t, &aspect.Lifecycle{}, a)

	err = c.UpdateAspect(7, []byte(`<aspect name="X" class="com.example.Nope"/>`))
	require.ErrorIs(t, err, descriptor.ErrUnknownReference)
}

func TestContext_Clone(t *testing.T) {
	c := buildContext(t, Options{})
	cl := c.Clone(CloneReadOnly(true), CloneRegistryRoot("/tenant"))

	assert.True(t, cl.IsClone())
	assert.True(t, cl.IsReadOnly())
	assert.False(t, c.IsReadOnly(), "the original keeps its values")
	assert.Equal(t, "/tenant/a", cl.AbsolutePath("/a"))
	assert.Equal(t, c.NodeID(), cl.NodeID())

	cl.RegisterNoCachePath("/shared")
	assert.True(t, c.IsNoCachePath("/shared/x"), "clones share the runtime registries")
	assert.Same(t, c.HandlerManager(), cl.HandlerManager())
	require.NoError(t, cl.Close(context.Background()))
	require.NoError(t, c.LogWriter().Flush(context.Background()), "closing a clone leaves the writer running")
}

func TestContext_ExportXML(t *testing.T) {
	c := buildContext(t, Options{})
	var buf bytes.Buffer
	require.NoError(t, c.ExportXML(&buf))
	out := buf.String()
	assert.Contains(t, out, "<currentConfig>local</currentConfig>")
	assert.Contains(t, out, "<password>pw</password>")
	assert.NotContains(t, out, "secret:db")
}

func TestWithContext(t *testing.T) {
	c := buildContext(t, Options{})
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	got, ok := FromContext(WithContext(context.Background(), c))
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestContext_CloseStopsDataAccess(t *testing.T) {
	c, err := Build(context.Background(), loadDescriptor(t, testDescriptor), Options{})
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	_, err = c.DataAccess(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
