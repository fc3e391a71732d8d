package dataaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/handler/method"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		cfg     descriptor.DBConfig
		dialect Dialect
		dsn     string
		memory  bool
	}{
		{
			name:    "h2 file url becomes sqlite file",
			cfg:     descriptor.DBConfig{URL: "jdbc:h2:/var/regd/database/WSO2CARBON_DB;DB_CLOSE_ON_EXIT=FALSE"},
			dialect: DialectSQLite,
			dsn:     "/var/regd/database/WSO2CARBON_DB.db",
		},
		{
			name:    "h2 memory url uses memdb",
			cfg:     descriptor.DBConfig{URL: "jdbc:h2:mem:registry"},
			dialect: DialectSQLite,
			dsn:     "file:/registry.db?vfs=memdb",
			memory:  true,
		},
		{
			name:    "sqlite url",
			cfg:     descriptor.DBConfig{URL: "jdbc:sqlite:/tmp/reg.sqlite"},
			dialect: DialectSQLite,
			dsn:     "/tmp/reg.sqlite",
		},
		{
			name:    "driver name decides for bare paths",
			cfg:     descriptor.DBConfig{URL: "/tmp/reg.db", DriverName: "org.sqlite.JDBC"},
			dialect: DialectSQLite,
			dsn:     "/tmp/reg.db",
		},
		{
			name:    "jdbc postgres gains credentials",
			cfg:     descriptor.DBConfig{URL: "jdbc:postgresql://db:5432/registry?sslmode=disable", UserName: "reg", Password: "s3cret"},
			dialect: DialectPostgres,
			dsn:     "postgres://reg:s3cret@db:5432/registry?sslmode=disable",
		},
		{
			name:    "postgres url keeps its own user",
			cfg:     descriptor.DBConfig{URL: "postgres://owner@db/registry", UserName: "ignored"},
			dialect: DialectPostgres,
			dsn:     "postgres://owner@db/registry",
		},
		{
			name:    "jdbc mysql",
			cfg:     descriptor.DBConfig{URL: "jdbc:mysql://db/registry?useSSL=false", UserName: "reg", Password: "pw"},
			dialect: DialectMySQL,
			dsn:     "reg:pw@tcp(db:3306)/registry?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := Resolve(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, target.Dialect)
			assert.Equal(t, tt.dsn, target.DSN)
			assert.Equal(t, tt.memory, target.Memory)
			assert.Equal(t, tt.dialect.driverName(), target.Driver)
		})
	}
}

func TestResolve_Unsupported(t *testing.T) {
	_, err := Resolve(descriptor.DBConfig{Name: "ora", URL: "jdbc:oracle:thin:@db:1521:xe"})
	require.ErrorIs(t, err, ErrUnsupportedDriver)
	require.Contains(t, err.Error(), `"ora"`)
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT 1 FROM REG_LOG WHERE REG_PATH = ? AND REG_ACTION = ?"
	assert.Equal(t, q, DialectSQLite.Rebind(q))
	assert.Equal(t, q, DialectMySQL.Rebind(q))
	assert.Equal(t, "SELECT 1 FROM REG_LOG WHERE REG_PATH = $1 AND REG_ACTION = $2", DialectPostgres.Rebind(q))
}

func TestDialect_RebindSkipsQuotedText(t *testing.T) {
	for in, want := range map[string]string{
		"SELECT * FROM REG_LOG WHERE REG_PATH LIKE '/a?b%' AND REG_USER_ID = ?": "SELECT * FROM REG_LOG WHERE REG_PATH LIKE '/a?b%' AND REG_USER_ID = $1",
		"SELECT 'it''s ?' AS x, ? AS y":                                         "SELECT 'it''s ?' AS x, $1 AS y",
		`SELECT "odd?col" FROM t WHERE a = ?`:                                   `SELECT "odd?col" FROM t WHERE a = $1`,
		"SELECT ? -- why?\nFROM t WHERE b = ?":                                  "SELECT $1 -- why?\nFROM t WHERE b = $2",
		"SELECT /* a ? b */ ? FROM t":                                           "SELECT /* a ? b */ $1 FROM t",
		"SELECT ? FROM t WHERE a = 'unterminated ?":                             "SELECT $1 FROM t WHERE a = 'unterminated ?",
		"SELECT ? FROM t /* open ?":                                             "SELECT $1 FROM t /* open ?",
		"SELECT ? -- trailing ?":                                                "SELECT $1 -- trailing ?",
	} {
		assert.Equal(t, want, DialectPostgres.Rebind(in), in)
	}
}

func TestActionForMethod(t *testing.T) {
	a, ok := ActionForMethod(method.Put)
	require.True(t, ok)
	assert.Equal(t, ActionUpdate, a)

	a, ok = ActionForMethod(method.AddAssociation)
	require.True(t, ok)
	assert.Equal(t, ActionAddAssociation, a)

	_, ok = ActionForMethod(method.Get)
	assert.False(t, ok, "reads are not logged")
}

func TestParseAction(t *testing.T) {
	for a := range actionNames {
		parsed, ok := ParseAction(a.String())
		require.True(t, ok, a.String())
		assert.Equal(t, a, parsed)
	}
	_, ok := ParseAction("launch")
	assert.False(t, ok)
}
