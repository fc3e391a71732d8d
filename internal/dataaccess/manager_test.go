package dataaccess

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/tenant"
)

func openTestDB(t *testing.T) *Manager {
	t.Helper()
	cfg := descriptor.DBConfig{
		Name:            "test",
		URL:             "jdbc:h2:" + filepath.Join(t.TempDir(), "db", "REGD_DB") + ";DB_CLOSE_ON_EXIT=FALSE",
		ValidationQuery: "SELECT 1",
	}
	m, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Migrate(context.Background()))
	return m
}

// TestOpen_CreatesDirectory verifies that Open creates the parent directory of an embedded database.
func TestOpen_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "database")
	cfg := descriptor.DBConfig{Name: "local", URL: "jdbc:h2:" + filepath.Join(dir, "WSO2CARBON_DB")}

	m, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer m.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
	require.Equal(t, DialectSQLite, m.Dialect())
	require.Equal(t, "local", m.Name())
}

// TestOpen_BadValidationQuery verifies that a failing validation query fails the open.
func TestOpen_BadValidationQuery(t *testing.T) {
	cfg := descriptor.DBConfig{
		Name:            "broken",
		URL:             "jdbc:sqlite:" + filepath.Join(t.TempDir(), "reg.db"),
		ValidationQuery: "SELECT * FROM no_such_table",
	}
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation query")
}

// TestOpen_DataSource verifies that dataSource configs use the registered pool.
func TestOpen_DataSource(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer db.Close()

	sources := NewDataSources()
	sources.Register("jdbc/WSO2CarbonDB", db, DialectSQLite)
	require.Equal(t, []string{"jdbc/WSO2CarbonDB"}, sources.Names())

	m, err := Open(context.Background(), descriptor.DBConfig{Name: "ds", DataSource: "jdbc/WSO2CarbonDB"}, sources)
	require.NoError(t, err)
	require.Same(t, db, m.DB())

	// Closing the manager leaves the registered pool open.
	require.NoError(t, m.Close())
	require.NoError(t, db.Ping())

	_, err = Open(context.Background(), descriptor.DBConfig{Name: "ds", DataSource: "missing"}, sources)
	require.ErrorIs(t, err, ErrDataSourceNotFound)
}

// TestMigrate_Idempotent verifies that running migrations twice succeeds.
func TestMigrate_Idempotent(t *testing.T) {
	m := openTestDB(t)
	require.NoError(t, m.Migrate(context.Background()))

	var n int
	require.NoError(t, m.DB().QueryRow("SELECT COUNT(*) FROM REG_LOG").Scan(&n))
	require.Zero(t, n)
}

// TestMigrate_MemoryDatabase verifies that an in-memory H2 URL is migrated in place.
func TestMigrate_MemoryDatabase(t *testing.T) {
	m, err := Open(context.Background(), descriptor.DBConfig{Name: "mem", URL: "jdbc:h2:mem:" + t.Name()}, nil)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Migrate(context.Background()))

	require.NoError(t, m.Logs().AddLogs(context.Background(), []LogRecord{{Path: "/a", UserID: "admin", Action: ActionAdd}}))
	n, err := m.Logs().Count(context.Background(), NewLogQuery())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLogsDAO_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	dao := openTestDB(t).Logs()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []LogRecord{
		{Path: "/_system/governance/a", UserID: "admin", LoggedTime: base, Action: ActionAdd, TenantID: tenant.SuperID},
		{Path: "/_system/governance/a", UserID: "admin", LoggedTime: base.Add(time.Minute), Action: ActionUpdate, TenantID: tenant.SuperID},
		{Path: "/_system/governance/b", UserID: "bob", LoggedTime: base.Add(2 * time.Minute), Action: ActionDelete, ActionData: "soft", TenantID: 7},
		{Path: "/_system/governance/a", UserID: "bob", LoggedTime: base.Add(3*time.Minute + 500*time.Millisecond), Action: ActionTag, TenantID: tenant.SuperID},
	}
	require.NoError(t, dao.AddLogs(ctx, records))

	all, err := dao.Logs(ctx, NewLogQuery())
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, ActionTag, all[0].Action, "newest first by default")
	require.True(t, all[0].LoggedTime.Equal(records[3].LoggedTime))

	q := NewLogQuery()
	q.Path = "/_system/governance/a"
	q.Ascending = true
	byPath, err := dao.Logs(ctx, q)
	require.NoError(t, err)
	require.Len(t, byPath, 3)
	require.Equal(t, ActionAdd, byPath[0].Action)

	q = NewLogQuery()
	q.User = "bob"
	q.TenantID = 7
	bob, err := dao.Logs(ctx, q)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	require.Equal(t, "soft", bob[0].ActionData)

	q = NewLogQuery()
	q.From = base
	q.To = base.Add(3 * time.Minute)
	window, err := dao.Logs(ctx, q)
	require.NoError(t, err)
	require.Len(t, window, 2, "bounds are exclusive")

	q = NewLogQuery()
	q.Action = ActionUpdate
	n, err := dao.Count(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	q = NewLogQuery()
	q.Limit = 2
	limited, err := dao.Logs(ctx, q)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestLogsDAO_AddLogsEmpty(t *testing.T) {
	dao := openTestDB(t).Logs()
	require.NoError(t, dao.AddLogs(context.Background(), nil))
}
