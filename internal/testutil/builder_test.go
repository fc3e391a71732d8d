package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/handler"
	"github.com/zjrosen/regd/internal/regctx"
)

func TestBuilder_XMLRoundTrip(t *testing.T) {
	d, warnings := Governance().Descriptor(t)
	require.Empty(t, warnings)

	require.Equal(t, "local", d.CurrentDBConfig)
	require.True(t, d.EnableCache)
	require.Len(t, d.DBConfigs, 2)
	require.Equal(t, "Archiver", d.DBConfigs[1].UserName)

	require.Len(t, d.RemoteInstances, 2)
	require.Equal(t, "archive", d.RemoteInstances[0].DBConfig)
	require.True(t, d.RemoteInstances[1].ReadOnly)

	require.Len(t, d.Mounts, 2)
	require.True(t, d.Mounts[0].ExecuteQueryAllowed)
	require.False(t, d.Mounts[1].ExecuteQueryAllowed)

	require.Len(t, d.Handlers, 2)
	require.Equal(t, []string{"PUT", "DELETE"}, d.Handlers[0].Methods)
	require.Len(t, d.Aspects, 1)
	require.Len(t, d.QueryProcessors, 1)
}

func TestBuilder_Escapes(t *testing.T) {
	d, _ := NewBuilder().
		WithLocalDB("local", WithPassword(`p<&>"w`)).
		Descriptor(t)
	require.Equal(t, `p<&>"w`, d.DBConfigs[0].Password)
}

func TestBuilder_Context(t *testing.T) {
	c := Governance().Context(t, regctx.Options{Migrate: true})
	require.Len(t, c.Mounts(), 2)
	require.NotEmpty(t, c.HandlerManager().Handlers(handler.PhaseSystem))

	SeedLogs(t, c,
		LogEntry("/projects/a", "admin", dataaccess.ActionUpdate, 0),
		LogEntry("/projects/b", "bob", dataaccess.ActionDelete, 1),
	)
	da, err := c.DataAccess(context.Background())
	require.NoError(t, err)
	n, err := da.Logs().Count(context.Background(), dataaccess.NewLogQuery())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
