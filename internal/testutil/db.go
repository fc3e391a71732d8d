package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/regctx"
)

// LogEntry creates an activity record logged at a fixed offset from a
// base time so ordering in tests is deterministic.
func LogEntry(path, user string, action dataaccess.Action, minute int) dataaccess.LogRecord {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return dataaccess.LogRecord{
		Path:       path,
		UserID:     user,
		Action:     action,
		LoggedTime: base.Add(time.Duration(minute) * time.Minute),
		TenantID:   -1234,
	}
}

// SeedLogs writes records straight to the context's REG_LOG table. The
// context must have been built with Migrate set.
func SeedLogs(t *testing.T, c *regctx.Context, records ...dataaccess.LogRecord) {
	t.Helper()
	ctx := context.Background()
	da, err := c.DataAccess(ctx)
	require.NoError(t, err)
	require.NoError(t, da.Logs().AddLogs(ctx, records))
}
