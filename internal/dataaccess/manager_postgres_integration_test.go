//go:build integration

package dataaccess

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/tenant"
)

type PostgresManagerSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	cfg       descriptor.DBConfig
	manager   *Manager
}

func TestPostgresManagerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresManagerSuite))
}

func (s *PostgresManagerSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("regd"),
		tcpostgres.WithUsername("regadmin"),
		tcpostgres.WithPassword("regadmin"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	// Written the way a descriptor would: JDBC URL plus separate credentials.
	hostPort := strings.TrimPrefix(dsn, "postgres://regadmin:regadmin@")
	s.cfg = descriptor.DBConfig{
		Name:            "pg",
		URL:             "jdbc:postgresql://" + hostPort,
		UserName:        "regadmin",
		Password:        "regadmin",
		ValidationQuery: "SELECT 1",
		MaxActive:       5,
	}

	s.manager, err = Open(ctx, s.cfg, nil)
	s.Require().NoError(err)
	s.Require().Equal(DialectPostgres, s.manager.Dialect())
	s.Require().NoError(s.manager.Migrate(ctx))
}

func (s *PostgresManagerSuite) TearDownSuite() {
	if s.manager != nil {
		_ = s.manager.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresManagerSuite) SetupTest() {
	_, err := s.manager.DB().Exec("DELETE FROM REG_LOG")
	s.Require().NoError(err)
}

func (s *PostgresManagerSuite) TestPing() {
	s.Require().NoError(s.manager.Ping(context.Background(), s.cfg))
}

func (s *PostgresManagerSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(s.manager.Migrate(context.Background()))
}

func (s *PostgresManagerSuite) TestLogsRoundTrip() {
	ctx := context.Background()
	dao := s.manager.Logs()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.Require().NoError(dao.AddLogs(ctx, []LogRecord{
		{Path: "/a", UserID: "admin", LoggedTime: base, Action: ActionAdd, TenantID: tenant.SuperID},
		{Path: "/a", UserID: "bob", LoggedTime: base.Add(time.Minute), Action: ActionUpdate, ActionData: "v2", TenantID: tenant.SuperID},
		{Path: "/b", UserID: "bob", LoggedTime: base.Add(2 * time.Minute), Action: ActionDelete, TenantID: 3},
	}))

	all, err := dao.Logs(ctx, NewLogQuery())
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("/b", all[0].Path)
	s.True(all[0].LoggedTime.Equal(base.Add(2*time.Minute)))

	q := NewLogQuery()
	q.Path = "/a"
	q.User = "bob"
	bob, err := dao.Logs(ctx, q)
	s.Require().NoError(err)
	s.Require().Len(bob, 1)
	s.Equal("v2", bob[0].ActionData)

	q = NewLogQuery()
	q.TenantID = 3
	n, err := dao.Count(ctx, q)
	s.Require().NoError(err)
	s.Equal(1, n)

	q = NewLogQuery()
	q.From = base
	q.To = base.Add(2 * time.Minute)
	window, err := dao.Logs(ctx, q)
	s.Require().NoError(err)
	s.Len(window, 1)
}
