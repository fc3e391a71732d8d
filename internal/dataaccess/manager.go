// Package dataaccess opens the database selected by a dbConfig and holds
// the REG_LOG activity table.
package dataaccess

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/regd/internal/descriptor"
	"github.com/zjrosen/regd/internal/log"
)

var tracer = otel.Tracer("github.com/zjrosen/regd/internal/dataaccess")

// defaultPingTimeout bounds the connection check when the dbConfig has no
// maxWait.
const defaultPingTimeout = 10 * time.Second

// Manager owns the database of one dbConfig.
type Manager struct {
	name    string
	db      *sql.DB
	dialect Dialect
	target  Target
	// owned is false for registered data sources, which outlive the manager.
	owned bool
}

// Open connects to the database described by cfg. Configs naming a data
// source are looked up in sources; direct configs are resolved to a Go
// driver, pooled according to cfg and checked with the validation query.
func Open(ctx context.Context, cfg descriptor.DBConfig, sources *DataSources) (*Manager, error) {
	ctx, span := tracer.Start(ctx, "dataaccess.open")
	defer span.End()
	span.SetAttributes(attribute.String("db.config", cfg.Name))

	if cfg.UsesDataSource() {
		ds, err := sources.Lookup(cfg.DataSource)
		if err != nil {
			return nil, fmt.Errorf("dbConfig %q: %w", cfg.Name, err)
		}
		return &Manager{name: cfg.Name, db: ds.DB, dialect: ds.Dialect}, nil
	}

	target, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("db.system", string(target.Dialect)))

	if target.Dialect == DialectSQLite && !target.Memory && !strings.HasPrefix(target.DSN, "file:") {
		if dir := filepath.Dir(target.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.Name, err)
	}
	configurePool(db, cfg, target)

	m := &Manager{name: cfg.Name, db: db, dialect: target.Dialect, target: target, owned: true}
	if err := m.Ping(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info(log.CatDB, "database opened", "dbConfig", cfg.Name, "dialect", target.Dialect)
	return m, nil
}

func configurePool(db *sql.DB, cfg descriptor.DBConfig, target Target) {
	if target.Memory {
		// Every memdb connection sees the same database, but SQLite still
		// serializes writers.
		db.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxActive > 0 {
		db.SetMaxOpenConns(cfg.MaxActive)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MinEvictableIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MinEvictableIdleTime)
	}
}

// Ping checks the connection within cfg.MaxWait and runs the validation
// query when one is configured.
func (m *Manager) Ping(ctx context.Context, cfg descriptor.DBConfig) error {
	timeout := cfg.MaxWait
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to %q: %w", m.name, err)
	}
	if q := strings.TrimSpace(cfg.ValidationQuery); q != "" {
		rows, err := m.db.QueryContext(ctx, q)
		if err != nil {
			return fmt.Errorf("validation query for %q failed: %w", m.name, err)
		}
		_ = rows.Close()
	}
	return nil
}

// Name returns the dbConfig name.
func (m *Manager) Name() string {
	return m.name
}

// DB returns the connection pool.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Dialect returns the SQL dialect of the database.
func (m *Manager) Dialect() Dialect {
	return m.dialect
}

// Logs returns the activity log DAO.
func (m *Manager) Logs() *LogsDAO {
	return NewLogsDAO(m.db, m.dialect)
}

// Close closes the pool unless it belongs to a registered data source.
func (m *Manager) Close() error {
	if !m.owned {
		return nil
	}
	return m.db.Close()
}
