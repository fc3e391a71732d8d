package dataaccess

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/zjrosen/regd/internal/log"
)

//go:embed migrations
var migrationsFS embed.FS

func newMigrator(db *sql.DB, dialect Dialect) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s migrations: %w", dialect, err)
	}

	var driver database.Driver
	switch dialect {
	case DialectSQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DialectPostgres:
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case DialectMySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	default:
		err = fmt.Errorf("%q: %w", dialect, ErrUnsupportedDriver)
	}
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies the embedded schema migrations. Owned connections are
// migrated through a dedicated pool so closing the migrator leaves the
// manager's pool open.
func (m *Manager) Migrate(ctx context.Context) error {
	_, span := tracer.Start(ctx, "dataaccess.migrate")
	defer span.End()

	db := m.db
	if m.owned {
		fresh, err := sql.Open(m.target.Driver, m.target.DSN)
		if err != nil {
			return fmt.Errorf("failed to open migration connection: %w", err)
		}
		db = fresh
	}

	mig, err := newMigrator(db, m.dialect)
	if err != nil {
		if m.owned {
			_ = db.Close()
		}
		return err
	}
	if m.owned {
		defer func() { _, _ = mig.Close() }()
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	log.Info(log.CatDB, "schema migrated", "dbConfig", m.name, "version", version, "dirty", dirty)
	return nil
}
