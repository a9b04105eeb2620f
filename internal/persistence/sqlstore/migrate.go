package sqlstore

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Migrate applies every pending embedded migration for the pool's dialect.
// The migrate instance is not closed because that would close the pool.
func Migrate(pool *ConnectionPool) error {
	m, err := newMigrator(pool)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version and whether the last
// migration left the schema dirty.
func MigrationVersion(pool *ConnectionPool) (uint, bool, error) {
	m, err := newMigrator(pool)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrator(pool *ConnectionPool) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations/"+string(pool.dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	var driver database.Driver
	switch pool.dialect {
	case DialectSQLite:
		driver, err = sqlite.WithInstance(pool.db, &sqlite.Config{})
	case DialectPostgres:
		driver, err = postgres.WithInstance(pool.db, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", pool.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(pool.dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}
