// Package sqlstore implements persistence.Store on database/sql with SQLite
// (modernc) as the default dialect and Postgres (lib/pq) as an alternative.
// The schema is managed by golang-migrate from embedded migration files.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/example/attendance-tracker/internal/persistence"
)

// Store bundles the SQL repositories over one connection pool.
type Store struct {
	*ContactRepository
	*GroupRepository
	*EventRepository
	*AttendanceRepository

	pool *ConnectionPool
}

var _ persistence.Store = (*Store)(nil)

// Open connects using cfg, applies pending migrations and returns the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlstore: %w", err)
	}

	retry := NewRetryHelper(cfg.Retry)
	return &Store{
		ContactRepository:    NewContactRepository(pool, retry),
		GroupRepository:      NewGroupRepository(pool, retry),
		EventRepository:      NewEventRepository(pool, retry),
		AttendanceRepository: NewAttendanceRepository(pool, retry),
		pool:                 pool,
	}, nil
}

// SchemaVersion reports the applied migration version and whether the last
// migration left the schema dirty.
func (s *Store) SchemaVersion() (uint, bool, error) {
	return MigrationVersion(s.pool)
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
