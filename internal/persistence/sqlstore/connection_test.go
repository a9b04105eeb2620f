package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/example/attendance-tracker/internal/persistence"
)

func TestRebind(t *testing.T) {
	t.Parallel()

	postgres := &ConnectionPool{dialect: DialectPostgres}
	sqlite := &ConnectionPool{dialect: DialectSQLite}

	query := "SELECT * FROM events WHERE name = '?' AND id = ? AND event_date >= ?"

	if got := sqlite.rebind(query); got != query {
		t.Fatalf("expected sqlite query unchanged, got %q", got)
	}
	want := "SELECT * FROM events WHERE name = '?' AND id = $1 AND event_date >= $2"
	if got := postgres.rebind(query); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestForUpdate(t *testing.T) {
	t.Parallel()

	query := "SELECT id, contact_ids FROM contact_groups"
	if got := (&ConnectionPool{dialect: DialectSQLite}).forUpdate(query); got != query {
		t.Fatalf("expected sqlite query unchanged, got %q", got)
	}
	if got := (&ConnectionPool{dialect: DialectPostgres}).forUpdate(query); got != query+" FOR UPDATE" {
		t.Fatalf("expected a row lock on postgres, got %q", got)
	}
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	mapper := NewErrorMapper()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: sql.ErrNoRows, want: persistence.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", sql.ErrNoRows), want: persistence.ErrNotFound},
		{name: "sqlite unique", err: errors.New("constraint failed: UNIQUE constraint failed: events.recurring_event_id, events.event_date (2067)"), want: persistence.ErrDuplicate},
		{name: "sqlite check", err: errors.New("constraint failed: CHECK constraint failed: events (275)"), want: persistence.ErrConstraintViolation},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: errLocked},
		{name: "closed", err: errors.New("sql: database is closed"), want: persistence.ErrUnavailable},
		{name: "postgres unique", err: &pq.Error{Code: "23505"}, want: persistence.ErrDuplicate},
		{name: "postgres not null", err: &pq.Error{Code: "23502"}, want: persistence.ErrConstraintViolation},
		{name: "postgres serialization", err: &pq.Error{Code: "40001"}, want: errLocked},
		{name: "postgres shutdown", err: &pq.Error{Code: "57P01"}, want: persistence.ErrUnavailable},
		{name: "sentinel passes through", err: persistence.ErrInvalidEvent, want: persistence.ErrInvalidEvent},
		{name: "context canceled", err: context.Canceled, want: context.Canceled},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := mapper.MapError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("MapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if mapper.MapError(nil) != nil {
		t.Fatal("expected nil error to stay nil")
	}
	unknown := errors.New("something else")
	if got := mapper.MapError(unknown); got != unknown {
		t.Fatalf("expected unknown errors unchanged, got %v", got)
	}
}

func TestRetryHelper(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	t.Run("retries lock errors", func(t *testing.T) {
		t.Parallel()
		var calls int32
		err := NewRetryHelper(cfg).WithRetry(context.Background(), func() error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()
		var calls int32
		err := NewRetryHelper(cfg).WithRetry(context.Background(), func() error {
			atomic.AddInt32(&calls, 1)
			return errors.New("database is locked")
		})
		if !errors.Is(err, persistence.ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		t.Parallel()
		var calls int32
		err := NewRetryHelper(cfg).WithRetry(context.Background(), func() error {
			atomic.AddInt32(&calls, 1)
			return sql.ErrNoRows
		})
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected a single attempt, got %d", calls)
		}
	})
}

func TestConnectionPoolTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pool, err := NewConnectionPool(ctx, InMemoryTestConfig())
	if err != nil {
		t.Fatalf("NewConnectionPool returned error: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	if _, err := pool.DB().ExecContext(ctx, "CREATE TABLE notes (body TEXT NOT NULL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	boom := errors.New("boom")
	err = pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('rolled back')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('kept')")
		return err
	}); err != nil {
		t.Fatalf("WithTransaction returned error: %v", err)
	}

	var count int
	if err := pool.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the committed row, got %d", count)
	}
}
