package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/memory"
	"github.com/example/attendance-tracker/internal/persistence/sqlstore"
)

// StoreFactory names a persistence backend and builds fresh, empty instances
// of it for contract tests.
type StoreFactory struct {
	Name string
	New  func(tb testing.TB) persistence.Store
}

// StoreFactories returns every backend that must satisfy the repository
// contracts. PostgreSQL is exercised only through the dialect specific tests
// because it needs a running server.
func StoreFactories() []StoreFactory {
	return []StoreFactory{
		{Name: "memory", New: NewMemoryStore},
		{Name: "sqlite", New: NewSQLiteStore},
	}
}

// NewMemoryStore returns an empty in-memory store closed on test cleanup.
func NewMemoryStore(tb testing.TB) persistence.Store {
	tb.Helper()

	store := memory.New()
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewSQLiteStore opens a migrated SQLite store backed by a temporary file.
// The store is closed automatically through tb.Cleanup.
func NewSQLiteStore(tb testing.TB) persistence.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "attendance.db")
	store, err := sqlstore.Open(context.Background(), sqlstore.TempFileTestConfig(path))
	if err != nil {
		tb.Fatalf("failed to open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Seed persists the given contacts, groups and events into store, failing the
// test on the first error. Templates can be passed as events through their
// Persistence method.
func Seed(tb testing.TB, store persistence.Store, contactsIn []persistence.Contact, groups []persistence.ContactGroup, events []persistence.Event) {
	tb.Helper()

	ctx := context.Background()
	for _, contact := range contactsIn {
		if err := store.SaveContact(ctx, contact); err != nil {
			tb.Fatalf("seed contact %q: %v", contact.ID, err)
		}
	}
	for _, group := range groups {
		if err := store.SaveGroup(ctx, group); err != nil {
			tb.Fatalf("seed group %q: %v", group.ID, err)
		}
	}
	for _, event := range events {
		if err := store.SaveEvent(ctx, event); err != nil {
			tb.Fatalf("seed event %q: %v", event.ID, err)
		}
	}
}
