package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/attendance-tracker/internal/config"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/sqlstore"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

func optionsFor(dsn string, extra map[string]string) config.Options {
	values := map[string]string{config.EnvDBDSN: dsn}
	for k, v := range extra {
		values[k] = v
	}
	return config.Options{Lookup: func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}}
}

func openStore(t *testing.T, path string) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), sqlstore.TempFileTestConfig(path))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRun_MaterializeRange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "attendance.db")

	seed := openStore(t, path)
	template := testfixtures.NewTemplateFixture()
	testfixtures.Seed(t, seed, nil, nil, []persistence.Event{template.Persistence()})
	if err := seed.Close(); err != nil {
		t.Fatalf("failed to close seed store: %v", err)
	}

	var out bytes.Buffer
	args := []string{"materialize", "-from", "2024-01-01", "-to", "2024-01-14"}
	if err := run(context.Background(), args, optionsFor(path, nil), &out); err != nil {
		t.Fatalf("run returned error: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "materialization finished") {
		t.Fatalf("expected a summary log line, got:\n%s", out.String())
	}

	store := openStore(t, path)
	generated, err := store.ListEvents(context.Background(), persistence.EventFilter{
		Kinds: []persistence.EventKind{persistence.EventKindGenerated},
	})
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(generated) != 2 {
		t.Fatalf("expected two Mondays to be materialized, got %d", len(generated))
	}
	for _, event := range generated {
		if event.RecurringEventID != template.ID {
			t.Fatalf("unexpected instance %+v", event)
		}
	}
}

func TestRun_SyncContacts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "attendance.db")
	book := filepath.Join(dir, "contacts.yaml")
	content := "- name: Ada\n  phone_number: \"+1 555 0100\"\n- name: Linus\n  phone_number: \"+1 555 0101\"\n"
	if err := os.WriteFile(book, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write contacts file: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"sync-contacts"}, optionsFor(path, map[string]string{config.EnvContactsFile: book}), &out); err != nil {
		t.Fatalf("run returned error: %v\n%s", err, out.String())
	}

	store := openStore(t, path)
	list, err := store.ListContacts(context.Background())
	if err != nil {
		t.Fatalf("ListContacts returned error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two contacts, got %+v", list)
	}
}

func TestRun_RejectsBadInvocations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown command", args: []string{"export"}, want: "unknown command"},
		{name: "date with range", args: []string{"materialize", "-date", "2024-01-01", "-to", "2024-01-02"}, want: "cannot be combined"},
		{name: "half range", args: []string{"materialize", "-from", "2024-01-01"}, want: "given together"},
		{name: "bad date", args: []string{"materialize", "-date", "Jan 1"}, want: "expected YYYY-MM-DD"},
		{name: "sync without file", args: []string{"sync-contacts"}, want: config.EnvContactsFile},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "attendance.db")
			err := run(context.Background(), tc.args, optionsFor(path, nil), &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()
		err := run(context.Background(), []string{"materialize"}, optionsFor("", map[string]string{config.EnvDBDriver: "oracle"}), &bytes.Buffer{})
		if err == nil || !strings.Contains(err.Error(), "failed to load configuration") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestApp_Handler(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "attendance.db")

	cfg, err := config.LoadWith(optionsFor(path, nil))
	if err != nil {
		t.Fatalf("LoadWith returned error: %v", err)
	}
	a, err := newApp(context.Background(), cfg, logging.NewLogger(io.Discard, cfg.LogLevel))
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.close() })

	handler := a.handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(rec.Body.String(), `"schema_version":1`) {
		t.Fatalf("expected the migrated schema version in the health body, got %s", rec.Body.String())
	}

	for _, path := range []string{"/health", "/contacts", "/calendar.ics", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}
