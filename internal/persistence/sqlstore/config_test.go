package sqlstore

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "unknown dialect", mutate: func(c *Config) { c.Dialect = "mysql" }, wantErr: "unsupported dialect"},
		{name: "empty dsn", mutate: func(c *Config) { c.DSN = "" }, wantErr: "DSN cannot be empty"},
		{name: "bad journal mode", mutate: func(c *Config) { c.JournalMode = "fast" }, wantErr: "invalid journal mode"},
		{name: "lowercase journal mode", mutate: func(c *Config) { c.JournalMode = "wal" }},
		{name: "bad synchronous mode", mutate: func(c *Config) { c.Synchronous = "maybe" }, wantErr: "invalid synchronous mode"},
		{name: "negative pool size", mutate: func(c *Config) { c.MaxOpenConns = -1 }, wantErr: "MaxOpenConns"},
		{name: "negative lifetime", mutate: func(c *Config) { c.ConnMaxLifetime = -time.Second }, wantErr: "ConnMaxLifetime"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig(DialectSQLite, "data/attendance.db")
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDriverDSN(t *testing.T) {
	t.Parallel()

	t.Run("sqlite pragmas", func(t *testing.T) {
		t.Parallel()
		cfg := TempFileTestConfig("/tmp/attendance.db")

		dsn := cfg.driverDSN()
		path, query, found := strings.Cut(dsn, "?")
		if !found || path != "/tmp/attendance.db" {
			t.Fatalf("unexpected dsn %q", dsn)
		}
		values, err := url.ParseQuery(query)
		if err != nil {
			t.Fatalf("failed to parse dsn query: %v", err)
		}
		pragmas := strings.Join(values["_pragma"], ",")
		for _, want := range []string{"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(OFF)", "cache_size(-1000)"} {
			if !strings.Contains(pragmas, want) {
				t.Fatalf("expected pragma %s in %q", want, pragmas)
			}
		}
	})

	t.Run("existing query string", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Dialect: DialectSQLite, DSN: "file:test.db?mode=rwc", Synchronous: "normal"}
		if dsn := cfg.driverDSN(); !strings.HasPrefix(dsn, "file:test.db?mode=rwc&_pragma=") {
			t.Fatalf("expected pragmas appended with &, got %q", dsn)
		}
	})

	t.Run("postgres untouched", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultConfig(DialectPostgres, "postgres://localhost/attendance?sslmode=disable")
		if dsn := cfg.driverDSN(); dsn != cfg.DSN {
			t.Fatalf("expected postgres dsn unchanged, got %q", dsn)
		}
	})
}
