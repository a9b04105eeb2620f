package sqlstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Dialect selects the SQL database behind the store.
type Dialect string

const (
	// DialectSQLite uses the embedded modernc SQLite driver.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses lib/pq.
	DialectPostgres Dialect = "postgres"
)

// Config holds database connection configuration.
type Config struct {
	Dialect Dialect

	// DSN is the SQLite file path (or ":memory:") or a Postgres connection string.
	DSN string

	// BusyTimeout sets how long SQLite waits for database locks.
	BusyTimeout time.Duration

	// JournalMode sets the SQLite journal mode (WAL, DELETE, MEMORY, ...).
	JournalMode string

	// Synchronous sets the SQLite synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	// CacheSize sets the SQLite page cache size (negative for KiB).
	CacheSize int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Retry RetryConfig
}

// DefaultConfig returns production settings for dialect.
func DefaultConfig(dialect Dialect, dsn string) Config {
	cfg := Config{
		Dialect:         dialect,
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		Retry:           DefaultRetryConfig(),
	}
	if dialect == DialectSQLite {
		cfg.BusyTimeout = 30 * time.Second
		cfg.JournalMode = "WAL"
		cfg.Synchronous = "NORMAL"
		cfg.CacheSize = -2000
	}
	return cfg
}

// InMemoryTestConfig returns a SQLite configuration for in-memory tests. Every
// connection to ":memory:" opens a separate database, so the pool is pinned to
// one connection that never expires.
func InMemoryTestConfig() Config {
	return Config{
		Dialect:      DialectSQLite,
		DSN:          ":memory:",
		BusyTimeout:  5 * time.Second,
		JournalMode:  "MEMORY",
		Synchronous:  "OFF",
		CacheSize:    -1000,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		Retry:        testRetryConfig(),
	}
}

// TempFileTestConfig returns a SQLite configuration for file-backed tests.
func TempFileTestConfig(path string) Config {
	return Config{
		Dialect:         DialectSQLite,
		DSN:             path,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "OFF",
		CacheSize:       -1000,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		Retry:           testRetryConfig(),
	}
}

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    1,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Validate checks the configuration before a connection is attempted.
func (c Config) Validate() error {
	switch c.Dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("unsupported dialect %q", c.Dialect)
	}

	if c.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}

	validJournalModes := map[string]bool{
		"DELETE":   true,
		"TRUNCATE": true,
		"PERSIST":  true,
		"MEMORY":   true,
		"WAL":      true,
		"OFF":      true,
	}
	if c.JournalMode != "" && !validJournalModes[strings.ToUpper(c.JournalMode)] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}

	validSyncModes := map[string]bool{
		"OFF":    true,
		"NORMAL": true,
		"FULL":   true,
		"EXTRA":  true,
	}
	if c.Synchronous != "" && !validSyncModes[strings.ToUpper(c.Synchronous)] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}

	if c.MaxOpenConns < 0 {
		return fmt.Errorf("MaxOpenConns cannot be negative")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("MaxIdleConns cannot be negative")
	}
	if c.ConnMaxLifetime < 0 {
		return fmt.Errorf("ConnMaxLifetime cannot be negative")
	}
	return nil
}

// driverDSN returns the DSN handed to sql.Open. For SQLite the PRAGMAs are
// encoded as _pragma parameters so every pooled connection applies them.
func (c Config) driverDSN() string {
	if c.Dialect != DialectSQLite {
		return c.DSN
	}

	params := url.Values{}
	if c.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", strings.ToUpper(c.JournalMode)))
	}
	if c.Synchronous != "" {
		params.Add("_pragma", fmt.Sprintf("synchronous(%s)", strings.ToUpper(c.Synchronous)))
	}
	if c.CacheSize != 0 {
		params.Add("_pragma", fmt.Sprintf("cache_size(%d)", c.CacheSize))
	}
	if len(params) == 0 {
		return c.DSN
	}

	separator := "?"
	if strings.Contains(c.DSN, "?") {
		separator = "&"
	}
	return c.DSN + separator + params.Encode()
}
