package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence/sqlstore"
	"github.com/example/attendance-tracker/internal/scheduler"
)

// Environment keys understood by Load.
const (
	EnvHTTPPort        = "ATTENDANCE_HTTP_PORT"
	EnvDBDriver        = "ATTENDANCE_DB_DRIVER"
	EnvDBDSN           = "ATTENDANCE_DB_DSN"
	EnvTimezone        = "ATTENDANCE_TIMEZONE"
	EnvMaterializeCron = "ATTENDANCE_MATERIALIZE_CRON"
	EnvCatchupDays     = "ATTENDANCE_CATCHUP_DAYS"
	EnvMaxRangeDays    = "ATTENDANCE_MAX_RANGE_DAYS"
	EnvContactsFile    = "ATTENDANCE_CONTACTS_FILE"
	EnvLogLevel        = "ATTENDANCE_LOG_LEVEL"
	EnvConfigFile      = "ATTENDANCE_CONFIG_FILE"
)

// DefaultMaterializeCron materializes shortly after midnight.
const DefaultMaterializeCron = "5 0 * * *"

// DefaultMaxRangeDays bounds on-demand materialization to about a year.
const DefaultMaxRangeDays = 366

// Config captures the settings of the attendance service.
type Config struct {
	HTTPPort int
	DBDriver sqlstore.Dialect
	DBDSN    string

	// Timezone names the IANA zone that defines "today"; Location is the loaded zone.
	Timezone string
	Location *time.Location

	// MaterializeCron schedules the daily materialization; empty disables it.
	MaterializeCron string

	// CatchupDays is how many past days are backfilled at startup. Zero
	// materializes today only.
	CatchupDays int

	// MaxRangeDays is the longest span, in days, a single materialize request
	// may cover.
	MaxRangeDays int

	ContactsFile string
	LogLevel     slog.Level
}

// Options controls where Load reads values from.
type Options struct {
	// EnvFile is the dotenv file consulted after the process environment.
	// A missing file is ignored.
	EnvFile string
	// Lookup reads the process environment. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// fileConfig mirrors the optional YAML configuration file. Pointers
// distinguish absent keys from explicit zero values.
type fileConfig struct {
	HTTPPort        *int    `yaml:"http_port"`
	DBDriver        *string `yaml:"db_driver"`
	DBDSN           *string `yaml:"db_dsn"`
	Timezone        *string `yaml:"timezone"`
	MaterializeCron *string `yaml:"materialize_cron"`
	CatchupDays     *int    `yaml:"catchup_days"`
	MaxRangeDays    *int    `yaml:"max_range_days"`
	ContactsFile    *string `yaml:"contacts_file"`
	LogLevel        *string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPPort:        8080,
		DBDriver:        sqlstore.DialectSQLite,
		DBDSN:           "attendance.db",
		Timezone:        "UTC",
		Location:        time.UTC,
		MaterializeCron: DefaultMaterializeCron,
		MaxRangeDays:    DefaultMaxRangeDays,
		LogLevel:        slog.LevelInfo,
	}
}

// Load reads configuration from the process environment, a .env file in the
// working directory and the YAML file named by ATTENDANCE_CONFIG_FILE.
func Load() (Config, error) {
	return LoadWith(Options{EnvFile: ".env"})
}

// LoadWith resolves configuration with the precedence
// environment > dotenv file > YAML file > defaults.
//
// All invalid values are collected and reported together.
func LoadWith(opts Options) (Config, error) {
	lookup, err := newLookup(opts)
	if err != nil {
		return Config{}, err
	}

	values := map[string]string{}
	if path, ok := lookup(EnvConfigFile); ok && path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		values = file.values()
	}
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}

	cfg := Default()
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if value, ok := get(EnvHTTPPort); ok && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, EnvHTTPPort)
		} else {
			cfg.HTTPPort = port
		}
	}

	if value, ok := get(EnvDBDriver); ok && value != "" {
		switch driver := sqlstore.Dialect(strings.ToLower(value)); driver {
		case sqlstore.DialectSQLite, sqlstore.DialectPostgres:
			cfg.DBDriver = driver
		default:
			invalid = append(invalid, EnvDBDriver)
		}
	}

	dsn, hasDSN := get(EnvDBDSN)
	switch {
	case hasDSN && dsn != "":
		cfg.DBDSN = dsn
	case cfg.DBDriver == sqlstore.DialectPostgres:
		missing = append(missing, EnvDBDSN)
	}

	if value, ok := get(EnvTimezone); ok && value != "" {
		loc, err := time.LoadLocation(value)
		if err != nil {
			invalid = append(invalid, EnvTimezone)
		} else {
			cfg.Timezone = value
			cfg.Location = loc
		}
	}

	if value, ok := get(EnvMaterializeCron); ok {
		if err := scheduler.Validate(value); err != nil {
			invalid = append(invalid, EnvMaterializeCron)
		} else {
			cfg.MaterializeCron = value
		}
	}

	if value, ok := get(EnvCatchupDays); ok && value != "" {
		days, err := strconv.Atoi(value)
		if err != nil || days < 0 {
			invalid = append(invalid, EnvCatchupDays)
		} else {
			cfg.CatchupDays = days
		}
	}

	if value, ok := get(EnvMaxRangeDays); ok && value != "" {
		days, err := strconv.Atoi(value)
		if err != nil || days < 1 {
			invalid = append(invalid, EnvMaxRangeDays)
		} else {
			cfg.MaxRangeDays = days
		}
	}

	if value, ok := get(EnvContactsFile); ok {
		cfg.ContactsFile = value
	}

	if value, ok := get(EnvLogLevel); ok {
		level, err := logging.ParseLevel(value)
		if err != nil {
			invalid = append(invalid, EnvLogLevel)
		} else {
			cfg.LogLevel = level
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// StoreConfig returns the database settings for cfg.
func (c Config) StoreConfig() sqlstore.Config {
	return sqlstore.DefaultConfig(c.DBDriver, c.DBDSN)
}

func newLookup(opts Options) (func(string) (string, bool), error) {
	env := opts.Lookup
	if env == nil {
		env = os.LookupEnv
	}

	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		read, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			dotenv = read
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", opts.EnvFile, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := env(key); ok {
			return strings.TrimSpace(v), true
		}
		v, ok := dotenv[key]
		return strings.TrimSpace(v), ok
	}, nil
}

func readFile(path string) (fileConfig, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return file, nil
}

func (f fileConfig) values() map[string]string {
	values := make(map[string]string)
	setString := func(key string, v *string) {
		if v != nil {
			values[key] = strings.TrimSpace(*v)
		}
	}
	setInt := func(key string, v *int) {
		if v != nil {
			values[key] = strconv.Itoa(*v)
		}
	}
	setInt(EnvHTTPPort, f.HTTPPort)
	setString(EnvDBDriver, f.DBDriver)
	setString(EnvDBDSN, f.DBDSN)
	setString(EnvTimezone, f.Timezone)
	setString(EnvMaterializeCron, f.MaterializeCron)
	setInt(EnvCatchupDays, f.CatchupDays)
	setInt(EnvMaxRangeDays, f.MaxRangeDays)
	setString(EnvContactsFile, f.ContactsFile)
	setString(EnvLogLevel, f.LogLevel)
	return values
}
