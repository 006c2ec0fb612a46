package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	postgresMaxOpenConns = 10
	postgresMaxIdleConns = 5

	maxOpenConnsEnvKey    = "REIMAGINE_DB_MAX_OPEN_CONNS"
	maxIdleConnsEnvKey    = "REIMAGINE_DB_MAX_IDLE_CONNS"
	connMaxLifetimeEnvKey = "REIMAGINE_DB_CONN_MAX_LIFETIME"
)

const (
	// DriverSQLite stores records in a local SQLite file.
	DriverSQLite = "sqlite"
	// DriverPostgres stores records in a PostgreSQL database.
	DriverPostgres = "postgres"
)

// Options selects the database behind a Store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Store wraps the relational database holding image records.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open opens the SQLite database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	return OpenWithOptions(Options{Driver: DriverSQLite, Path: path})
}

// OpenWithOptions opens the configured driver and applies pending migrations.
func OpenWithOptions(opts Options) (*Store, error) {
	db, d, err := openDB(opts)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: d}, nil
}

// OpenRaw opens the database without running migrations. Used for migration planning.
func OpenRaw(opts Options) (*sql.DB, error) {
	db, d, err := openDB(opts)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Driver reports the database driver in use.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openDB(opts Options) (*sql.DB, dialect, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, dialect{}, err
	}

	var dsn string
	switch d.name {
	case DriverPostgres:
		dsn = strings.TrimSpace(opts.DSN)
		if dsn == "" {
			return nil, dialect{}, fmt.Errorf("db dsn is required for postgres")
		}
	default:
		dsn, err = sqliteDSN(opts.Path)
		if err != nil {
			return nil, dialect{}, err
		}
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, dialect{}, err
	}
	return db, d, nil
}

func configureDB(db *sql.DB, d dialect) error {
	if d.name == DriverSQLite {
		pragmas := []string{
			"PRAGMA journal_mode = WAL;",
			"PRAGMA synchronous = NORMAL;",
			"PRAGMA foreign_keys = ON;",
			fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
		}
		for _, stmt := range pragmas {
			if _, err := db.Exec(stmt); err != nil {
				return err
			}
		}
	}

	openConns, idleConns := poolLimits(d)
	db.SetMaxOpenConns(intFromEnv(maxOpenConnsEnvKey, openConns))
	db.SetMaxIdleConns(intFromEnv(maxIdleConnsEnvKey, idleConns))
	db.SetConnMaxLifetime(durationFromEnv(connMaxLifetimeEnvKey, connMaxLifetime))

	return nil
}

// poolLimits returns the default open and idle connection caps. SQLite keeps a
// single writer; Postgres gets a small pool.
func poolLimits(d dialect) (int, int) {
	if d.name == DriverPostgres {
		return postgresMaxOpenConns, postgresMaxIdleConns
	}
	return maxOpenConns, maxIdleConns
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// durationFromEnv accepts Go durations or a bare number of seconds.
func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
