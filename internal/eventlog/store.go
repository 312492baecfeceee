package eventlog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on events.event_type for type scans
const currentSchemaVersion = 1

// DefaultPageSize is the number of events fetched per query while reading a
// stream.
const DefaultPageSize = 500

// Store is the SQLite-backed event log.
type Store struct {
	db       *sql.DB
	ids      IDGenerator
	now      func() time.Time
	pageSize int
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithClock replaces time.Now for stamping drafts without OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPageSize sets how many events a stream read fetches per query.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Open creates or opens the event log at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite allows one writer
//
// Open is idempotent.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:       db,
		ids:      UUIDv7Generator{},
		now:      time.Now,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenDB opens a SQLite database with the event log's pragmas but without
// any schema. Other SQLite-backed stores (read model, snapshots) share it.
func OpenDB(path string) (*sql.DB, error) {
	return openSQLite(path)
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database so that snapshot tables can live next to
// the events.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
