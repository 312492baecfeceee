// Package sqlite stores read-model documents as JSON text in SQLite.
//
// All collections share one documents table keyed by (collection, id).
// Filters use SQLite's built-in JSON functions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/recon/internal/eventlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    doc        TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at);
`

// timeLayout is fixed-width so that timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store owns the documents table.
type Store struct {
	db    *sql.DB
	owned bool
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) a document database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := eventlog.OpenDB(path)
	if err != nil {
		return nil, err
	}
	s, err := New(context.Background(), db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New uses an already open database, creating the documents table if needed.
// Close does not close a database passed to New.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Collection returns the gateway for one named collection.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
