package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    stream_id TEXT PRIMARY KEY,
    seq       INTEGER NOT NULL,
    applied   INTEGER NOT NULL,
    state     TEXT NOT NULL,
    taken_at  TEXT NOT NULL
)`

// SQLiteStore keeps snapshots in a table next to the event log.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the snapshots table if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the snapshot for streamID, if any.
func (s *SQLiteStore) Get(ctx context.Context, streamID string) (Snapshot, bool, error) {
	var (
		snap    Snapshot
		state   string
		takenAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT stream_id, seq, applied, state, taken_at
		FROM snapshots
		WHERE stream_id = ?
	`, streamID).Scan(&snap.StreamID, &snap.Seq, &snap.Applied, &state, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot %s: %w", streamID, err)
	}
	snap.State = []byte(state)
	snap.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot %s: parse taken_at: %w", streamID, err)
	}
	return snap, true, nil
}

// Put upserts snap.
func (s *SQLiteStore) Put(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (stream_id, seq, applied, state, taken_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stream_id) DO UPDATE SET
			seq = excluded.seq,
			applied = excluded.applied,
			state = excluded.state,
			taken_at = excluded.taken_at
	`,
		snap.StreamID,
		snap.Seq,
		snap.Applied,
		string(snap.State),
		snap.TakenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.StreamID, err)
	}
	return nil
}
