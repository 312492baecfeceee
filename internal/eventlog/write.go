package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Append adds drafts to the end of streamID in one transaction and returns
// the stored events. Sequence numbers continue from the stream's current
// version.
func (s *Store) Append(ctx context.Context, streamID string, drafts ...Draft) ([]Event, error) {
	if streamID == "" {
		return nil, fmt.Errorf("append: stream id is required")
	}
	if len(drafts) == 0 {
		return []Event{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback()

	version, err := streamVersion(ctx, tx, streamID)
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}

	stored := make([]Event, 0, len(drafts))
	for i, d := range drafts {
		if d.Type == "" {
			return nil, fmt.Errorf("append: draft %d has no type", i)
		}
		payload, err := d.payloadJSON()
		if err != nil {
			return nil, fmt.Errorf("append: %w", err)
		}
		occurred := d.OccurredAt
		if occurred.IsZero() {
			occurred = s.now()
		}
		ev := Event{
			ID:         s.ids.Generate(),
			StreamID:   streamID,
			Seq:        version + int64(i) + 1,
			Type:       d.Type,
			Payload:    payload,
			OccurredAt: occurred.UTC(),
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, stream_id, seq, event_type, payload, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			ev.ID,
			ev.StreamID,
			ev.Seq,
			ev.Type,
			string(ev.Payload),
			ev.OccurredAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return nil, fmt.Errorf("append %s #%d: %w", streamID, ev.Seq, err)
		}
		stored = append(stored, ev)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append: commit: %w", err)
	}
	return stored, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func streamVersion(ctx context.Context, q queryRower, streamID string) (int64, error) {
	var version sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE stream_id = ?`, streamID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("stream version %s: %w", streamID, err)
	}
	return version.Int64, nil
}
