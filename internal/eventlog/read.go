package eventlog

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// ReadStream yields the events of streamID with seq >= fromSeq in ascending
// order. A fromSeq below 1 reads from the start.
//
// Reading from the start of a stream that has no events yields a single
// ErrStreamNotFound. Reading past the end of an existing stream yields
// nothing. Iteration stops at the first error.
func (s *Store) ReadStream(ctx context.Context, streamID string, fromSeq int64) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		next := max(fromSeq, 1)
		for {
			page, err := s.readPage(ctx, streamID, next)
			if err != nil {
				yield(Event{}, err)
				return
			}
			if len(page) == 0 {
				if next == 1 {
					yield(Event{}, fmt.Errorf("read %s: %w", streamID, ErrStreamNotFound))
				}
				return
			}
			for _, ev := range page {
				if !yield(ev, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			next = page[len(page)-1].Seq + 1
		}
	}
}

// StreamVersion returns the highest sequence number of streamID, or 0.
func (s *Store) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	return streamVersion(ctx, s.db, streamID)
}

// StreamInfo summarizes one stream.
type StreamInfo struct {
	StreamID string `json:"stream_id"`
	Version  int64  `json:"version"`
}

// Streams lists streams whose id starts with prefix, ordered by id.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Streams(ctx context.Context, prefix string) ([]StreamInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream_id, MAX(seq)
		FROM events
		WHERE substr(stream_id, 1, length(?)) = ?
		GROUP BY stream_id
		ORDER BY stream_id COLLATE BINARY ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	streams := []StreamInfo{}
	for rows.Next() {
		var info StreamInfo
		if err := rows.Scan(&info.StreamID, &info.Version); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		streams = append(streams, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return streams, nil
}

func (s *Store) readPage(ctx context.Context, streamID string, fromSeq int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream_id, seq, event_type, payload, occurred_at
		FROM events
		WHERE stream_id = ? AND seq >= ?
		ORDER BY seq ASC
		LIMIT ?
	`, streamID, fromSeq, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query events %s: %w", streamID, err)
	}
	defer rows.Close()

	page := make([]Event, 0, s.pageSize)
	for rows.Next() {
		var (
			ev       Event
			payload  string
			occurred string
		)
		if err := rows.Scan(&ev.ID, &ev.StreamID, &ev.Seq, &ev.Type, &payload, &occurred); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = []byte(payload)
		ev.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred)
		if err != nil {
			return nil, fmt.Errorf("event %s: parse occurred_at: %w", ev.ID, err)
		}
		page = append(page, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events %s: %w", streamID, err)
	}
	return page, nil
}
