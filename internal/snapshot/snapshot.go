// Package snapshot caches reconstructed aggregate state so that replay can
// resume from a known sequence number instead of the start of a stream.
//
// A snapshot is only ever an optimization: reconstruction always replays the
// tail after it, and a missing or unreadable snapshot falls back to a full
// replay.
package snapshot

import (
	"context"
	"encoding/json"
	"time"
)

// Snapshot is the serialized state of one aggregate after Seq events.
type Snapshot struct {
	StreamID string          `json:"stream_id"`
	Seq      int64           `json:"seq"`
	Applied  int             `json:"applied"`
	State    json.RawMessage `json:"state"`
	TakenAt  time.Time       `json:"taken_at"`
}

// Store reads and writes snapshots keyed by stream id. Put replaces any
// existing snapshot for the stream.
type Store interface {
	Get(ctx context.Context, streamID string) (Snapshot, bool, error)
	Put(ctx context.Context, snap Snapshot) error
}
