package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrStreamNotFound is returned when a stream has no events at all.
var ErrStreamNotFound = errors.New("stream not found")

// Event is one immutable entry of a stream.
type Event struct {
	ID         string          `json:"id"`
	StreamID   string          `json:"stream_id"`
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s (%s): empty payload", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event %s (%s): decode payload: %w", e.ID, e.Type, err)
	}
	return nil
}

// Draft is an event about to be appended. Payload is marshaled with
// encoding/json unless it already is a json.RawMessage or []byte.
// A zero OccurredAt is stamped with the store clock.
type Draft struct {
	Type       string
	Payload    any
	OccurredAt time.Time
}

func (d Draft) payloadJSON() (json.RawMessage, error) {
	switch p := d.Payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload of %s is not valid JSON", d.Type)
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload of %s is not valid JSON", d.Type)
		}
		return json.RawMessage(p), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload of %s: %w", d.Type, err)
		}
		return data, nil
	}
}

// IDGenerator produces event ids.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event ids.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 string. Panics if generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator yields "{prefix}-1", "{prefix}-2", ... so that traces and
// golden files stay stable. Safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator returns a generator starting at 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
