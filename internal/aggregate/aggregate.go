package aggregate

import (
	"context"
	"iter"
	"strings"

	"github.com/roach88/recon/internal/eventlog"
)

// Aggregate is an in-memory entity that evolves by applying domain events.
// Aggregates used with snapshots must round-trip through encoding/json.
type Aggregate interface {
	Apply(event any) error
}

// Transformer turns a stored event into the domain event value its
// aggregate's Apply understands.
type Transformer func(ev eventlog.Event) (any, error)

// Transformers maps event type names to transformers.
type Transformers map[string]Transformer

// EventTypes returns the registered event type names.
func (t Transformers) EventTypes() []string {
	types := make([]string, 0, len(t))
	for name := range t {
		types = append(types, name)
	}
	return types
}

// Decode returns a Transformer that unmarshals the payload into a fresh T.
func Decode[T any]() Transformer {
	return func(ev eventlog.Event) (any, error) {
		var v T
		if err := ev.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// EventReader reads one stream in sequence order starting at fromSeq.
// Reading a stream with no events from the start yields
// eventlog.ErrStreamNotFound. StreamVersion returns the highest sequence
// number of the stream, or 0 when it has no events.
type EventReader interface {
	ReadStream(ctx context.Context, streamID string, fromSeq int64) iter.Seq2[eventlog.Event, error]
	StreamVersion(ctx context.Context, streamID string) (int64, error)
}

// StreamID names the stream of entity id.
func StreamID(aggregateType, id string) string {
	return aggregateType + "-" + id
}

// IsSystemEvent reports whether an event type is reserved for the store.
func IsSystemEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "$")
}
