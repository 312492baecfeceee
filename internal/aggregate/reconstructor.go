package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/eventlog"
	"github.com/roach88/recon/internal/snapshot"
)

// DefaultSnapshotEvery is the number of replayed events after which a new
// snapshot is written when snapshots are enabled.
const DefaultSnapshotEvery = 100

type options struct {
	snapshots snapshot.Store
	every     int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Reconstructor.
type Option func(*options)

// WithSnapshots enables snapshot restore and refresh. A new snapshot is
// written once at least every events were replayed on top of the last one.
func WithSnapshots(store snapshot.Store, every int) Option {
	return func(o *options) {
		o.snapshots = store
		if every > 0 {
			o.every = every
		}
	}
}

// WithLogger sets the logger used for skipped events and snapshot failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Reconstructor rebuilds aggregates of one type. Safe for concurrent use;
// every call works on its own aggregate instance.
type Reconstructor[A Aggregate] struct {
	aggregateType string
	transformers  Transformers
	newAggregate  func() A
	events        EventReader
	opts          options
}

// NewReconstructor returns a Reconstructor for aggregateType.
// The transformer table is copied.
func NewReconstructor[A Aggregate](
	aggregateType string,
	transformers Transformers,
	newAggregate func() A,
	events EventReader,
	opts ...Option,
) *Reconstructor[A] {
	table := make(Transformers, len(transformers))
	for name, t := range transformers {
		table[name] = t
	}

	o := options{every: DefaultSnapshotEvery, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Reconstructor[A]{
		aggregateType: aggregateType,
		transformers:  table,
		newAggregate:  newAggregate,
		events:        events,
		opts:          o,
	}
}

// AggregateType returns the stream prefix this reconstructor reads.
func (r *Reconstructor[A]) AggregateType() string {
	return r.aggregateType
}

// Reconstruct replays the stream of id into a fresh aggregate.
//
// Returns a not-found error when the stream does not exist or when no event
// of it was applied. Transformer and Apply errors abort the replay.
func (r *Reconstructor[A]) Reconstruct(ctx context.Context, id string) (A, error) {
	var zero A
	streamID := StreamID(r.aggregateType, id)

	agg, from, applied := r.restore(ctx, streamID)
	replayed, skipped := 0, 0
	lastSeq := from - 1

	for ev, err := range r.events.ReadStream(ctx, streamID, from) {
		if err != nil {
			if errors.Is(err, eventlog.ErrStreamNotFound) {
				return zero, r.notFound(id)
			}
			return zero, fmt.Errorf("reconstruct %s: %w", streamID, err)
		}
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("reconstruct %s: %w", streamID, err)
		}
		lastSeq = ev.Seq
		replayed++

		if IsSystemEvent(ev.Type) {
			skipped++
			continue
		}
		transform, ok := r.transformers[ev.Type]
		if !ok {
			r.opts.logger.WarnContext(ctx, "no transformer for event type, skipping",
				"aggregate_type", r.aggregateType,
				"id", id,
				"event_type", ev.Type,
				"seq", ev.Seq,
			)
			skipped++
			continue
		}
		domainEvent, err := transform(ev)
		if err != nil {
			return zero, fmt.Errorf("reconstruct %s: transform %s (seq %d): %w", streamID, ev.Type, ev.Seq, err)
		}
		if err := agg.Apply(domainEvent); err != nil {
			return zero, fmt.Errorf("reconstruct %s: apply %s (seq %d): %w", streamID, ev.Type, ev.Seq, err)
		}
		applied++
	}

	if applied == 0 {
		return zero, r.notFound(id)
	}

	r.opts.logger.DebugContext(ctx, "aggregate reconstructed",
		"aggregate_type", r.aggregateType,
		"id", id,
		"from_seq", from,
		"replayed", replayed,
		"skipped", skipped,
		"applied", applied,
	)

	if r.opts.snapshots != nil && replayed >= r.opts.every {
		r.save(ctx, streamID, agg, lastSeq, applied)
	}
	return agg, nil
}

// restore returns a starting aggregate, the first seq to replay and the
// number of events already applied. Any snapshot problem, including a
// snapshot newer than the stream itself, falls back to a full replay.
func (r *Reconstructor[A]) restore(ctx context.Context, streamID string) (A, int64, int) {
	if r.opts.snapshots == nil {
		return r.newAggregate(), 1, 0
	}
	snap, ok, err := r.opts.snapshots.Get(ctx, streamID)
	if err != nil {
		r.opts.logger.WarnContext(ctx, "snapshot read failed, replaying from start",
			"stream_id", streamID,
			"error", err,
		)
		return r.newAggregate(), 1, 0
	}
	if !ok || snap.Seq < 1 || snap.Applied < 1 {
		return r.newAggregate(), 1, 0
	}
	// A snapshot ahead of the log belongs to a stream that was dropped or
	// rebuilt, so it must not stand in for missing events.
	version, err := r.events.StreamVersion(ctx, streamID)
	if err != nil {
		r.opts.logger.WarnContext(ctx, "stream version read failed, replaying from start",
			"stream_id", streamID,
			"error", err,
		)
		return r.newAggregate(), 1, 0
	}
	if version < snap.Seq {
		r.opts.logger.WarnContext(ctx, "snapshot ahead of event log, discarding",
			"stream_id", streamID,
			"seq", snap.Seq,
			"version", version,
		)
		return r.newAggregate(), 1, 0
	}
	agg := r.newAggregate()
	if err := json.Unmarshal(snap.State, &agg); err != nil {
		r.opts.logger.WarnContext(ctx, "snapshot unreadable, replaying from start",
			"stream_id", streamID,
			"seq", snap.Seq,
			"error", err,
		)
		return r.newAggregate(), 1, 0
	}
	return agg, snap.Seq + 1, snap.Applied
}

func (r *Reconstructor[A]) save(ctx context.Context, streamID string, agg A, seq int64, applied int) {
	data, err := json.Marshal(agg)
	if err != nil {
		r.opts.logger.WarnContext(ctx, "snapshot encode failed", "stream_id", streamID, "error", err)
		return
	}
	snap := snapshot.Snapshot{
		StreamID: streamID,
		Seq:      seq,
		Applied:  applied,
		State:    data,
		TakenAt:  r.opts.now().UTC(),
	}
	if err := r.opts.snapshots.Put(ctx, snap); err != nil {
		r.opts.logger.WarnContext(ctx, "snapshot write failed", "stream_id", streamID, "error", err)
	}
}

func (r *Reconstructor[A]) notFound(id string) error {
	return apperrors.NotFound(id, fmt.Sprintf("no events found for %s aggregate", r.aggregateType))
}
