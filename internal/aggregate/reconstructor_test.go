package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/eventlog"
	"github.com/roach88/recon/internal/snapshot"
)

type opened struct {
	Owner string `json:"owner"`
}

type deposited struct {
	Amount int `json:"amount"`
}

// account is a minimal aggregate used to exercise replay.
type account struct {
	Owner   string `json:"owner"`
	Balance int    `json:"balance"`
	Events  int    `json:"events"`
}

func (a *account) Apply(event any) error {
	switch e := event.(type) {
	case opened:
		a.Owner = e.Owner
	case deposited:
		if e.Amount < 0 {
			return errors.New("negative deposit")
		}
		a.Balance += e.Amount
	default:
		return errors.New("unexpected event")
	}
	a.Events++
	return nil
}

var accountTransformers = Transformers{
	"AccountOpened":    Decode[opened](),
	"AccountDeposited": Decode[deposited](),
}

func newAccount() *account { return &account{} }

func createTestLog(t *testing.T) *eventlog.Store {
	t.Helper()
	s, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func appendEvents(t *testing.T, s *eventlog.Store, stream string, drafts ...eventlog.Draft) {
	t.Helper()
	_, err := s.Append(context.Background(), stream, drafts...)
	require.NoError(t, err)
}

func TestStreamID(t *testing.T) {
	assert.Equal(t, "product-42", StreamID("product", "42"))
}

func TestReconstruct_AppliesInOrder(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 5}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 7}},
	)

	r := NewReconstructor("account", accountTransformers, newAccount, log)
	acc, err := r.Reconstruct(context.Background(), "1")

	require.NoError(t, err)
	assert.Equal(t, &account{Owner: "ann", Balance: 12, Events: 3}, acc)
}

func TestReconstruct_Deterministic(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 3}},
	)
	r := NewReconstructor("account", accountTransformers, newAccount, log)

	first, err := r.Reconstruct(context.Background(), "1")
	require.NoError(t, err)
	second, err := r.Reconstruct(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second, "each call builds a fresh aggregate")
}

func TestReconstruct_SkipsSystemAndUnknownEvents(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "$metadata", Payload: map[string]any{"maxAge": 10}},
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountAudited"},
	)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := NewReconstructor("account", accountTransformers, newAccount, log, WithLogger(logger))
	acc, err := r.Reconstruct(context.Background(), "1")

	require.NoError(t, err)
	assert.Equal(t, 1, acc.Events)
	assert.Contains(t, buf.String(), "no transformer for event type")
	assert.Contains(t, buf.String(), "event_type=AccountAudited")
	assert.NotContains(t, buf.String(), "$metadata", "system events are skipped silently")
}

func TestReconstruct_NotFoundWhenStreamMissing(t *testing.T) {
	log := createTestLog(t)
	r := NewReconstructor("account", accountTransformers, newAccount, log)

	_, err := r.Reconstruct(context.Background(), "404")

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "404")
}

func TestReconstruct_NotFoundWhenNothingApplied(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "$stream-created"},
		eventlog.Draft{Type: "SomethingElse"},
	)
	r := NewReconstructor("account", accountTransformers, newAccount, log)

	_, err := r.Reconstruct(context.Background(), "1")

	assert.True(t, apperrors.IsNotFound(err))
}

func TestReconstruct_ApplyErrorAborts(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: -1}},
	)
	r := NewReconstructor("account", accountTransformers, newAccount, log)

	_, err := r.Reconstruct(context.Background(), "1")

	require.Error(t, err)
	assert.False(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "negative deposit")
	assert.Contains(t, err.Error(), "seq 2")
}

func TestReconstruct_TransformErrorAborts(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1", eventlog.Draft{Type: "AccountDeposited", Payload: json.RawMessage(`{"amount":"lots"}`)})
	r := NewReconstructor("account", accountTransformers, newAccount, log)

	_, err := r.Reconstruct(context.Background(), "1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform AccountDeposited")
}

// failingReader yields a single non-not-found error.
type failingReader struct{ err error }

func (f failingReader) ReadStream(context.Context, string, int64) iter.Seq2[eventlog.Event, error] {
	return func(yield func(eventlog.Event, error) bool) {
		yield(eventlog.Event{}, f.err)
	}
}

func (f failingReader) StreamVersion(context.Context, string) (int64, error) { return 0, f.err }

func TestReconstruct_PropagatesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReconstructor("account", accountTransformers, newAccount, failingReader{err: boom})

	_, err := r.Reconstruct(context.Background(), "1")

	assert.ErrorIs(t, err, boom)
	assert.False(t, apperrors.IsNotFound(err))
}

func TestReconstruct_TransformerTableIsCopied(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1", eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}})
	table := Transformers{"AccountOpened": Decode[opened]()}

	r := NewReconstructor("account", table, newAccount, log)
	delete(table, "AccountOpened")

	_, err := r.Reconstruct(context.Background(), "1")
	assert.NoError(t, err)
}

func TestReconstruct_WritesAndUsesSnapshots(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 1}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 2}},
	)
	snaps := snapshot.NewMemoryStore()
	r := NewReconstructor("account", accountTransformers, newAccount, log, WithSnapshots(snaps, 2))

	acc, err := r.Reconstruct(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 3, acc.Balance)

	snap, ok, err := snaps.Get(context.Background(), "account-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), snap.Seq)
	assert.Equal(t, 3, snap.Applied)

	appendEvents(t, log, "account-1", eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 10}})

	acc, err = r.Reconstruct(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, &account{Owner: "ann", Balance: 13, Events: 4}, acc)

	snap, _, err = snaps.Get(context.Background(), "account-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Seq, "one tail event is below the refresh threshold")
}

func TestReconstruct_SnapshotWithoutTail(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1", eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}})
	snaps := snapshot.NewMemoryStore()
	require.NoError(t, snaps.Put(context.Background(), snapshot.Snapshot{
		StreamID: "account-1", Seq: 1, Applied: 1, State: json.RawMessage(`{"owner":"ann","balance":0,"events":1}`),
	}))
	r := NewReconstructor("account", accountTransformers, newAccount, log, WithSnapshots(snaps, 50))

	acc, err := r.Reconstruct(context.Background(), "1")

	require.NoError(t, err)
	assert.Equal(t, "ann", acc.Owner)
}

func TestReconstruct_SnapshotForMissingStreamIsNotFound(t *testing.T) {
	log := createTestLog(t)
	snaps := snapshot.NewMemoryStore()
	require.NoError(t, snaps.Put(context.Background(), snapshot.Snapshot{
		StreamID: "account-42", Seq: 3, Applied: 3, State: json.RawMessage(`{"owner":"ghost","balance":99,"events":3}`),
	}))
	var buf bytes.Buffer
	r := NewReconstructor("account", accountTransformers, newAccount, log,
		WithSnapshots(snaps, 50),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
	)

	acc, err := r.Reconstruct(context.Background(), "42")

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Nil(t, acc)
	assert.Contains(t, buf.String(), "snapshot ahead of event log")
}

func TestReconstruct_SnapshotAheadOfStreamReplaysFromStart(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 2}},
	)
	snaps := snapshot.NewMemoryStore()
	require.NoError(t, snaps.Put(context.Background(), snapshot.Snapshot{
		StreamID: "account-1", Seq: 5, Applied: 5, State: json.RawMessage(`{"owner":"old","balance":500,"events":5}`),
	}))
	r := NewReconstructor("account", accountTransformers, newAccount, log,
		WithSnapshots(snaps, 50),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)

	acc, err := r.Reconstruct(context.Background(), "1")

	require.NoError(t, err)
	assert.Equal(t, &account{Owner: "ann", Balance: 2, Events: 2}, acc)
}

func TestReconstruct_CorruptSnapshotFallsBack(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1",
		eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}},
		eventlog.Draft{Type: "AccountDeposited", Payload: deposited{Amount: 4}},
	)
	snaps := snapshot.NewMemoryStore()
	require.NoError(t, snaps.Put(context.Background(), snapshot.Snapshot{
		StreamID: "account-1", Seq: 1, Applied: 1, State: json.RawMessage(`not json`),
	}))
	r := NewReconstructor("account", accountTransformers, newAccount, log,
		WithSnapshots(snaps, 50),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)

	acc, err := r.Reconstruct(context.Background(), "1")

	require.NoError(t, err)
	assert.Equal(t, &account{Owner: "ann", Balance: 4, Events: 2}, acc)
}

func TestReconstruct_CancelledContext(t *testing.T) {
	log := createTestLog(t)
	appendEvents(t, log, "account-1", eventlog.Draft{Type: "AccountOpened", Payload: opened{Owner: "ann"}})
	r := NewReconstructor("account", accountTransformers, newAccount, log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconstruct(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}
