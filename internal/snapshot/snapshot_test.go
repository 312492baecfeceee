package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/eventlog"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "product-42")
	require.NoError(t, err)
	assert.False(t, ok)

	taken := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	first := Snapshot{StreamID: "product-42", Seq: 10, Applied: 10, State: json.RawMessage(`{"stock":10}`), TakenAt: taken}
	require.NoError(t, s.Put(ctx, first))

	got, ok, err := s.Get(ctx, "product-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Seq)
	assert.Equal(t, 10, got.Applied)
	assert.JSONEq(t, `{"stock":10}`, string(got.State))
	assert.True(t, taken.Equal(got.TakenAt))

	second := Snapshot{StreamID: "product-42", Seq: 20, Applied: 19, State: json.RawMessage(`{"stock":4}`), TakenAt: taken.Add(time.Hour)}
	require.NoError(t, s.Put(ctx, second))

	got, ok, err = s.Get(ctx, "product-42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(20), got.Seq)
	assert.JSONEq(t, `{"stock":4}`, string(got.State))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesState(t *testing.T) {
	m := NewMemoryStore()
	state := json.RawMessage(`{"a":1}`)
	require.NoError(t, m.Put(context.Background(), Snapshot{StreamID: "s", State: state}))

	state[2] = 'b'

	got, _, err := m.Get(context.Background(), "s")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.State))
	assert.Equal(t, 1, m.Len())
}

func TestSQLiteStore(t *testing.T) {
	db, err := eventlog.OpenDB(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)

	exerciseStore(t, s)
}

func TestRedisStoreKey(t *testing.T) {
	client, err := ConnectRedis("localhost:6379")
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "recon:snapshot:product-42", NewRedisStore(client, "", 0).Key("product-42"))
	assert.Equal(t, "x:product-42", NewRedisStore(client, "x:", 0).Key("product-42"))
}

func TestConnectRedisRejectsBadURL(t *testing.T) {
	_, err := ConnectRedis("redis://localhost:notaport")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("RECON_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RECON_TEST_REDIS_URL not set")
	}
	client, err := ConnectRedis(url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "recon:test:" + t.Name() + ":"
	exerciseStore(t, NewRedisStore(client, prefix, time.Minute))
}
