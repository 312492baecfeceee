package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "recon:snapshot:"

// ConnectRedis builds a client from a redis:// URL or a bare host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore keeps snapshots as JSON strings with an optional TTL, so stale
// snapshots of inactive streams expire on their own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl keeps snapshots forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the redis key used for streamID.
func (r *RedisStore) Key(streamID string) string {
	return r.prefix + streamID
}

// Get returns the snapshot for streamID, if any.
func (r *RedisStore) Get(ctx context.Context, streamID string) (Snapshot, bool, error) {
	raw, err := r.client.Get(ctx, r.Key(streamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot %s: %w", streamID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", streamID, err)
	}
	return snap, true, nil
}

// Put stores snap, replacing any previous snapshot of the stream.
func (r *RedisStore) Put(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.StreamID, err)
	}
	if err := r.client.Set(ctx, r.Key(snap.StreamID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.StreamID, err)
	}
	return nil
}
