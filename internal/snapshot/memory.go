package snapshot

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Get returns the snapshot for streamID, if any.
func (m *MemoryStore) Get(_ context.Context, streamID string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[streamID]
	if !ok {
		return Snapshot{}, false, nil
	}
	snap.State = slices.Clone(snap.State)
	return snap, true, nil
}

// Put stores snap, replacing any previous snapshot of the stream.
func (m *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	snap.State = slices.Clone(snap.State)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.StreamID] = snap
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}
