package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// MemorySnapshots keeps snapshots in process memory.
type MemorySnapshots struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snaps: make(map[string]Snapshot)}
}

func (m *MemorySnapshots) Load(_ context.Context, userID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[userID]
	if !ok {
		return Snapshot{UserID: userID}, nil
	}
	snap.Appointments = append([]Appointment(nil), snap.Appointments...)
	return snap, nil
}

func (m *MemorySnapshots) Publish(_ context.Context, snap Snapshot) error {
	snap.Appointments = append([]Appointment{}, snap.Appointments...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.UserID] = snap
	return nil
}

// ErrCacheMiss is returned by a BlobCache that holds no value for a key.
var ErrCacheMiss = errors.New("cache miss")

// BlobCache is a byte oriented key value store, e.g. Redis.
type BlobCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedSnapshots stores JSON encoded snapshots in a BlobCache so that every
// process serving a user sees the same published cycle.
type CachedSnapshots struct {
	cache BlobCache
}

func NewCachedSnapshots(cache BlobCache) *CachedSnapshots {
	return &CachedSnapshots{cache: cache}
}

func snapshotKey(userID string) string {
	return "snapshot:" + userID
}

func (c *CachedSnapshots) Load(ctx context.Context, userID string) (Snapshot, error) {
	data, err := c.cache.Get(ctx, snapshotKey(userID))
	if errors.Is(err, ErrCacheMiss) {
		return Snapshot{UserID: userID}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (c *CachedSnapshots) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.cache.Set(ctx, snapshotKey(snap.UserID), data); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}
