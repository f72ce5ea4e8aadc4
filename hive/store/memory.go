// Package store provides hive.CheckpointStore implementations: an
// in-memory backend for tests and short-lived runs, and SQL backends
// (SQLite, MySQL) for durable persistence across process restarts.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hiveflow/hive/hive"
)

// MemoryStore is a mutex-protected, in-memory hive.CheckpointStore. Its
// methods return an error only when ctx is already done; it is meant for
// tests and single-process runs.
type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[hive.ThreadID]map[hive.CheckpointID]hive.Checkpoint
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[hive.ThreadID]map[hive.CheckpointID]hive.Checkpoint)}
}

// Save stores cp, keyed by thread and checkpoint ID, overwriting any
// existing entry with the same ID.
func (m *MemoryStore) Save(ctx context.Context, cp hive.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.byKey[cp.ThreadID]
	if !ok {
		bucket = make(map[hive.CheckpointID]hive.Checkpoint)
		m.byKey[cp.ThreadID] = bucket
	}
	bucket[cp.ID] = cp
	return nil
}

// LoadLatest returns the checkpoint with the highest StepIndex for
// threadID; ties break on lexicographically-greatest CheckpointID.
func (m *MemoryStore) LoadLatest(ctx context.Context, threadID hive.ThreadID) (hive.Checkpoint, bool, error) {
	if err := ctx.Err(); err != nil {
		return hive.Checkpoint{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.byKey[threadID]
	if !ok || len(bucket) == 0 {
		return hive.Checkpoint{}, false, nil
	}
	var best hive.Checkpoint
	found := false
	for _, cp := range bucket {
		if !found || cp.StepIndex > best.StepIndex ||
			(cp.StepIndex == best.StepIndex && cp.ID > best.ID) {
			best = cp
			found = true
		}
	}
	return best, found, nil
}

// Load returns the checkpoint identified by checkpointID within threadID.
func (m *MemoryStore) Load(ctx context.Context, threadID hive.ThreadID, checkpointID hive.CheckpointID) (hive.Checkpoint, bool, error) {
	if err := ctx.Err(); err != nil {
		return hive.Checkpoint{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.byKey[threadID]
	if !ok {
		return hive.Checkpoint{}, false, nil
	}
	cp, ok := bucket[checkpointID]
	return cp, ok, nil
}

// List returns all checkpoint IDs for threadID, sorted lexicographically.
func (m *MemoryStore) List(ctx context.Context, threadID hive.ThreadID) ([]hive.CheckpointID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.byKey[threadID]
	out := make([]hive.CheckpointID, 0, len(bucket))
	for id := range bucket {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

var _ hive.CheckpointStore = (*MemoryStore)(nil)
