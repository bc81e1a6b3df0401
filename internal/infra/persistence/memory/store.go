// Package memory provides an in-process snapshot store for tests and
// ephemeral runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"nucleicore/pkg/domain"
)

var _ domain.SnapshotStore = (*Store)(nil)

// Store keeps encoded snapshots keyed by root dataset id. Snapshots are
// stored encoded so callers never share state with the store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save replaces the snapshot stored under the dataset id.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Dataset.ID == "" {
		return fmt.Errorf("save snapshot: missing dataset id")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Dataset.ID, err)
	}
	s.mu.Lock()
	s.data[snap.Dataset.ID] = payload
	s.mu.Unlock()
	return nil
}

// Load returns the snapshot stored under id.
func (s *Store) Load(ctx context.Context, id string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.RLock()
	payload, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound{Entity: domain.EntitySnapshot, ID: id}
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return snap, nil
}

// List summarises every stored snapshot ordered by id.
func (s *Store) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	out := make([]domain.SnapshotInfo, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, snap.Info())
	}
	return out, nil
}

// Delete removes the snapshot stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntitySnapshot, ID: id}
	}
	delete(s.data, id)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
