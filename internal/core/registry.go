package core

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
)

// Registry maps dataset ids to datasets. Virtual collections and child
// datasets refer to their parent by id and resolve it here.
type Registry struct {
	mu       sync.RWMutex
	datasets map[uuid.UUID]*Dataset
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{datasets: make(map[uuid.UUID]*Dataset)}
}

// Register adds d. Registering the same dataset twice is a no-op; a different
// dataset under a taken id is rejected.
func (r *Registry) Register(d *Dataset) error {
	if d == nil {
		return fmt.Errorf("register dataset: %w", domain.ErrComponentCreation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.datasets[d.ID()]; ok && existing != d {
		return fmt.Errorf("dataset %s already registered", d.ID())
	}
	r.datasets[d.ID()] = d
	return nil
}

// Unregister removes the dataset with id.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.datasets, id)
	r.mu.Unlock()
}

// Dataset resolves id.
func (r *Registry) Dataset(id uuid.UUID) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[id]
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityDataset, ID: id.String()}
	}
	return d, nil
}

// IDs returns the registered dataset ids in ascending order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(r.datasets), compareIDs)
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.datasets)
}
