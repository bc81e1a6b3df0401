package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"nucleicore/pkg/domain"
)

// Service loads root datasets from a snapshot store into a registry and runs
// validation and repair against them.
type Service struct {
	store     SnapshotStore
	registry  *Registry
	validator *Validator
	repairer  *Repairer
	settings  settings
	loads     singleflight.Group
}

// NewService constructs a service backed by store with an empty registry.
func NewService(store SnapshotStore, opts ...Option) *Service {
	s := newSettings(opts)
	return &Service{
		store:     store,
		registry:  NewRegistry(),
		validator: &Validator{settings: s},
		repairer:  &Repairer{validator: &Validator{settings: s}, settings: s},
		settings:  s,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...Option) *Service {
	store, _ := OpenSnapshotStore(StorageMemory, "", "")
	return NewService(store, opts...)
}

// Store returns the underlying snapshot store.
func (s *Service) Store() SnapshotStore { return s.store }

// Registry returns the registry holding loaded datasets.
func (s *Service) Registry() *Registry { return s.registry }

// Validator returns the validator used by Validate.
func (s *Service) Validator() *Validator { return s.validator }

// Load returns the loaded root dataset with id, restoring it from the store
// on first use.
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	if d, err := s.registry.Dataset(id); err == nil {
		return d, nil
	}
	start := time.Now()
	v, err, _ := s.loads.Do(id.String(), func() (any, error) {
		if d, err := s.registry.Dataset(id); err == nil {
			return d, nil
		}
		snap, err := s.store.Load(ctx, id.String())
		if err != nil {
			return nil, err
		}
		return Restore(s.registry, snap, s.settings.options()...)
	})
	s.settings.metrics.Observe(ctx, "load_dataset", err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", id, err)
	}
	d := v.(*Dataset)
	s.settings.logger.Info("loaded dataset", slog.String("dataset", id.String()), slog.String("name", d.Name()))
	return d, nil
}

// Import restores snap into the registry and persists it. A dataset with the
// same id must not already be loaded.
func (s *Service) Import(ctx context.Context, snap domain.Snapshot) (*Dataset, error) {
	d, err := Restore(s.registry, snap, s.settings.options()...)
	if err != nil {
		return nil, fmt.Errorf("import dataset %s: %w", snap.Dataset.ID, err)
	}
	if err := s.Save(ctx, d); err != nil {
		unregisterTree(s.registry, d)
		return nil, err
	}
	return d, nil
}

// Add registers a new root dataset built from c and persists it.
func (s *Service) Add(ctx context.Context, c *RealCollection) (*Dataset, error) {
	d, err := NewRootDataset(s.registry, c)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, d); err != nil {
		unregisterTree(s.registry, d)
		return nil, err
	}
	return d, nil
}

// Save snapshots the root of d into the store.
func (s *Service) Save(ctx context.Context, d *Dataset) error {
	start := time.Now()
	err := s.save(ctx, d)
	s.settings.metrics.Observe(ctx, "save_dataset", err == nil, time.Since(start))
	return err
}

func (s *Service) save(ctx context.Context, d *Dataset) error {
	root, err := d.Root()
	if err != nil {
		return err
	}
	snap, err := SnapshotOf(root)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save dataset %s: %w", root.ID(), err)
	}
	root.markSaved(snap.Version)
	s.settings.logger.Debug("saved dataset", slog.String("dataset", root.ID().String()), slog.Int("cells", snap.Info().Cells))
	return nil
}

// Validate loads the dataset with id and validates it.
func (s *Service) Validate(ctx context.Context, id uuid.UUID) (Report, error) {
	d, err := s.Load(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return s.validator.ValidateDataset(ctx, d)
}

// Repair loads the dataset with id, repairs it and persists the result when
// any nucleus changed.
func (s *Service) Repair(ctx context.Context, id uuid.UUID) (RepairResult, error) {
	d, err := s.Load(ctx, id)
	if err != nil {
		return RepairResult{}, err
	}
	res, err := s.repairer.RepairDataset(ctx, d)
	if err != nil {
		return res, err
	}
	if res.Repaired > 0 {
		if err := s.Save(ctx, d); err != nil {
			return res, err
		}
	}
	return res, nil
}

// List summarises the stored snapshots.
func (s *Service) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	return s.store.List(ctx)
}

// Delete removes the stored snapshot and unloads the dataset if loaded.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.store.Delete(ctx, id.String())
	var nf domain.ErrNotFound
	if err != nil && !errors.As(err, &nf) {
		return err
	}
	d, lerr := s.registry.Dataset(id)
	if lerr == nil && d.IsRoot() {
		unregisterTree(s.registry, d)
		return nil
	}
	return err
}

// Close releases the store.
func (s *Service) Close() error { return s.store.Close() }
