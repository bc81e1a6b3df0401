package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// countingStore wraps a store and counts loads.
type countingStore struct {
	SnapshotStore
	mu    sync.Mutex
	loads int
}

func (s *countingStore) Load(ctx context.Context, id string) (domain.Snapshot, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return s.SnapshotStore.Load(ctx, id)
}

func segmentedCollection(t *testing.T, badRP int) *RealCollection {
	t.Helper()
	d, _ := segmentedDataset(t, badRP)
	rc := d.Collection().(*RealCollection)
	d.Registry().Unregister(d.ID())
	return rc
}

func TestServiceAddLoadAcrossInstances(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	rc := segmentedCollection(t, 3)
	d, err := svc.Add(ctx, rc)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if d.VersionLastSaved() != domain.SnapshotVersion {
		t.Fatalf("expected saved version %s, got %s", domain.SnapshotVersion, d.VersionLastSaved())
	}
	infos, err := svc.List(ctx)
	if err != nil || len(infos) != 1 || infos[0].ID != d.ID().String() || infos[0].Cells != 5 {
		t.Fatalf("unexpected listing %+v (%v)", infos, err)
	}

	store := &countingStore{SnapshotStore: svc.Store()}
	other := NewService(store)
	loaded, err := other.Load(ctx, d.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == d {
		t.Fatalf("a second service should restore its own copy")
	}
	if loaded.Collection().Size() != 5 || loaded.Name() != "Sample" {
		t.Fatalf("unexpected restored dataset %s with %d cells", loaded.Name(), loaded.Collection().Size())
	}
	again, err := other.Load(ctx, d.ID())
	if err != nil || again != loaded {
		t.Fatalf("second load should return the registered dataset")
	}
	if store.loads != 1 {
		t.Fatalf("expected one store load, got %d", store.loads)
	}
}

func TestServiceConcurrentLoadsShareOneRestore(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	d, err := svc.Add(ctx, segmentedCollection(t, 3))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	other := NewService(&countingStore{SnapshotStore: svc.Store()})

	var wg sync.WaitGroup
	results := make([]*Dataset, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = other.Load(ctx, d.ID())
		}()
	}
	wg.Wait()
	for i, r := range results {
		if r == nil || r != results[0] {
			t.Fatalf("load %d returned a different dataset", i)
		}
	}
	if other.Registry().Len() != 1 {
		t.Fatalf("expected one registered dataset, got %d", other.Registry().Len())
	}
}

func TestServiceLoadMissing(t *testing.T) {
	svc := NewInMemoryService()
	_, err := svc.Load(context.Background(), uuid.New())
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceValidateAndRepairPersist(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	d, err := svc.Add(ctx, segmentedCollection(t, 5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	report, err := svc.Validate(ctx, d.ID())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.OK {
		t.Fatalf("expected validation failure before repair")
	}
	res, err := svc.Repair(ctx, d.ID())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !res.OK || res.Repaired != 1 {
		t.Fatalf("unexpected repair result %+v", res)
	}

	fresh := NewService(svc.Store())
	report, err = fresh.Validate(ctx, d.ID())
	if err != nil {
		t.Fatalf("validate reloaded: %v", err)
	}
	if !report.OK {
		t.Fatalf("repair should have been persisted:\n%s", report)
	}
	reloaded, err := fresh.Load(ctx, d.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, n := range reloaded.Collection().Nuclei() {
		if idx, _ := n.LandmarkIndex(profile.LandmarkReferencePoint); idx != 3 {
			t.Fatalf("persisted RP %d, want 3", idx)
		}
	}
}

func TestServiceSaveChildPersistsRoot(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService()
	d, err := svc.Add(ctx, segmentedCollection(t, 3))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	child, err := d.AddChildCollection("Child", d.Collection().CellIDs()[:2])
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if err := svc.Save(ctx, child); err != nil {
		t.Fatalf("save child: %v", err)
	}
	snap, err := svc.Store().Load(ctx, d.ID().String())
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(snap.Dataset.Children) != 1 || snap.Dataset.Children[0].Name != "Child" {
		t.Fatalf("saving a child should persist the whole tree")
	}
}

func TestServiceImportAndDelete(t *testing.T) {
	ctx := context.Background()
	src := newRootFromPopulation(t, newPopulation(t, "Imported", 100, 100))
	snap, err := SnapshotOf(src)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	svc := NewInMemoryService()
	d, err := svc.Import(ctx, snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := svc.Import(ctx, snap); err == nil {
		t.Fatalf("importing a loaded dataset twice should fail")
	}
	child, err := d.AddChildCollection("Child", d.Collection().CellIDs()[:1])
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if err := svc.Delete(ctx, child.ID()); err == nil {
		t.Fatalf("deleting a child id should not succeed")
	}
	if _, err := svc.Registry().Dataset(child.ID()); err != nil {
		t.Fatalf("child should stay loaded")
	}

	if err := svc.Delete(ctx, d.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if svc.Registry().Len() != 0 {
		t.Fatalf("delete should unload the tree, %d left", svc.Registry().Len())
	}
	var nf domain.ErrNotFound
	if err := svc.Delete(ctx, d.ID()); !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
