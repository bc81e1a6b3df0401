package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"nucleicore/pkg/domain"
)

func snapshot(id, name string, cells int) domain.Snapshot {
	rec := domain.DatasetRecord{ID: id, Name: name}
	for i := 0; i < cells; i++ {
		rec.Cells = append(rec.Cells, domain.CellRecord{ID: name})
	}
	return domain.Snapshot{Version: domain.SnapshotVersion, SavedAt: time.Unix(1700000000, 0).UTC(), Dataset: rec}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.Save(ctx, snapshot("b", "Beta", 2)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, snapshot("a", "Alpha", 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Dataset.Name != "Beta" || len(got.Dataset.Cells) != 2 {
		t.Fatalf("unexpected snapshot %+v", got.Dataset)
	}
	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "a" || infos[1].Cells != 2 {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	snap := snapshot("a", "Alpha", 1)
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Dataset.Cells[0].ID = "mutated"
	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Dataset.Cells[0].ID != "Alpha" {
		t.Fatalf("store shared state with caller: %+v", got.Dataset.Cells)
	}
}

func TestStoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	var nf domain.ErrNotFound
	if _, err := s.Load(ctx, "missing"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Save(ctx, snapshot("a", "Alpha", 0)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.As(err, &nf) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if err := s.Save(ctx, domain.Snapshot{}); err == nil {
		t.Fatalf("expected error saving snapshot without id")
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewStore().Save(ctx, snapshot("a", "Alpha", 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
