package sqlite

import (
	"context"
	"errors"
	"path/filepath"
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

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.Save(ctx, snapshot("ds-1", "Sample", 3)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, err := reloaded.Load(ctx, "ds-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Dataset.Name != "Sample" || len(got.Dataset.Cells) != 3 {
		t.Fatalf("unexpected snapshot %+v", got.Dataset)
	}
	infos, err := reloaded.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Cells != 3 || !infos[0].SavedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestSQLiteStoreUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Save(ctx, snapshot("ds-1", "First", 1)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, snapshot("ds-1", "Renamed", 2)); err != nil {
		t.Fatalf("resave: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected upsert to keep one row, got %d", count)
	}
	got, err := store.Load(ctx, "ds-1")
	if err != nil || got.Dataset.Name != "Renamed" {
		t.Fatalf("expected renamed snapshot, got %+v err=%v", got.Dataset, err)
	}
	if err := store.Delete(ctx, "ds-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var nf domain.ErrNotFound
	if err := store.Delete(ctx, "ds-1"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Load(ctx, "ds-1"); !errors.As(err, &nf) {
		t.Fatalf("expected not found on load, got %v", err)
	}
}

func TestSQLiteStoreDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := NewStore("")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != DefaultPath {
		t.Fatalf("expected default path, got %s", store.Path())
	}
}
