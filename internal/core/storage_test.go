package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"nucleicore/internal/infra/persistence/memory"
	"nucleicore/internal/infra/persistence/sqlite"
)

// helper to unset and restore env vars
func withEnv(key, value string, fn func()) {
	orig, had := os.LookupEnv(key)
	if value == "" {
		_ = os.Unsetenv(key)
	} else {
		_ = os.Setenv(key, value)
	}
	defer func() {
		if had {
			_ = os.Setenv(key, orig)
		} else {
			_ = os.Unsetenv(key)
		}
	}()
	fn()
}

func TestOpenSnapshotStoreFromEnv_DefaultSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.db")
	withEnv("NUCLEICORE_STORAGE_DRIVER", "", func() {
		withEnv("NUCLEICORE_SQLITE_PATH", path, func() {
			store, err := OpenSnapshotStoreFromEnv()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer func() { _ = store.Close() }()
			s, ok := store.(*sqlite.Store)
			if !ok {
				t.Fatalf("expected *sqlite.Store, got %T", store)
			}
			if s.Path() != path {
				t.Fatalf("expected path %s, got %s", path, s.Path())
			}
		})
	})
}

func TestOpenSnapshotStoreFromEnv_Memory(t *testing.T) {
	withEnv("NUCLEICORE_STORAGE_DRIVER", "memory", func() {
		store, err := OpenSnapshotStoreFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("expected *memory.Store, got %T", store)
		}
		list, err := store.List(context.Background())
		if err != nil || len(list) != 0 {
			t.Fatalf("expected empty store, got %v (%v)", list, err)
		}
	})
}

func TestOpenSnapshotStore_Unknown(t *testing.T) {
	if _, err := OpenSnapshotStore("cassandra", "", ""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenSnapshotStore_PostgresBadDSN(t *testing.T) {
	if _, err := OpenSnapshotStore(StoragePostgres, "", "postgres://invalid host:1/db"); err == nil {
		t.Fatalf("expected error for unreachable postgres")
	}
}
