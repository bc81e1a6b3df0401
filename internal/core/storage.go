package core

import (
	"fmt"
	"os"

	"nucleicore/internal/infra/persistence/memory"
	"nucleicore/internal/infra/persistence/postgres"
	"nucleicore/internal/infra/persistence/sqlite"
	"nucleicore/pkg/domain"
)

// StorageDriver identifies a concrete snapshot storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// SnapshotStore is the persistence port for root dataset snapshots.
type SnapshotStore = domain.SnapshotStore

// OpenSnapshotStore opens the named backend. An empty driver selects sqlite;
// an empty sqlite path selects the backend's default file.
func OpenSnapshotStore(driver StorageDriver, sqlitePath, dsn string) (SnapshotStore, error) {
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(sqlitePath)
	case StoragePostgres:
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenSnapshotStoreFromEnv selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	NUCLEICORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	NUCLEICORE_SQLITE_PATH: path to sqlite file (default ./nucleicore.db)
//	NUCLEICORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenSnapshotStoreFromEnv() (SnapshotStore, error) {
	return OpenSnapshotStore(
		StorageDriver(os.Getenv("NUCLEICORE_STORAGE_DRIVER")),
		os.Getenv("NUCLEICORE_SQLITE_PATH"),
		os.Getenv("NUCLEICORE_POSTGRES_DSN"),
	)
}
