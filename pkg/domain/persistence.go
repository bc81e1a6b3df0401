package domain

import "context"

// SnapshotStore persists root dataset snapshots keyed by dataset id.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
