package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nucleicore/internal/blob"
	"nucleicore/pkg/domain"
)

// ExportPrefix is the blob key prefix for dataset exports.
const ExportPrefix = "datasets/"

const exportContentType = "application/json"

// ExportKey returns the blob key for the export of dataset id.
func ExportKey(id uuid.UUID) string { return ExportPrefix + id.String() + ".json" }

// Exporter writes root dataset snapshots to a blob store as JSON documents and
// restores them.
type Exporter struct {
	blobs    blob.Store
	settings settings
}

// NewExporter constructs an exporter over store.
func NewExporter(store blob.Store, opts ...Option) *Exporter {
	return &Exporter{blobs: store, settings: newSettings(opts)}
}

// Export writes the snapshot of d's root, replacing any earlier export.
func (e *Exporter) Export(ctx context.Context, d *Dataset) (blob.Info, error) {
	start := time.Now()
	info, err := e.export(ctx, d)
	e.settings.metrics.Observe(ctx, "export_dataset", err == nil, time.Since(start))
	return info, err
}

func (e *Exporter) export(ctx context.Context, d *Dataset) (blob.Info, error) {
	root, err := d.Root()
	if err != nil {
		return blob.Info{}, err
	}
	snap, err := SnapshotOf(root)
	if err != nil {
		return blob.Info{}, err
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode export %s: %w", root.ID(), err)
	}
	meta := snap.Info()
	info, err := e.blobs.Put(ctx, ExportKey(root.ID()), bytes.NewReader(payload), blob.PutOptions{
		ContentType: exportContentType,
		Overwrite:   true,
		Metadata: map[string]string{
			"name":     meta.Name,
			"version":  meta.Version,
			"cells":    strconv.Itoa(meta.Cells),
			"saved-at": meta.SavedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("export %s: %w", root.ID(), err)
	}
	e.settings.logger.Info("exported dataset",
		slog.String("dataset", root.ID().String()),
		slog.String("key", info.Key),
		slog.String("driver", string(e.blobs.Driver())),
		slog.Int64("bytes", info.Size))
	return info, nil
}

// Fetch reads and decodes the export stored under key.
func (e *Exporter) Fetch(ctx context.Context, key string) (domain.Snapshot, error) {
	_, rc, err := e.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return domain.Snapshot{}, domain.ErrNotFound{Entity: domain.EntitySnapshot, ID: key}
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("fetch export %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var snap domain.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode export %s: %w", key, err)
	}
	return snap, nil
}

// Import restores the export stored under key into reg.
func (e *Exporter) Import(ctx context.Context, reg *Registry, key string) (*Dataset, error) {
	snap, err := e.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	d, err := Restore(reg, snap, e.settings.options()...)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", key, err)
	}
	return d, nil
}

// List summarises the stored exports from their blob metadata. Exports
// without readable metadata are reported with the key-derived id only.
func (e *Exporter) List(ctx context.Context) ([]domain.SnapshotInfo, error) {
	infos, err := e.blobs.List(ctx, ExportPrefix)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	out := make([]domain.SnapshotInfo, 0, len(infos))
	for _, bi := range infos {
		id, ok := strings.CutSuffix(strings.TrimPrefix(bi.Key, ExportPrefix), ".json")
		if !ok {
			continue
		}
		md := bi.Metadata
		if md == nil {
			if head, err := e.blobs.Head(ctx, bi.Key); err == nil {
				md = head.Metadata
			}
		}
		info := domain.SnapshotInfo{ID: id, Name: md["name"], Version: md["version"], SavedAt: bi.LastModified}
		info.Cells, _ = strconv.Atoi(md["cells"])
		if t, err := time.Parse(time.RFC3339Nano, md["saved-at"]); err == nil {
			info.SavedAt = t
		}
		out = append(out, info)
	}
	return out, nil
}

// URL returns a time-limited download link for the export of id.
func (e *Exporter) URL(ctx context.Context, id uuid.UUID, expiry time.Duration) (string, error) {
	return e.blobs.PresignURL(ctx, ExportKey(id), blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}
