package core

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

func TestSnapshotRoundTrip(t *testing.T) {
	d, _ := segmentedDataset(t, 3)
	ids := d.Collection().CellIDs()
	child, err := d.AddChildCollection("Child", ids[:3])
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if err := d.AddClusterGroup(NewClusterGroup(uuid.New(), "", child.ID())); err != nil {
		t.Fatalf("cluster group: %v", err)
	}
	if err := d.Collection().ProfileCollection().SetLandmark(profile.LandmarkOrientationPoint, 12); err != nil {
		t.Fatalf("landmark: %v", err)
	}
	d.SetOption("window", "0.05")
	sc, err := NewRealCollection(uuid.New(), "Source", testRuleSet())
	if err != nil {
		t.Fatalf("source collection: %v", err)
	}
	for _, id := range ids[3:] {
		cell, err := d.Collection().Cell(id)
		if err != nil {
			t.Fatalf("cell: %v", err)
		}
		if err := sc.Add(cell); err != nil {
			t.Fatalf("source add: %v", err)
		}
	}
	source := newRootFromPopulation(t, sc)
	wrapper, err := d.AddMergeSource(source)
	if err != nil {
		t.Fatalf("merge source: %v", err)
	}
	pc := d.Collection().ProfileCollection()
	want := make(map[int]profile.Profile)
	for _, q := range profile.AggregateQuantiles {
		p, err := pc.Profile(profile.TypeAngle, profile.LandmarkReferencePoint, q)
		if err != nil {
			t.Fatalf("profile q%d: %v", q, err)
		}
		want[q] = p
	}

	snap, err := SnapshotOf(d)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded domain.Snapshot
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	restored, err := Restore(NewRegistry(), decoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ID() != d.ID() || restored.Name() != d.Name() {
		t.Fatalf("restored identity %s/%s, want %s/%s", restored.ID(), restored.Name(), d.ID(), d.Name())
	}
	if !slices.Equal(restored.Collection().CellIDs(), ids) {
		t.Fatalf("restored cells differ")
	}
	if !restored.Collection().RuleSet().Equal(d.Collection().RuleSet()) {
		t.Fatalf("restored rule set differs")
	}
	rpc := restored.Collection().ProfileCollection()
	if !slices.Equal(rpc.SegmentIDs(), testSegmentIDs) {
		t.Fatalf("restored segment ids %v", rpc.SegmentIDs())
	}
	if idx, err := rpc.LandmarkIndex(profile.LandmarkOrientationPoint); err != nil || idx != 12 {
		t.Fatalf("restored landmark %d (%v), want 12", idx, err)
	}
	if !rpc.isCached(profile.TypeAngle, profile.LandmarkReferencePoint, profile.Median) {
		t.Fatalf("restore should recalculate aggregate profiles")
	}
	for _, q := range profile.AggregateQuantiles {
		got, err := rpc.Profile(profile.TypeAngle, profile.LandmarkReferencePoint, q)
		if err != nil {
			t.Fatalf("restored profile q%d: %v", q, err)
		}
		if !got.Equal(want[q]) {
			t.Fatalf("restored q%d profile differs", q)
		}
	}
	if !slices.Equal(restored.MergeSourceIDs(), []uuid.UUID{wrapper.ID()}) {
		t.Fatalf("restored merge sources %v, want %v", restored.MergeSourceIDs(), wrapper.ID())
	}
	if !slices.Equal(restored.SourceDatasetIDs(), []uuid.UUID{source.ID()}) {
		t.Fatalf("restored source ids %v, want %v", restored.SourceDatasetIDs(), source.ID())
	}
	if ms, err := restored.MergeSource(wrapper.ID()); err != nil || ms.Collection().Size() != len(ids)-3 {
		t.Fatalf("restored merge source: %v", err)
	}
	if restored.ChildCount() != 1 || restored.Children()[0].ID() != child.ID() {
		t.Fatalf("restored children differ")
	}
	if restored.Children()[0].Collection().Size() != 3 {
		t.Fatalf("restored child should hold 3 cells")
	}
	groups := restored.ClusterGroups()
	if len(groups) != 1 || groups[0].Name != "ClusterGroup_1" || !groups[0].HasDataset(child.ID()) {
		t.Fatalf("restored cluster groups differ: %+v", groups)
	}
	if v, _ := restored.Option("window"); v != "0.05" {
		t.Fatalf("restored option %q", v)
	}
	cell, err := restored.Collection().Cell(ids[0])
	if err != nil {
		t.Fatalf("cell: %v", err)
	}
	if idx, _ := cell.PrimaryNucleus().LandmarkIndex(profile.LandmarkReferencePoint); idx != 3 {
		t.Fatalf("restored nucleus RP %d, want 3", idx)
	}
	if !slices.Equal(profile.SegmentIDs(cell.PrimaryNucleus().Segments()), testSegmentIDs) {
		t.Fatalf("restored nucleus segments differ")
	}
}

func TestSnapshotRejectsNonRoot(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100, 100))
	child, err := d.AddChildCollection("Child", d.Collection().CellIDs()[:1])
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if _, err := SnapshotOf(child); !errors.Is(err, domain.ErrNotRoot) {
		t.Fatalf("expected ErrNotRoot, got %v", err)
	}
}

func TestCheckSnapshotVersion(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{domain.SnapshotVersion, false},
		{"0.0.1", false},
		{"99.0.0", true},
		{"not-a-version", true},
	}
	for _, tc := range tests {
		err := CheckSnapshotVersion(tc.version)
		if (err != nil) != tc.wantErr {
			t.Fatalf("CheckSnapshotVersion(%q) = %v, wantErr %v", tc.version, err, tc.wantErr)
		}
	}
	var uv domain.UnsupportedVersionError
	if err := CheckSnapshotVersion("99.0.0"); !errors.As(err, &uv) || uv.Supported != domain.SnapshotVersion {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
}

func TestRestoreNewerVersionLeavesRegistryEmpty(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100))
	snap, err := SnapshotOf(d)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Version = "99.0.0"
	reg := NewRegistry()
	if _, err := Restore(reg, snap); err == nil {
		t.Fatalf("expected version error")
	}
	if reg.Len() != 0 {
		t.Fatalf("failed restore should not register anything")
	}
}
