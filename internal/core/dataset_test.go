package core

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

func TestAddChildCollectionNamesAreUnique(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100, 100, 100))
	ids := d.Collection().CellIDs()

	tests := []struct {
		name string
		want string
	}{
		{"Sample_1", "Sample_1"},
		{"Sample_1", "Sample_1_1"},
		{"Sample", "Sample_2"},
		{"Other", "Other"},
	}
	for _, tc := range tests {
		child, err := d.AddChildCollection(tc.name, ids[:1])
		if err != nil {
			t.Fatalf("add %s: %v", tc.name, err)
		}
		if child.Name() != tc.want {
			t.Fatalf("child named %q, want %q", child.Name(), tc.want)
		}
		if child.IsRoot() || child.ParentID() != d.ID() {
			t.Fatalf("child %s should point at its parent", child.Name())
		}
		if _, err := d.Registry().Dataset(child.ID()); err != nil {
			t.Fatalf("child %s not registered: %v", child.Name(), err)
		}
	}
	if d.ChildCount() != len(tests) {
		t.Fatalf("expected %d children, got %d", len(tests), d.ChildCount())
	}
}

func TestAddChildCollectionRejectsForeignCell(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100))
	if _, err := d.AddChildCollection("Bad", []uuid.UUID{uuid.New()}); !errors.Is(err, domain.ErrNotInParent) {
		t.Fatalf("expected ErrNotInParent, got %v", err)
	}
	if d.HasChildren() {
		t.Fatalf("failed add should not attach a child")
	}
}

func TestNestedChildrenAndRoot(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100, 100, 100))
	ids := d.Collection().CellIDs()
	child, err := d.AddChildCollection("Child", ids[:2])
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	grandchild, err := child.AddChildCollection("Grandchild", ids[:1])
	if err != nil {
		t.Fatalf("grandchild: %v", err)
	}
	if _, err := child.AddChildCollection("Outside", ids[2:]); !errors.Is(err, domain.ErrNotInParent) {
		t.Fatalf("grandchild must be a subset of its parent, got %v", err)
	}
	root, err := grandchild.Root()
	if err != nil || root != d {
		t.Fatalf("expected root %s, got %v (%v)", d.ID(), root, err)
	}
	if !slices.Equal(d.AllChildIDs(), []uuid.UUID{child.ID(), grandchild.ID()}) {
		t.Fatalf("unexpected descendants %v", d.AllChildIDs())
	}
	if !d.HasAnyChild(grandchild.ID()) || d.HasDirectChild(grandchild.ID()) {
		t.Fatalf("grandchild should be a descendant but not a direct child")
	}

	if err := d.DeleteChild(child.ID()); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if _, err := d.Registry().Dataset(grandchild.ID()); err == nil {
		t.Fatalf("deleting a child should unregister its descendants")
	}
	var nf domain.ErrNotFound
	if err := d.DeleteChild(child.ID()); !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestClusterGroups(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100, 100, 100, 100))
	ids := d.Collection().CellIDs()
	left, err := d.AddChildCollection("Cluster_1", ids[:2])
	if err != nil {
		t.Fatalf("left: %v", err)
	}
	right, err := d.AddChildCollection("Cluster_2", ids[2:])
	if err != nil {
		t.Fatalf("right: %v", err)
	}

	first := NewClusterGroup(uuid.New(), "", left.ID(), right.ID())
	if err := d.AddClusterGroup(first); err != nil {
		t.Fatalf("add group: %v", err)
	}
	if first.Name != "ClusterGroup_1" {
		t.Fatalf("expected default name ClusterGroup_1, got %q", first.Name)
	}
	second := NewClusterGroup(uuid.New(), "", left.ID())
	if err := d.AddClusterGroup(second); err != nil {
		t.Fatalf("add second group: %v", err)
	}
	if second.Name != "ClusterGroup_2" || d.MaxClusterGroupNumber() != 2 {
		t.Fatalf("expected ClusterGroup_2, got %q", second.Name)
	}
	if err := d.AddClusterGroup(NewClusterGroup(uuid.New(), "x", uuid.New())); err == nil {
		t.Fatalf("expected error for group over unknown child")
	}

	pc1 := PrincipalComponentMeasurement(1, second.ID)
	for _, c := range d.Collection().Cells() {
		c.SetMeasurement(pc1, 0.5)
		c.PrimaryNucleus().SetMeasurement(pc1, 0.25)
	}

	// Deleting the only member of the second group deletes the group too.
	if err := d.DeleteChild(left.ID()); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if d.HasCluster(second.ID) {
		t.Fatalf("emptied group should be removed")
	}
	g, err := d.ClusterGroup(first.ID)
	if err != nil {
		t.Fatalf("first group: %v", err)
	}
	if !slices.Equal(g.DatasetIDs(), []uuid.UUID{right.ID()}) {
		t.Fatalf("first group should keep only the surviving child, got %v", g.DatasetIDs())
	}
	for _, c := range d.Collection().Cells() {
		if _, err := c.Measurement(pc1, ScalePixels); err == nil {
			t.Fatalf("group measurement should be cleared from cell %s", c.ID())
		}
		if c.PrimaryNucleus().HasMeasurement(pc1) {
			t.Fatalf("group measurement should be cleared from nucleus %s", c.PrimaryNucleus().ID())
		}
	}

	if err := d.DeleteClusterGroup(first.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if d.HasClusterGroups() || d.HasChildren() {
		t.Fatalf("deleting a group should delete its child datasets")
	}
}

func TestRefreshClusterGroups(t *testing.T) {
	d := newRootFromPopulation(t, newPopulation(t, "Sample", 100, 100))
	child, err := d.AddChildCollection("Only", d.Collection().CellIDs())
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	g := NewClusterGroup(uuid.New(), "Named", child.ID())
	if err := d.AddClusterGroup(g); err != nil {
		t.Fatalf("add group: %v", err)
	}
	if n := d.RefreshClusterGroups(); n != 0 {
		t.Fatalf("nothing to refresh, removed %d", n)
	}
	d.mu.Lock()
	d.children = nil
	d.mu.Unlock()
	if n := d.RefreshClusterGroups(); n != 1 {
		t.Fatalf("expected one emptied group, got %d", n)
	}
}

func mergeFixture(t *testing.T) (merged, a, b *Dataset) {
	t.Helper()
	ac := newPopulation(t, "A", 100, 100)
	bc := newPopulation(t, "B", 100, 100, 100)
	a = newRootFromPopulation(t, ac)
	b = newRootFromPopulation(t, bc)
	mc, err := NewRealCollection(uuid.New(), "Merged", testRuleSet())
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if err := mc.AddAll(append(ac.Cells(), bc.Cells()...)); err != nil {
		t.Fatalf("add: %v", err)
	}
	merged = newRootFromPopulation(t, mc)
	return merged, a, b
}

func TestMergeSources(t *testing.T) {
	merged, a, b := mergeFixture(t)
	wa, err := merged.AddMergeSource(a)
	if err != nil {
		t.Fatalf("merge source a: %v", err)
	}
	wb, err := merged.AddMergeSource(b)
	if err != nil {
		t.Fatalf("merge source b: %v", err)
	}
	if wa.ID() == a.ID() || wb.ID() == b.ID() {
		t.Fatalf("merge source wrappers should get fresh ids")
	}
	if wa.Name() != "A" || wa.Collection().Size() != 2 || wb.Collection().Size() != 3 {
		t.Fatalf("wrapper should mirror the source name and cells")
	}
	if !slices.Equal(merged.SourceDatasetIDs(), []uuid.UUID{a.ID(), b.ID()}) {
		t.Fatalf("unexpected source ids %v", merged.SourceDatasetIDs())
	}
	if !merged.HasMergeSource(wa.ID()) || merged.HasMergeSource(a.ID()) {
		t.Fatalf("merge sources are tracked by wrapper id")
	}
	if _, err := merged.Registry().Dataset(wa.ID()); err != nil {
		t.Fatalf("wrapper not registered: %v", err)
	}

	if err := merged.DeleteMergeSource(wa.ID()); err != nil {
		t.Fatalf("delete merge source: %v", err)
	}
	if _, err := merged.Registry().Dataset(wa.ID()); err == nil {
		t.Fatalf("deleted wrapper should be unregistered")
	}
	if !slices.Equal(merged.SourceDatasetIDs(), []uuid.UUID{b.ID()}) {
		t.Fatalf("source ids should follow deletion, got %v", merged.SourceDatasetIDs())
	}
}

func TestNestedMergeSources(t *testing.T) {
	inner, a, b := mergeFixture(t)
	if _, err := inner.AddMergeSource(a); err != nil {
		t.Fatalf("inner a: %v", err)
	}
	if _, err := inner.AddMergeSource(b); err != nil {
		t.Fatalf("inner b: %v", err)
	}
	oc, err := NewRealCollection(uuid.New(), "Outer", testRuleSet())
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if err := oc.AddAll(inner.Collection().Cells()); err != nil {
		t.Fatalf("add: %v", err)
	}
	outer := newRootFromPopulation(t, oc)
	w, err := outer.AddMergeSource(inner)
	if err != nil {
		t.Fatalf("outer: %v", err)
	}
	if len(w.MergeSources()) != 2 {
		t.Fatalf("nested merge sources should be copied, got %d", len(w.MergeSources()))
	}
	if got := len(outer.AllMergeSources()); got != 2 {
		t.Fatalf("expected 2 leaf merge sources, got %d", got)
	}
	for _, leaf := range outer.AllMergeSources() {
		if !outer.HasMergeSource(leaf.ID()) {
			t.Fatalf("leaf %s should be reachable", leaf.ID())
		}
	}
}

func TestDuplicateRootIsIndependent(t *testing.T) {
	d, _ := segmentedDataset(t, 3)
	child, err := d.AddChildCollection("Child", d.Collection().CellIDs()[:2])
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	d.SetOption("scale", "0.5")
	d.SetColour("#ff0000")

	dup, err := d.Duplicate()
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.ID() != d.ID() || dup.Registry() == d.Registry() {
		t.Fatalf("root duplicate keeps its id in a fresh registry")
	}
	if dup.ChildCount() != 1 || dup.Children()[0].Name() != child.Name() {
		t.Fatalf("children should be copied")
	}
	if v, _ := dup.Option("scale"); v != "0.5" || dup.Colour() != "#ff0000" {
		t.Fatalf("options and colour should be copied")
	}
	dc, err := dup.Children()[0].Collection().Cell(child.Collection().CellIDs()[0])
	if err != nil {
		t.Fatalf("child cell in duplicate: %v", err)
	}
	oc, _ := d.Collection().Cell(dc.ID())
	if dc == oc {
		t.Fatalf("duplicate should deep copy cells")
	}

	if err := dc.PrimaryNucleus().SetLandmark(profile.LandmarkReferencePoint, 50); err != nil {
		t.Fatalf("set landmark: %v", err)
	}
	if idx, _ := oc.PrimaryNucleus().LandmarkIndex(profile.LandmarkReferencePoint); idx != 3 {
		t.Fatalf("editing the duplicate changed the original")
	}
	dup.SetName("Renamed")
	if d.Name() != "Sample" {
		t.Fatalf("renaming the duplicate renamed the original")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	rc := newPopulation(t, "Sample", 100)
	d, err := NewRootDataset(reg, rc)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if err := reg.Register(d); err != nil {
		t.Fatalf("re-registering the same dataset should be a no-op: %v", err)
	}
	other := newDataset(reg, rc.Duplicate(), uuid.Nil)
	if err := reg.Register(other); err == nil {
		t.Fatalf("expected error registering a different dataset under a taken id")
	}
	if reg.Len() != 1 || !slices.Equal(reg.IDs(), []uuid.UUID{d.ID()}) {
		t.Fatalf("unexpected registry contents %v", reg.IDs())
	}
	reg.Unregister(d.ID())
	var nf domain.ErrNotFound
	if _, err := reg.Dataset(d.ID()); !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := NewRootDataset(nil, rc); !errors.Is(err, domain.ErrComponentCreation) {
		t.Fatalf("expected ErrComponentCreation, got %v", err)
	}
}
