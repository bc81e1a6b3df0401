package core

import (
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
)

var clusterGroupName = regexp.MustCompile(`^` + ClusterGroupPrefix + `_(\d+)$`)

// Dataset is a node in an analysis tree. It holds a collection, the child
// datasets derived from it, the merge sources it was built from and the
// cluster groups that produced some of its children. A root dataset owns a
// real collection; every other dataset holds a virtual subset of its parent.
type Dataset struct {
	mu             sync.RWMutex
	registry       *Registry
	collection     Collection
	parentID       uuid.UUID
	children       []*Dataset
	mergeSources   []*Dataset
	sourceIDs      []uuid.UUID
	clusterGroups  []*ClusterGroup
	options        map[string]string
	colour         string
	versionCreated string
	versionSaved   string
}

// NewRootDataset wraps a real collection in a root dataset and registers it.
func NewRootDataset(reg *Registry, c *RealCollection) (*Dataset, error) {
	if reg == nil || c == nil {
		return nil, fmt.Errorf("root dataset: %w", domain.ErrComponentCreation)
	}
	d := newDataset(reg, c, uuid.Nil)
	if err := reg.Register(d); err != nil {
		return nil, err
	}
	return d, nil
}

func newDataset(reg *Registry, c Collection, parentID uuid.UUID) *Dataset {
	return &Dataset{
		registry:       reg,
		collection:     c,
		parentID:       parentID,
		options:        make(map[string]string),
		versionCreated: domain.SnapshotVersion,
		versionSaved:   domain.SnapshotVersion,
	}
}

func (d *Dataset) ID() uuid.UUID          { return d.collection.ID() }
func (d *Dataset) Name() string           { return d.collection.Name() }
func (d *Dataset) SetName(name string)    { d.collection.SetName(name) }
func (d *Dataset) Collection() Collection { return d.collection }
func (d *Dataset) Registry() *Registry    { return d.registry }
func (d *Dataset) IsRoot() bool           { return d.parentID == uuid.Nil }
func (d *Dataset) ParentID() uuid.UUID    { return d.parentID }
func (d *Dataset) VersionCreated() string { return d.versionCreated }

// VersionLastSaved returns the snapshot format version last written for d.
func (d *Dataset) VersionLastSaved() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.versionSaved
}

func (d *Dataset) markSaved(version string) {
	d.mu.Lock()
	d.versionSaved = version
	d.mu.Unlock()
}

func (d *Dataset) settings() settings { return d.collection.base().settings }

func (d *Dataset) logger() *slog.Logger { return d.settings().logger }

// Parent resolves the parent dataset.
func (d *Dataset) Parent() (*Dataset, error) {
	if d.IsRoot() {
		return nil, fmt.Errorf("dataset %s: %w", d.ID(), domain.ErrNotRoot)
	}
	return d.registry.Dataset(d.parentID)
}

// Root walks parent links to the root dataset.
func (d *Dataset) Root() (*Dataset, error) {
	cur := d
	for !cur.IsRoot() {
		p, err := cur.Parent()
		if err != nil {
			return nil, err
		}
		cur = p
	}
	return cur, nil
}

func (d *Dataset) Colour() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.colour
}

func (d *Dataset) SetColour(c string) {
	d.mu.Lock()
	d.colour = c
	d.mu.Unlock()
}

// Option returns an analysis option, falling back to the parent dataset when
// it is not set here.
func (d *Dataset) Option(key string) (string, bool) {
	d.mu.RLock()
	v, ok := d.options[key]
	d.mu.RUnlock()
	if ok {
		return v, true
	}
	if p, err := d.Parent(); err == nil {
		return p.Option(key)
	}
	return "", false
}

// SetOption records an analysis option on this dataset.
func (d *Dataset) SetOption(key, value string) {
	d.mu.Lock()
	d.options[key] = value
	d.mu.Unlock()
}

// Options returns the effective options, with own values overriding the
// parent's.
func (d *Dataset) Options() map[string]string {
	out := make(map[string]string)
	if p, err := d.Parent(); err == nil {
		maps.Copy(out, p.Options())
	}
	d.mu.RLock()
	maps.Copy(out, d.options)
	d.mu.RUnlock()
	return out
}

// AddChildCollection creates a child dataset over the given cells of this
// dataset. The child inherits the parent's segmentation and landmarks and
// has its aggregate profiles calculated.
func (d *Dataset) AddChildCollection(name string, cellIDs []uuid.UUID) (*Dataset, error) {
	vc, err := NewVirtualCollection(d.registry, d.ID(), uuid.New(), name, d.settings().options()...)
	if err != nil {
		return nil, err
	}
	for _, id := range cellIDs {
		if err := vc.AddID(id); err != nil {
			return nil, err
		}
	}
	if vc.Size() > 0 {
		if err := d.collection.ProfileCollection().CopySegmentsAndLandmarksTo(vc.ProfileCollection()); err != nil {
			return nil, fmt.Errorf("copy segmentation to %s: %w", name, err)
		}
		if err := vc.ProfileCollection().CalculateProfiles(); err != nil {
			return nil, fmt.Errorf("profile child %s: %w", name, err)
		}
	}
	child := newDataset(d.registry, vc, d.ID())
	if err := d.AddChildDataset(child); err != nil {
		return nil, err
	}
	return child, nil
}

// AddChildDataset attaches a dataset whose collection is a virtual subset of
// this dataset. A name already used by a sibling or by this dataset gets the
// first free numeric suffix.
func (d *Dataset) AddChildDataset(child *Dataset) error {
	vc, ok := child.collection.(*VirtualCollection)
	if !ok || vc.parentID != d.ID() {
		return fmt.Errorf("child %s of %s: %w", child.ID(), d.ID(), domain.ErrNotInParent)
	}
	d.mu.Lock()
	child.SetName(d.chooseSuffixLocked(child.Name()))
	child.parentID = d.ID()
	d.children = append(d.children, child)
	d.mu.Unlock()
	return registerTree(d.registry, child)
}

func (d *Dataset) chooseSuffixLocked(name string) string {
	taken := map[string]bool{d.Name(): true}
	for _, c := range d.children {
		taken[c.Name()] = true
	}
	if !taken[name] {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// DeleteChild removes a direct child and everything below it. The child is
// dropped from any cluster group; groups left empty are deleted and their
// measurements cleared.
func (d *Dataset) DeleteChild(id uuid.UUID) error {
	d.mu.Lock()
	idx := slices.IndexFunc(d.children, func(c *Dataset) bool { return c.ID() == id })
	if idx < 0 {
		d.mu.Unlock()
		return domain.ErrNotFound{Entity: domain.EntityDataset, ID: id.String()}
	}
	child := d.children[idx]
	d.children = slices.Delete(d.children, idx, idx+1)
	var emptied []*ClusterGroup
	for _, g := range d.clusterGroups {
		if g.removeDataset(id) && g.Size() == 0 {
			emptied = append(emptied, g)
		}
	}
	d.clusterGroups = slices.DeleteFunc(d.clusterGroups, func(g *ClusterGroup) bool { return g.Size() == 0 })
	d.mu.Unlock()

	unregisterTree(d.registry, child)
	for _, g := range emptied {
		d.clearGroupMeasurements(g)
	}
	d.logger().Debug("deleted child dataset",
		slog.String("dataset", d.ID().String()),
		slog.String("child", id.String()))
	return nil
}

func (d *Dataset) clearGroupMeasurements(g *ClusterGroup) {
	cleared := 0
	for _, c := range d.collection.Cells() {
		cleared += c.ClearGroupMeasurements(g.ID)
	}
	d.collection.InvalidateStatistics()
	d.logger().Debug("cleared cluster group measurements",
		slog.String("group", g.ID.String()),
		slog.Int("values", cleared))
}

// Children returns the direct children.
func (d *Dataset) Children() []*Dataset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.children)
}

// AllChildren returns every descendant through child links, depth first.
func (d *Dataset) AllChildren() []*Dataset {
	var out []*Dataset
	for _, c := range d.Children() {
		out = append(out, c)
		out = append(out, c.AllChildren()...)
	}
	return out
}

func (d *Dataset) ChildIDs() []uuid.UUID    { return datasetIDs(d.Children()) }
func (d *Dataset) AllChildIDs() []uuid.UUID { return datasetIDs(d.AllChildren()) }

// Child returns the descendant with id.
func (d *Dataset) Child(id uuid.UUID) (*Dataset, error) {
	for _, c := range d.AllChildren() {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityDataset, ID: id.String()}
}

func (d *Dataset) ChildCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.children)
}

func (d *Dataset) HasChildren() bool { return d.ChildCount() > 0 }

func (d *Dataset) HasDirectChild(id uuid.UUID) bool {
	return slices.Contains(d.ChildIDs(), id)
}

func (d *Dataset) HasAnyChild(id uuid.UUID) bool {
	return slices.Contains(d.AllChildIDs(), id)
}

func datasetIDs(ds []*Dataset) []uuid.UUID {
	out := make([]uuid.UUID, len(ds))
	for i, c := range ds {
		out[i] = c.ID()
	}
	return out
}

// AddClusterGroup records a clustering run over direct children. An unnamed
// group gets the next ClusterGroup_<n> name.
func (d *Dataset) AddClusterGroup(g *ClusterGroup) error {
	for _, id := range g.datasetIDs {
		if !d.HasDirectChild(id) {
			return domain.ErrNotFound{Entity: domain.EntityDataset, ID: id.String()}
		}
	}
	if g.Name == "" {
		g.Name = fmt.Sprintf("%s_%d", ClusterGroupPrefix, d.MaxClusterGroupNumber()+1)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.ContainsFunc(d.clusterGroups, func(x *ClusterGroup) bool { return x.ID == g.ID }) {
		return fmt.Errorf("cluster group %s already present on %s", g.ID, d.ID())
	}
	d.clusterGroups = append(d.clusterGroups, g)
	return nil
}

// ClusterGroups returns copies of the cluster groups.
func (d *Dataset) ClusterGroups() []*ClusterGroup {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*ClusterGroup, len(d.clusterGroups))
	for i, g := range d.clusterGroups {
		out[i] = g.Clone()
	}
	return out
}

// ClusterGroup returns a copy of the group with id.
func (d *Dataset) ClusterGroup(id uuid.UUID) (*ClusterGroup, error) {
	for _, g := range d.ClusterGroups() {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityClusterGroup, ID: id.String()}
}

// HasCluster reports whether a cluster group with id is present.
func (d *Dataset) HasCluster(id uuid.UUID) bool {
	_, err := d.ClusterGroup(id)
	return err == nil
}

func (d *Dataset) HasClusterGroups() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clusterGroups) > 0
}

// ClusterIDs returns the ids of the child datasets that belong to any group.
func (d *Dataset) ClusterIDs() []uuid.UUID {
	var out []uuid.UUID
	for _, g := range d.ClusterGroups() {
		for _, id := range g.datasetIDs {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// MaxClusterGroupNumber returns the highest n among groups named
// ClusterGroup_<n>, or 0.
func (d *Dataset) MaxClusterGroupNumber() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	highest := 0
	for _, g := range d.clusterGroups {
		m := clusterGroupName.FindStringSubmatch(g.Name)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			highest = max(highest, n)
		}
	}
	return highest
}

// DeleteClusterGroup removes the group, deletes the child datasets it made and
// clears the group's measurements from the cells.
func (d *Dataset) DeleteClusterGroup(id uuid.UUID) error {
	d.mu.Lock()
	idx := slices.IndexFunc(d.clusterGroups, func(g *ClusterGroup) bool { return g.ID == id })
	if idx < 0 {
		d.mu.Unlock()
		return domain.ErrNotFound{Entity: domain.EntityClusterGroup, ID: id.String()}
	}
	g := d.clusterGroups[idx]
	d.clusterGroups = slices.Delete(d.clusterGroups, idx, idx+1)
	d.mu.Unlock()

	for _, childID := range g.datasetIDs {
		if !d.HasDirectChild(childID) {
			continue
		}
		if err := d.DeleteChild(childID); err != nil {
			return err
		}
	}
	d.clearGroupMeasurements(g)
	return nil
}

// DeleteClusterGroups removes every cluster group.
func (d *Dataset) DeleteClusterGroups() error {
	for _, g := range d.ClusterGroups() {
		if err := d.DeleteClusterGroup(g.ID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshClusterGroups drops ids of children that no longer exist and deletes
// groups left empty. It returns the number of groups deleted.
func (d *Dataset) RefreshClusterGroups() int {
	children := d.ChildIDs()
	d.mu.Lock()
	var emptied []*ClusterGroup
	for _, g := range d.clusterGroups {
		g.datasetIDs = slices.DeleteFunc(g.datasetIDs, func(id uuid.UUID) bool {
			return !slices.Contains(children, id)
		})
		if g.Size() == 0 {
			emptied = append(emptied, g)
		}
	}
	d.clusterGroups = slices.DeleteFunc(d.clusterGroups, func(g *ClusterGroup) bool { return g.Size() == 0 })
	d.mu.Unlock()
	for _, g := range emptied {
		d.clearGroupMeasurements(g)
	}
	return len(emptied)
}

// AddMergeSource records src as one of the datasets this dataset was merged
// from. A virtual copy of src over this dataset's cells is stored under a
// fresh id, with src's own merge sources added to it recursively.
func (d *Dataset) AddMergeSource(src *Dataset) (*Dataset, error) {
	vc, err := NewVirtualCollection(d.registry, d.ID(), uuid.New(), src.Name(), d.settings().options()...)
	if err != nil {
		return nil, err
	}
	for _, id := range src.collection.CellIDs() {
		if err := vc.AddID(id); err != nil {
			return nil, fmt.Errorf("merge source %s: %w", src.ID(), err)
		}
	}
	wrapper := newDataset(d.registry, vc, d.ID())
	wrapper.colour = src.Colour()
	src.mu.RLock()
	maps.Copy(wrapper.options, src.options)
	wrapper.versionCreated = src.versionCreated
	src.mu.RUnlock()
	if vc.Size() > 0 {
		if err := src.collection.ProfileCollection().CopySegmentsAndLandmarksTo(vc.ProfileCollection()); err != nil {
			return nil, fmt.Errorf("copy segmentation from merge source %s: %w", src.ID(), err)
		}
	}
	if err := d.registry.Register(wrapper); err != nil {
		return nil, err
	}
	for _, nested := range src.MergeSources() {
		if _, err := wrapper.AddMergeSource(nested); err != nil {
			unregisterTree(d.registry, wrapper)
			return nil, err
		}
	}
	d.mu.Lock()
	d.mergeSources = append(d.mergeSources, wrapper)
	d.sourceIDs = append(d.sourceIDs, src.ID())
	d.mu.Unlock()
	return wrapper, nil
}

// MergeSources returns the direct merge sources.
func (d *Dataset) MergeSources() []*Dataset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.mergeSources)
}

// MergeSource returns the direct merge source with id.
func (d *Dataset) MergeSource(id uuid.UUID) (*Dataset, error) {
	for _, m := range d.MergeSources() {
		if m.ID() == id {
			return m, nil
		}
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityDataset, ID: id.String()}
}

// AllMergeSources follows merge sources down to datasets that were not
// themselves merged.
func (d *Dataset) AllMergeSources() []*Dataset {
	var out []*Dataset
	for _, m := range d.MergeSources() {
		if m.HasMergeSources() {
			out = append(out, m.AllMergeSources()...)
			continue
		}
		out = append(out, m)
	}
	return out
}

func (d *Dataset) MergeSourceIDs() []uuid.UUID    { return datasetIDs(d.MergeSources()) }
func (d *Dataset) AllMergeSourceIDs() []uuid.UUID { return datasetIDs(d.AllMergeSources()) }

// SourceDatasetIDs returns the ids the merged datasets had before merging.
func (d *Dataset) SourceDatasetIDs() []uuid.UUID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.sourceIDs)
}

func (d *Dataset) HasMergeSources() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.mergeSources) > 0
}

// HasMergeSource reports whether id is a merge source at any depth.
func (d *Dataset) HasMergeSource(id uuid.UUID) bool {
	for _, m := range d.MergeSources() {
		if m.ID() == id || m.HasMergeSource(id) {
			return true
		}
	}
	return false
}

// DeleteMergeSource removes a direct merge source.
func (d *Dataset) DeleteMergeSource(id uuid.UUID) error {
	d.mu.Lock()
	idx := slices.IndexFunc(d.mergeSources, func(m *Dataset) bool { return m.ID() == id })
	if idx < 0 {
		d.mu.Unlock()
		return domain.ErrNotFound{Entity: domain.EntityDataset, ID: id.String()}
	}
	m := d.mergeSources[idx]
	d.mergeSources = slices.Delete(d.mergeSources, idx, idx+1)
	d.sourceIDs = slices.Delete(d.sourceIDs, idx, idx+1)
	d.mu.Unlock()
	unregisterTree(d.registry, m)
	return nil
}

// family returns d and every dataset reachable through children and merge
// sources.
func (d *Dataset) family() []*Dataset {
	out := []*Dataset{d}
	for _, c := range d.Children() {
		out = append(out, c.family()...)
	}
	for _, m := range d.MergeSources() {
		out = append(out, m.family()...)
	}
	return out
}

func registerTree(reg *Registry, d *Dataset) error {
	for _, x := range d.family() {
		if err := reg.Register(x); err != nil {
			return err
		}
	}
	return nil
}

func unregisterTree(reg *Registry, d *Dataset) {
	for _, x := range d.family() {
		reg.Unregister(x.ID())
	}
}

// Duplicate deep copies the dataset and everything below it. A root copy is
// registered in a fresh registry; a non-root copy shares this registry but is
// not registered.
func (d *Dataset) Duplicate() (*Dataset, error) {
	if !d.IsRoot() {
		return d.duplicateInto(d.registry), nil
	}
	reg := NewRegistry()
	out := d.duplicateInto(reg)
	if err := registerTree(reg, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dataset) duplicateInto(reg *Registry) *Dataset {
	out := newDataset(reg, d.collection.duplicate(reg), d.parentID)
	d.mu.RLock()
	defer d.mu.RUnlock()
	out.colour = d.colour
	out.options = maps.Clone(d.options)
	out.versionCreated = d.versionCreated
	out.versionSaved = d.versionSaved
	out.sourceIDs = slices.Clone(d.sourceIDs)
	for _, c := range d.children {
		out.children = append(out.children, c.duplicateInto(reg))
	}
	for _, m := range d.mergeSources {
		out.mergeSources = append(out.mergeSources, m.duplicateInto(reg))
	}
	for _, g := range d.clusterGroups {
		out.clusterGroups = append(out.clusterGroups, g.Clone())
	}
	return out
}
