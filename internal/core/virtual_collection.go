package core

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// VirtualCollection is a subset of its parent dataset's cells. It stores only
// cell ids and resolves the parent through a registry on every access, so a
// deleted parent leaves the collection empty rather than dangling.
type VirtualCollection struct {
	*collectionBase
	mu            sync.RWMutex
	ids           map[uuid.UUID]struct{}
	parentID      uuid.UUID
	registry      *Registry
	shellResults  map[uuid.UUID][]float64
	warpedSignals map[uuid.UUID]*Nucleus
}

var _ Collection = (*VirtualCollection)(nil)

// NewVirtualCollection creates an empty subset of the dataset parentID. The
// parent must be registered.
func NewVirtualCollection(reg *Registry, parentID, id uuid.UUID, name string, opts ...Option) (*VirtualCollection, error) {
	parent, err := reg.Dataset(parentID)
	if err != nil {
		return nil, err
	}
	c := &VirtualCollection{
		ids:           make(map[uuid.UUID]struct{}),
		parentID:      parentID,
		registry:      reg,
		shellResults:  make(map[uuid.UUID][]float64),
		warpedSignals: make(map[uuid.UUID]*Nucleus),
	}
	base, err := newCollectionBase(c, id, name, parent.Collection().RuleSet(), newSettings(opts))
	if err != nil {
		return nil, err
	}
	c.collectionBase = base
	return c, nil
}

func (c *VirtualCollection) IsReal() bool    { return false }
func (c *VirtualCollection) IsVirtual() bool { return true }

// ParentID returns the id of the dataset the cells are drawn from.
func (c *VirtualCollection) ParentID() uuid.UUID { return c.parentID }

func (c *VirtualCollection) parent() (Collection, bool) {
	d, err := c.registry.Dataset(c.parentID)
	if err != nil {
		return nil, false
	}
	return d.Collection(), true
}

// RuleSet returns the parent's rule set.
func (c *VirtualCollection) RuleSet() *profile.RuleSet {
	p, ok := c.parent()
	if !ok {
		return nil
	}
	return p.RuleSet()
}

// Cells returns the parent's cells whose ids are held here, ordered by id.
func (c *VirtualCollection) Cells() []*Cell {
	p, ok := c.parent()
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Cell
	for _, cell := range p.Cells() {
		if _, ok := c.ids[cell.id]; ok {
			out = append(out, cell)
		}
	}
	return out
}

// CellIDs returns the held ids in ascending order.
func (c *VirtualCollection) CellIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(c.ids), compareIDs)
}

func (c *VirtualCollection) Cell(id uuid.UUID) (*Cell, error) {
	if !c.Contains(id) {
		return nil, domain.ErrNotFound{Entity: domain.EntityCell, ID: id.String()}
	}
	p, ok := c.parent()
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityDataset, ID: c.parentID.String()}
	}
	return p.Cell(id)
}

func (c *VirtualCollection) Contains(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[id]
	return ok
}

func (c *VirtualCollection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// Add records the cell's id. The cell must belong to the parent.
func (c *VirtualCollection) Add(cell *Cell) error {
	if cell == nil {
		return fmt.Errorf("add cell: %w", domain.ErrComponentCreation)
	}
	return c.AddID(cell.id)
}

// AddID records a cell id held by the parent.
func (c *VirtualCollection) AddID(id uuid.UUID) error {
	p, ok := c.parent()
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityDataset, ID: c.parentID.String()}
	}
	if !p.Contains(id) {
		return fmt.Errorf("cell %s: %w", id, domain.ErrNotInParent)
	}
	c.mu.Lock()
	c.ids[id] = struct{}{}
	c.mu.Unlock()
	c.membershipChanged()
	return nil
}

func (c *VirtualCollection) AddAll(cells []*Cell) error {
	for _, cell := range cells {
		if err := c.Add(cell); err != nil {
			return err
		}
	}
	return nil
}

func (c *VirtualCollection) Remove(id uuid.UUID) error {
	c.mu.Lock()
	if _, ok := c.ids[id]; !ok {
		c.mu.Unlock()
		return domain.ErrNotFound{Entity: domain.EntityCell, ID: id.String()}
	}
	delete(c.ids, id)
	c.mu.Unlock()
	c.membershipChanged()
	return nil
}

func (c *VirtualCollection) Clear() {
	c.mu.Lock()
	clear(c.ids)
	c.mu.Unlock()
	c.membershipChanged()
}

// SignalGroups returns the parent's signal groups with this collection's
// shell results applied.
func (c *VirtualCollection) SignalGroups() []*SignalGroup {
	p, ok := c.parent()
	if !ok {
		return nil
	}
	groups := p.SignalGroups()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range groups {
		if r, ok := c.shellResults[g.ID]; ok {
			g.ShellResult = slices.Clone(r)
		} else {
			g.ShellResult = nil
		}
	}
	return groups
}

func (c *VirtualCollection) SignalGroup(id uuid.UUID) (*SignalGroup, error) {
	for _, g := range c.SignalGroups() {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityCollection, ID: id.String()}
}

// SetShellResult stores a shell analysis result for a signal group.
func (c *VirtualCollection) SetShellResult(group uuid.UUID, result []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shellResults[group] = slices.Clone(result)
}

func (c *VirtualCollection) ShellResult(group uuid.UUID) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.shellResults[group]
	return slices.Clone(r), ok
}

// SetWarpedSignal stores the consensus-warped signal shape for a group.
func (c *VirtualCollection) SetWarpedSignal(group uuid.UUID, n *Nucleus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warpedSignals[group] = n
}

func (c *VirtualCollection) WarpedSignal(group uuid.UUID) (*Nucleus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.warpedSignals[group]
	return n, ok
}

// Duplicate copies the id set and overlays against the same registry.
func (c *VirtualCollection) Duplicate() Collection { return c.duplicate(c.registry) }

func (c *VirtualCollection) duplicate(reg *Registry) Collection {
	if reg == nil {
		reg = c.registry
	}
	out := &VirtualCollection{
		parentID:      c.parentID,
		registry:      reg,
		shellResults:  make(map[uuid.UUID][]float64),
		warpedSignals: make(map[uuid.UUID]*Nucleus),
	}
	c.mu.RLock()
	out.ids = maps.Clone(c.ids)
	for k, v := range c.shellResults {
		out.shellResults[k] = slices.Clone(v)
	}
	for k, v := range c.warpedSignals {
		out.warpedSignals[k] = v.Duplicate()
	}
	c.mu.RUnlock()
	out.collectionBase = &collectionBase{
		self:     out,
		id:       c.id,
		name:     c.name,
		stats:    newStatsCache(c.settings.metrics),
		venn:     vennCache{entries: make(map[uuid.UUID]vennEntry)},
		settings: c.settings,
	}
	out.profiles = c.profiles.Duplicate(func() []*Nucleus { return out.Nuclei() })
	if c.consensus != nil {
		out.consensus = c.consensus.Duplicate()
	}
	return out
}
