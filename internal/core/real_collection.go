package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// RealCollection owns its cells and signal groups.
type RealCollection struct {
	*collectionBase
	mu           sync.RWMutex
	cells        map[uuid.UUID]*Cell
	ruleSet      *profile.RuleSet
	signalGroups []*SignalGroup
}

var _ Collection = (*RealCollection)(nil)

// NewRealCollection creates an empty collection governed by rs.
func NewRealCollection(id uuid.UUID, name string, rs *profile.RuleSet, opts ...Option) (*RealCollection, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	c := &RealCollection{cells: make(map[uuid.UUID]*Cell), ruleSet: rs.Clone()}
	base, err := newCollectionBase(c, id, name, c.ruleSet, newSettings(opts))
	if err != nil {
		return nil, err
	}
	c.collectionBase = base
	return c, nil
}

func (c *RealCollection) IsReal() bool              { return true }
func (c *RealCollection) IsVirtual() bool           { return false }
func (c *RealCollection) RuleSet() *profile.RuleSet { return c.ruleSet }

// Cells returns the cells ordered by id.
func (c *RealCollection) Cells() []*Cell {
	c.mu.RLock()
	out := make([]*Cell, 0, len(c.cells))
	for _, cell := range c.cells {
		out = append(out, cell)
	}
	c.mu.RUnlock()
	sortCells(out)
	return out
}

// CellIDs returns the cell ids in ascending order.
func (c *RealCollection) CellIDs() []uuid.UUID {
	c.mu.RLock()
	out := make([]uuid.UUID, 0, len(c.cells))
	for id := range c.cells {
		out = append(out, id)
	}
	c.mu.RUnlock()
	slices.SortFunc(out, compareIDs)
	return out
}

func (c *RealCollection) Cell(id uuid.UUID) (*Cell, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cell, ok := c.cells[id]
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityCell, ID: id.String()}
	}
	return cell, nil
}

func (c *RealCollection) Contains(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cells[id]
	return ok
}

func (c *RealCollection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cells)
}

// Add stores the cell, replacing any cell with the same id.
func (c *RealCollection) Add(cell *Cell) error {
	if cell == nil {
		return fmt.Errorf("add cell: %w", domain.ErrComponentCreation)
	}
	c.mu.Lock()
	c.cells[cell.id] = cell
	c.mu.Unlock()
	c.membershipChanged()
	return nil
}

func (c *RealCollection) AddAll(cells []*Cell) error {
	for _, cell := range cells {
		if err := c.Add(cell); err != nil {
			return err
		}
	}
	return nil
}

func (c *RealCollection) Remove(id uuid.UUID) error {
	c.mu.Lock()
	if _, ok := c.cells[id]; !ok {
		c.mu.Unlock()
		return domain.ErrNotFound{Entity: domain.EntityCell, ID: id.String()}
	}
	delete(c.cells, id)
	c.mu.Unlock()
	c.membershipChanged()
	return nil
}

func (c *RealCollection) Clear() {
	c.mu.Lock()
	clear(c.cells)
	c.mu.Unlock()
	c.membershipChanged()
}

// AddSignalGroup registers a signal group, replacing one with the same id.
func (c *RealCollection) AddSignalGroup(g *SignalGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.signalGroups {
		if existing.ID == g.ID {
			c.signalGroups[i] = g
			return
		}
	}
	c.signalGroups = append(c.signalGroups, g)
}

// SignalGroups returns copies of the signal groups.
func (c *RealCollection) SignalGroups() []*SignalGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*SignalGroup, 0, len(c.signalGroups))
	for _, g := range c.signalGroups {
		out = append(out, g.Clone())
	}
	return out
}

func (c *RealCollection) SignalGroup(id uuid.UUID) (*SignalGroup, error) {
	for _, g := range c.SignalGroups() {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityCollection, ID: id.String()}
}

// Duplicate deep copies the cells, signal groups, profile collection and
// consensus.
func (c *RealCollection) Duplicate() Collection { return c.duplicate(nil) }

func (c *RealCollection) duplicate(_ *Registry) Collection {
	out, err := NewRealCollection(c.id, c.name, c.ruleSet, c.settings.options()...)
	if err != nil {
		// the rule set was validated when c was built
		panic(err)
	}
	for _, cell := range c.Cells() {
		out.cells[cell.id] = cell.Duplicate()
	}
	out.signalGroups = c.SignalGroups()
	out.profiles = c.profiles.Duplicate(func() []*Nucleus { return out.Nuclei() })
	if c.consensus != nil {
		out.consensus = c.consensus.Duplicate()
	}
	return out
}
