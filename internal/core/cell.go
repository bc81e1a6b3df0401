package core

import (
	"fmt"
	"maps"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
)

// Cell groups one or more nuclei with whole-cell measurements.
type Cell struct {
	id           uuid.UUID
	nuclei       []*Nucleus
	measurements map[Measurement]float64
}

// NewCell builds a cell. At least one nucleus is required.
func NewCell(id uuid.UUID, nuclei ...*Nucleus) (*Cell, error) {
	if len(nuclei) == 0 {
		return nil, fmt.Errorf("cell %s has no nuclei: %w", id, domain.ErrComponentCreation)
	}
	return &Cell{
		id:           id,
		nuclei:       append([]*Nucleus(nil), nuclei...),
		measurements: make(map[Measurement]float64),
	}, nil
}

func (c *Cell) ID() uuid.UUID { return c.id }

// Nuclei returns the nuclei of the cell. The nuclei are shared, not copied.
func (c *Cell) Nuclei() []*Nucleus { return append([]*Nucleus(nil), c.nuclei...) }

// PrimaryNucleus returns the first nucleus.
func (c *Cell) PrimaryNucleus() *Nucleus { return c.nuclei[0] }

// Measurement returns a cell-level value. Nucleus count is always available.
func (c *Cell) Measurement(m Measurement, scale MeasurementScale) (float64, error) {
	if m == MeasurementNucleusCount {
		return float64(len(c.nuclei)), nil
	}
	v, ok := c.measurements[m]
	if !ok {
		return 0, domain.ErrNotFound{Entity: domain.EntityCell, ID: string(m)}
	}
	return Convert(v, m, scale, c.nuclei[0].scale), nil
}

// SetMeasurement records a pixel-scale value.
func (c *Cell) SetMeasurement(m Measurement, v float64) { c.measurements[m] = v }

// ClearGroupMeasurements drops cluster-group values from the cell and its nuclei.
func (c *Cell) ClearGroupMeasurements(group uuid.UUID) int {
	cleared := 0
	for m := range c.measurements {
		if m.BelongsToGroup(group) {
			delete(c.measurements, m)
			cleared++
		}
	}
	for _, n := range c.nuclei {
		cleared += n.ClearGroupMeasurements(group)
	}
	return cleared
}

// Duplicate returns a deep copy.
func (c *Cell) Duplicate() *Cell {
	out := &Cell{id: c.id, measurements: maps.Clone(c.measurements)}
	for _, n := range c.nuclei {
		out.nuclei = append(out.nuclei, n.Duplicate())
	}
	return out
}
