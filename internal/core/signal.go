package core

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Signal is a detected signal inside a nucleus, attributed to a signal group.
type Signal struct {
	GroupID      uuid.UUID
	Measurements map[Measurement]float64
}

func (s Signal) clone() Signal {
	return Signal{GroupID: s.GroupID, Measurements: maps.Clone(s.Measurements)}
}

func cloneSignals(in []Signal) []Signal {
	if in == nil {
		return nil
	}
	out := make([]Signal, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

// SignalGroup describes signals detected on one channel across a collection.
// ShellResult holds the per-shell signal proportions of a shell analysis.
type SignalGroup struct {
	ID          uuid.UUID
	Name        string
	Colour      string
	Visible     bool
	ShellResult []float64
}

// Clone returns a deep copy.
func (g *SignalGroup) Clone() *SignalGroup {
	if g == nil {
		return nil
	}
	out := *g
	out.ShellResult = slices.Clone(g.ShellResult)
	return &out
}
