package core

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// ClusterGroupPrefix starts the default name of every cluster group.
const ClusterGroupPrefix = "ClusterGroup"

// ClusterGroup records one clustering run: the options it ran with, the
// resulting tree in Newick form, and the child datasets it produced.
type ClusterGroup struct {
	ID         uuid.UUID
	Name       string
	Options    map[string]string
	Tree       string
	datasetIDs []uuid.UUID
}

// NewClusterGroup creates a group over the given child dataset ids.
func NewClusterGroup(id uuid.UUID, name string, datasetIDs ...uuid.UUID) *ClusterGroup {
	return &ClusterGroup{
		ID:         id,
		Name:       name,
		Options:    make(map[string]string),
		datasetIDs: slices.Clone(datasetIDs),
	}
}

// DatasetIDs returns the ids of the child datasets in the group.
func (g *ClusterGroup) DatasetIDs() []uuid.UUID { return slices.Clone(g.datasetIDs) }

// AddDataset appends a child dataset id.
func (g *ClusterGroup) AddDataset(id uuid.UUID) {
	if !g.HasDataset(id) {
		g.datasetIDs = append(g.datasetIDs, id)
	}
}

func (g *ClusterGroup) HasDataset(id uuid.UUID) bool { return slices.Contains(g.datasetIDs, id) }

func (g *ClusterGroup) Size() int { return len(g.datasetIDs) }

func (g *ClusterGroup) removeDataset(id uuid.UUID) bool {
	before := len(g.datasetIDs)
	g.datasetIDs = slices.DeleteFunc(g.datasetIDs, func(x uuid.UUID) bool { return x == id })
	return len(g.datasetIDs) != before
}

// Clone returns a deep copy.
func (g *ClusterGroup) Clone() *ClusterGroup {
	out := *g
	out.Options = maps.Clone(g.Options)
	out.datasetIDs = slices.Clone(g.datasetIDs)
	return &out
}
