package domain

import "time"

// SnapshotVersion is the format version written by this build.
const SnapshotVersion = "1.0.0"

// Snapshot is the persisted logical graph of one root dataset. Aggregate
// profile caches are never stored; they are recomputed after restore.
type Snapshot struct {
	Version string        `json:"version"`
	SavedAt time.Time     `json:"saved_at"`
	Dataset DatasetRecord `json:"dataset"`
}

// SnapshotInfo summarises a stored snapshot for listing.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Version string    `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Cells   int       `json:"cells"`
}

// Info derives the listing summary of s.
func (s Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:      s.Dataset.ID,
		Name:    s.Dataset.Name,
		Version: s.Version,
		SavedAt: s.SavedAt,
		Cells:   len(s.Dataset.Cells),
	}
}

// DatasetRecord is a dataset node. Roots carry Cells; child and merge-source
// datasets carry CellIDs filtering their parent.
type DatasetRecord struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Colour           string                   `json:"colour,omitempty"`
	VersionCreated   string                   `json:"version_created"`
	VersionLastSaved string                   `json:"version_last_saved"`
	Options          map[string]string        `json:"options,omitempty"`
	RuleSet          *RuleSetRecord           `json:"rule_set,omitempty"`
	Cells            []CellRecord             `json:"cells,omitempty"`
	CellIDs          []string                 `json:"cell_ids,omitempty"`
	Profiles         ProfileCollectionRecord  `json:"profiles"`
	Consensus        *NucleusRecord           `json:"consensus,omitempty"`
	SignalGroups     []SignalGroupRecord      `json:"signal_groups,omitempty"`
	ShellResults     map[string][]float64     `json:"shell_results,omitempty"`
	WarpedSignals    map[string]NucleusRecord `json:"warped_signals,omitempty"`
	Children         []DatasetRecord          `json:"children,omitempty"`
	MergeSources     []DatasetRecord          `json:"merge_sources,omitempty"`
	MergeSourceIDs   []string                 `json:"merge_source_ids,omitempty"`
	ClusterGroups    []ClusterGroupRecord     `json:"cluster_groups,omitempty"`
}

// RuleSetRecord mirrors a rule set with plain string keys.
type RuleSetRecord struct {
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	Application  string            `json:"application,omitempty"`
	PriorityAxis string            `json:"priority_axis,omitempty"`
	ProfileTypes []string          `json:"profile_types"`
	Orientation  map[string]string `json:"orientation"`
	Measurements []string          `json:"measurements,omitempty"`
}

// CellRecord is a cell and its nuclei.
type CellRecord struct {
	ID           string             `json:"id"`
	Nuclei       []NucleusRecord    `json:"nuclei"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

// NucleusRecord stores a member's raw profiles, absolute landmark indices and
// absolute segments.
type NucleusRecord struct {
	ID           string               `json:"id"`
	Locked       bool                 `json:"locked,omitempty"`
	Scale        float64              `json:"scale,omitempty"`
	Profiles     map[string][]float64 `json:"profiles"`
	Landmarks    map[string]int       `json:"landmarks"`
	Segments     []SegmentRecord      `json:"segments,omitempty"`
	Measurements map[string]float64   `json:"measurements,omitempty"`
	Signals      []SignalRecord       `json:"signals,omitempty"`
}

// SignalRecord is a detected signal inside a nucleus.
type SignalRecord struct {
	GroupID      string             `json:"group_id"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

// SegmentRecord is one segment boundary pair plus its merge provenance.
type SegmentRecord struct {
	ID           string          `json:"id"`
	Start        int             `json:"start"`
	End          int             `json:"end"`
	Total        int             `json:"total"`
	Locked       bool            `json:"locked,omitempty"`
	MergeSources []SegmentRecord `json:"merge_sources,omitempty"`
}

// ProfileCollectionRecord stores landmark indices and reference-relative
// segments of an aggregate profile collection.
type ProfileCollectionRecord struct {
	Length    int             `json:"length"`
	Landmarks map[string]int  `json:"landmarks"`
	Segments  []SegmentRecord `json:"segments,omitempty"`
}

// SignalGroupRecord describes a group of signals detected on one channel.
type SignalGroupRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Colour  string `json:"colour,omitempty"`
	Visible bool   `json:"visible"`
}

// ClusterGroupRecord records a clustering run and the child datasets it made.
type ClusterGroupRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Options    map[string]string `json:"options,omitempty"`
	Tree       string            `json:"tree,omitempty"`
	DatasetIDs []string          `json:"dataset_ids"`
}
