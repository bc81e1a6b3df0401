package core

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// SnapshotOf captures the logical graph of a root dataset. Aggregate profile
// caches are not captured.
func SnapshotOf(d *Dataset) (domain.Snapshot, error) {
	if !d.IsRoot() {
		return domain.Snapshot{}, fmt.Errorf("snapshot %s: %w", d.ID(), domain.ErrNotRoot)
	}
	return domain.Snapshot{
		Version: domain.SnapshotVersion,
		SavedAt: time.Now().UTC(),
		Dataset: datasetRecord(d),
	}, nil
}

func datasetRecord(d *Dataset) domain.DatasetRecord {
	d.mu.RLock()
	rec := domain.DatasetRecord{
		ID:               d.ID().String(),
		Name:             d.Name(),
		Colour:           d.colour,
		VersionCreated:   d.versionCreated,
		VersionLastSaved: domain.SnapshotVersion,
		Options:          maps.Clone(d.options),
		MergeSourceIDs:   uuidStrings(d.sourceIDs),
	}
	for _, g := range d.clusterGroups {
		rec.ClusterGroups = append(rec.ClusterGroups, domain.ClusterGroupRecord{
			ID:         g.ID.String(),
			Name:       g.Name,
			Options:    maps.Clone(g.Options),
			Tree:       g.Tree,
			DatasetIDs: uuidStrings(g.datasetIDs),
		})
	}
	children := slices.Clone(d.children)
	sources := slices.Clone(d.mergeSources)
	d.mu.RUnlock()

	col := d.Collection()
	rec.Profiles = profileCollectionRecord(col.ProfileCollection())
	if cons, ok := col.Consensus(); ok {
		r := nucleusRecord(cons)
		rec.Consensus = &r
	}
	switch c := col.(type) {
	case *RealCollection:
		rec.RuleSet = ruleSetRecord(c.ruleSet)
		for _, cell := range c.Cells() {
			rec.Cells = append(rec.Cells, cellRecord(cell))
		}
		for _, g := range c.SignalGroups() {
			rec.SignalGroups = append(rec.SignalGroups, domain.SignalGroupRecord{
				ID: g.ID.String(), Name: g.Name, Colour: g.Colour, Visible: g.Visible,
			})
			if g.ShellResult != nil {
				if rec.ShellResults == nil {
					rec.ShellResults = make(map[string][]float64)
				}
				rec.ShellResults[g.ID.String()] = slices.Clone(g.ShellResult)
			}
		}
	case *VirtualCollection:
		rec.CellIDs = uuidStrings(c.CellIDs())
		c.mu.RLock()
		for id, r := range c.shellResults {
			if rec.ShellResults == nil {
				rec.ShellResults = make(map[string][]float64)
			}
			rec.ShellResults[id.String()] = slices.Clone(r)
		}
		for id, n := range c.warpedSignals {
			if rec.WarpedSignals == nil {
				rec.WarpedSignals = make(map[string]domain.NucleusRecord)
			}
			rec.WarpedSignals[id.String()] = nucleusRecord(n)
		}
		c.mu.RUnlock()
	}
	for _, child := range children {
		rec.Children = append(rec.Children, datasetRecord(child))
	}
	for _, src := range sources {
		rec.MergeSources = append(rec.MergeSources, datasetRecord(src))
	}
	return rec
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func ruleSetRecord(rs *profile.RuleSet) *domain.RuleSetRecord {
	rec := &domain.RuleSetRecord{
		Name:         rs.Name,
		Version:      rs.Version,
		Application:  rs.Application,
		PriorityAxis: string(rs.PriorityAxis),
		Orientation:  make(map[string]string, len(rs.Orientation)),
		Measurements: slices.Clone(rs.Measurements),
	}
	for _, t := range rs.ProfileTypes {
		rec.ProfileTypes = append(rec.ProfileTypes, string(t))
	}
	for mark, lm := range rs.Orientation {
		rec.Orientation[string(mark)] = string(lm)
	}
	return rec
}

func profileCollectionRecord(pc *ProfileCollection) domain.ProfileCollectionRecord {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	rec := domain.ProfileCollectionRecord{
		Length:    pc.length,
		Landmarks: make(map[string]int, len(pc.landmarks)),
		Segments:  segmentRecords(pc.segments),
	}
	for lm, idx := range pc.landmarks {
		rec.Landmarks[string(lm)] = idx
	}
	return rec
}

func segmentRecords(segs []*profile.Segment) []domain.SegmentRecord {
	var out []domain.SegmentRecord
	for _, s := range segs {
		out = append(out, domain.SegmentRecord{
			ID:           s.ID().String(),
			Start:        s.Start(),
			End:          s.End(),
			Total:        s.ProfileLength(),
			Locked:       s.Locked(),
			MergeSources: segmentRecords(s.MergeSources()),
		})
	}
	return out
}

func cellRecord(c *Cell) domain.CellRecord {
	rec := domain.CellRecord{ID: c.id.String(), Measurements: measurementRecord(c.measurements)}
	for _, n := range c.nuclei {
		rec.Nuclei = append(rec.Nuclei, nucleusRecord(n))
	}
	return rec
}

func measurementRecord(m map[Measurement]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func nucleusRecord(n *Nucleus) domain.NucleusRecord {
	rec := domain.NucleusRecord{
		ID:           n.id.String(),
		Locked:       n.locked,
		Scale:        n.scale,
		Profiles:     make(map[string][]float64, len(n.profiles)),
		Landmarks:    make(map[string]int, len(n.landmarks)),
		Segments:     segmentRecords(n.segments),
		Measurements: measurementRecord(n.measurements),
	}
	for t, p := range n.profiles {
		rec.Profiles[string(t)] = p.Values()
	}
	for lm, idx := range n.landmarks {
		rec.Landmarks[string(lm)] = idx
	}
	for _, s := range n.signals {
		rec.Signals = append(rec.Signals, domain.SignalRecord{
			GroupID:      s.GroupID.String(),
			Measurements: measurementRecord(s.Measurements),
		})
	}
	return rec
}

// CheckSnapshotVersion rejects snapshots written by a newer format version.
func CheckSnapshotVersion(version string) error {
	v := "v" + version
	if !semver.IsValid(v) {
		return fmt.Errorf("snapshot version %q: %w", version, domain.ErrComponentCreation)
	}
	if semver.Compare(v, "v"+domain.SnapshotVersion) > 0 {
		return domain.UnsupportedVersionError{Version: version, Supported: domain.SnapshotVersion}
	}
	return nil
}

// Restore rebuilds a root dataset from snap, registers the tree in reg and
// recalculates every aggregate profile.
func Restore(reg *Registry, snap domain.Snapshot, opts ...Option) (*Dataset, error) {
	if err := CheckSnapshotVersion(snap.Version); err != nil {
		return nil, err
	}
	rec := snap.Dataset
	if rec.RuleSet == nil {
		return nil, fmt.Errorf("restore %s: missing rule set: %w", rec.ID, domain.ErrComponentCreation)
	}
	rs := ruleSetFromRecord(rec.RuleSet)
	id, err := parseID(rec.ID)
	if err != nil {
		return nil, err
	}
	rc, err := NewRealCollection(id, rec.Name, rs, opts...)
	if err != nil {
		return nil, err
	}
	for _, cr := range rec.Cells {
		cell, err := cellFromRecord(cr)
		if err != nil {
			return nil, err
		}
		rc.cells[cell.id] = cell
	}
	rc.membershipChanged()
	for _, gr := range rec.SignalGroups {
		gid, err := parseID(gr.ID)
		if err != nil {
			return nil, err
		}
		rc.AddSignalGroup(&SignalGroup{
			ID:          gid,
			Name:        gr.Name,
			Colour:      gr.Colour,
			Visible:     gr.Visible,
			ShellResult: slices.Clone(rec.ShellResults[gr.ID]),
		})
	}
	root, err := NewRootDataset(reg, rc)
	if err != nil {
		return nil, err
	}
	if err := restoreDataset(root, rec, opts); err != nil {
		unregisterTree(reg, root)
		return nil, err
	}
	for _, d := range root.family() {
		if d.Collection().Size() == 0 {
			continue
		}
		if err := d.Collection().ProfileCollection().CalculateProfiles(); err != nil {
			unregisterTree(reg, root)
			return nil, fmt.Errorf("restore %s: profile %s: %w", rec.ID, d.Name(), err)
		}
	}
	return root, nil
}

func restoreDataset(d *Dataset, rec domain.DatasetRecord, opts []Option) error {
	d.colour = rec.Colour
	maps.Copy(d.options, rec.Options)
	if rec.VersionCreated != "" {
		d.versionCreated = rec.VersionCreated
	}
	if rec.VersionLastSaved != "" {
		d.versionSaved = rec.VersionLastSaved
	}
	if err := restoreProfileCollection(d.Collection().ProfileCollection(), rec.Profiles); err != nil {
		return err
	}
	if rec.Consensus != nil {
		cons, err := nucleusFromRecord(*rec.Consensus)
		if err != nil {
			return err
		}
		d.Collection().SetConsensus(cons)
	}
	if vc, ok := d.Collection().(*VirtualCollection); ok {
		for gid, r := range rec.ShellResults {
			id, err := parseID(gid)
			if err != nil {
				return err
			}
			vc.SetShellResult(id, r)
		}
		for gid, nr := range rec.WarpedSignals {
			id, err := parseID(gid)
			if err != nil {
				return err
			}
			n, err := nucleusFromRecord(nr)
			if err != nil {
				return err
			}
			vc.SetWarpedSignal(id, n)
		}
	}
	for _, cr := range rec.Children {
		child, err := restoreVirtual(d, cr, opts)
		if err != nil {
			return err
		}
		d.children = append(d.children, child)
	}
	for _, mr := range rec.MergeSources {
		src, err := restoreVirtual(d, mr, opts)
		if err != nil {
			return err
		}
		d.mergeSources = append(d.mergeSources, src)
	}
	for _, sid := range rec.MergeSourceIDs {
		id, err := parseID(sid)
		if err != nil {
			return err
		}
		d.sourceIDs = append(d.sourceIDs, id)
	}
	for _, gr := range rec.ClusterGroups {
		gid, err := parseID(gr.ID)
		if err != nil {
			return err
		}
		g := NewClusterGroup(gid, gr.Name)
		maps.Copy(g.Options, gr.Options)
		g.Tree = gr.Tree
		for _, s := range gr.DatasetIDs {
			id, err := parseID(s)
			if err != nil {
				return err
			}
			g.datasetIDs = append(g.datasetIDs, id)
		}
		d.clusterGroups = append(d.clusterGroups, g)
	}
	return nil
}

func restoreVirtual(parent *Dataset, rec domain.DatasetRecord, opts []Option) (*Dataset, error) {
	id, err := parseID(rec.ID)
	if err != nil {
		return nil, err
	}
	vc, err := NewVirtualCollection(parent.registry, parent.ID(), id, rec.Name, opts...)
	if err != nil {
		return nil, err
	}
	for _, s := range rec.CellIDs {
		cid, err := parseID(s)
		if err != nil {
			return nil, err
		}
		if err := vc.AddID(cid); err != nil {
			return nil, err
		}
	}
	d := newDataset(parent.registry, vc, parent.ID())
	if err := parent.registry.Register(d); err != nil {
		return nil, err
	}
	if err := restoreDataset(d, rec, opts); err != nil {
		return nil, err
	}
	return d, nil
}

func restoreProfileCollection(pc *ProfileCollection, rec domain.ProfileCollectionRecord) error {
	landmarks := make(map[profile.Landmark]int, len(rec.Landmarks))
	for lm, idx := range rec.Landmarks {
		landmarks[profile.Landmark(lm)] = idx
	}
	segs, err := segmentsFromRecords(rec.Segments)
	if err != nil {
		return err
	}
	return pc.restore(rec.Length, landmarks, segs)
}

func ruleSetFromRecord(rec *domain.RuleSetRecord) *profile.RuleSet {
	rs := &profile.RuleSet{
		Name:         rec.Name,
		Version:      rec.Version,
		Application:  rec.Application,
		PriorityAxis: profile.PriorityAxis(rec.PriorityAxis),
		Orientation:  make(map[profile.OrientationMark]profile.Landmark, len(rec.Orientation)),
		Measurements: slices.Clone(rec.Measurements),
	}
	for _, t := range rec.ProfileTypes {
		rs.ProfileTypes = append(rs.ProfileTypes, profile.Type(t))
	}
	for mark, lm := range rec.Orientation {
		rs.Orientation[profile.OrientationMark(mark)] = profile.Landmark(lm)
	}
	return rs
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse id %q: %v: %w", s, err, domain.ErrComponentCreation)
	}
	return id, nil
}

func segmentFromRecord(r domain.SegmentRecord) (*profile.Segment, error) {
	id, err := parseID(r.ID)
	if err != nil {
		return nil, err
	}
	s, err := profile.NewSegment(r.Start, r.End, r.Total, id)
	if err != nil {
		return nil, err
	}
	s.SetLocked(r.Locked)
	for _, mr := range r.MergeSources {
		src, err := segmentFromRecord(mr)
		if err != nil {
			return nil, err
		}
		if err := s.AddMergeSource(src); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func segmentsFromRecords(recs []domain.SegmentRecord) ([]*profile.Segment, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	out := make([]*profile.Segment, 0, len(recs))
	for _, r := range recs {
		s, err := segmentFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := profile.LinkSegments(out); err != nil {
		return nil, err
	}
	return out, nil
}

func measurementsFromRecord(m map[string]float64) map[Measurement]float64 {
	out := make(map[Measurement]float64, len(m))
	for k, v := range m {
		out[Measurement(k)] = v
	}
	return out
}

func nucleusFromRecord(r domain.NucleusRecord) (*Nucleus, error) {
	id, err := parseID(r.ID)
	if err != nil {
		return nil, err
	}
	profiles := make(map[profile.Type]profile.Profile, len(r.Profiles))
	for t, values := range r.Profiles {
		p, err := profile.New(values)
		if err != nil {
			return nil, fmt.Errorf("nucleus %s profile %s: %w", r.ID, t, err)
		}
		profiles[profile.Type(t)] = p
	}
	landmarks := make(map[profile.Landmark]int, len(r.Landmarks))
	for lm, idx := range r.Landmarks {
		landmarks[profile.Landmark(lm)] = idx
	}
	opts := []NucleusOption{WithMeasurements(measurementsFromRecord(r.Measurements))}
	segs, err := segmentsFromRecords(r.Segments)
	if err != nil {
		return nil, err
	}
	if len(segs) > 0 {
		opts = append(opts, WithSegments(segs))
	}
	if r.Scale > 0 {
		opts = append(opts, WithScale(r.Scale))
	}
	for _, sr := range r.Signals {
		gid, err := parseID(sr.GroupID)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSignals(Signal{GroupID: gid, Measurements: measurementsFromRecord(sr.Measurements)}))
	}
	if r.Locked {
		opts = append(opts, Locked())
	}
	return NewNucleus(id, profiles, landmarks, opts...)
}

func cellFromRecord(r domain.CellRecord) (*Cell, error) {
	id, err := parseID(r.ID)
	if err != nil {
		return nil, err
	}
	nuclei := make([]*Nucleus, 0, len(r.Nuclei))
	for _, nr := range r.Nuclei {
		n, err := nucleusFromRecord(nr)
		if err != nil {
			return nil, err
		}
		nuclei = append(nuclei, n)
	}
	cell, err := NewCell(id, nuclei...)
	if err != nil {
		return nil, err
	}
	maps.Copy(cell.measurements, measurementsFromRecord(r.Measurements))
	return cell, nil
}
