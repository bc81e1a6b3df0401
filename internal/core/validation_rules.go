package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// Check names, in the order a dataset validation runs them.
const (
	CheckReferenceLandmark = "rp_assignment"
	CheckProfiles          = "profiles"
	CheckChildProfiles     = "child_profiles"
	CheckSegmentIDs        = "segment_ids"
	CheckChildLandmarks    = "child_tags"
	CheckCellSegmentation  = "cell_segmentation"
	CheckReferenceBoundary = "rp_boundary"
)

var checkSummaries = map[string]string{
	CheckReferenceLandmark: "Error in RP assignment for %d nuclei",
	CheckProfiles:          "Error in nucleus profiling for %d nuclei",
	CheckChildProfiles:     "Error in child dataset profiling for %d profiles",
	CheckSegmentIDs:        "There are %d errors in segmentation between datasets",
	CheckChildLandmarks:    "There are %d errors in segmentation between child datasets",
	CheckCellSegmentation:  "Error in segmentation between cells: %d errors",
	CheckReferenceBoundary: "Error in RP/segment placement in %d cells",
}

// validationView is the read-only state one validation run inspects.
type validationView struct {
	dataset    *Dataset
	collection Collection
	children   []*Dataset
	ruleSet    *profile.RuleSet
	reference  profile.Landmark
	segType    profile.Type
	cells      []*Cell
}

func newValidationView(c Collection, d *Dataset) (*validationView, error) {
	rs := c.RuleSet()
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	ref, err := rs.ReferenceLandmark()
	if err != nil {
		return nil, err
	}
	v := &validationView{
		dataset:    d,
		collection: c,
		ruleSet:    rs,
		reference:  ref,
		segType:    segmentationType(rs),
		cells:      c.Cells(),
	}
	if d != nil {
		v.children = d.AllChildren()
	}
	return v, nil
}

// segmentationType is the profile type segment consistency is judged on.
func segmentationType(rs *profile.RuleSet) profile.Type {
	if slices.Contains(rs.ProfileTypes, profile.TypeAngle) {
		return profile.TypeAngle
	}
	return rs.ProfileTypes[0]
}

func cellViolation(rule string, cell uuid.UUID, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   domain.EntityCell,
		EntityID: cell.String(),
	}
}

func entityViolation(rule string, sev domain.Severity, entity domain.EntityType, id uuid.UUID, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Entity:   entity,
		EntityID: id.String(),
	}
}

type referenceLandmarkRule struct{}

func (referenceLandmarkRule) Name() string { return CheckReferenceLandmark }

func (r referenceLandmarkRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range v.cells {
		for _, n := range c.nuclei {
			if !n.HasLandmark(v.reference) {
				res.Add(cellViolation(r.Name(), c.id, "Nucleus %s does not have RP", n.id))
			}
		}
	}
	return res, nil
}

type profilesRule struct{}

func (profilesRule) Name() string { return CheckProfiles }

func (r profilesRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	for _, t := range v.ruleSet.ProfileTypes {
		for _, c := range v.cells {
			for _, n := range c.nuclei {
				if _, err := n.RawProfile(t); err != nil {
					res.Add(cellViolation(r.Name(), c.id, "Nucleus %s does not have %s profile", n.id, t))
				}
			}
		}
	}
	return res, nil
}

type childProfilesRule struct{}

func (childProfilesRule) Name() string { return CheckChildProfiles }

func (r childProfilesRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	check := func(role string, d *Dataset, t profile.Type) {
		pc := d.Collection().ProfileCollection()
		if _, err := pc.Profile(t, v.reference, profile.Median); err != nil {
			res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityDataset, d.ID(),
				"%s dataset %s does not have %s", role, d.Name(), t))
		}
		if _, err := pc.SegmentedProfile(t, v.reference, profile.Median); err != nil {
			res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityDataset, d.ID(),
				"%s dataset %s does not have segmented %s", role, d.Name(), t))
		}
	}
	for _, t := range v.ruleSet.ProfileTypes {
		check("Root", v.dataset, t)
		for _, child := range v.children {
			check("Child", child, t)
		}
	}
	return res, nil
}

type segmentIDsRule struct{}

func (segmentIDsRule) Name() string { return CheckSegmentIDs }

func (r segmentIDsRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	ids := v.collection.ProfileCollection().SegmentIDs()
	for _, child := range v.children {
		childIDs := child.Collection().ProfileCollection().SegmentIDs()
		if len(ids) != len(childIDs) {
			res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityDataset, child.ID(),
				"Root dataset has %d segments; child dataset %s has %d", len(ids), child.Name(), len(childIDs)))
		}
		for _, id := range ids {
			if !slices.Contains(childIDs, id) {
				res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityDataset, child.ID(),
					"Segment %s not found in child %s", id, child.Name()))
			}
		}
		for _, id := range childIDs {
			if !slices.Contains(ids, id) {
				res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityDataset, child.ID(),
					"%s segment %s not found in parent", child.Name(), id))
			}
		}
	}
	return res, nil
}

type childLandmarksRule struct{}

func (childLandmarksRule) Name() string { return CheckChildLandmarks }

func (r childLandmarksRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	marks := v.ruleSet.OrientationMarks()
	for _, c := range v.cells {
		for _, n := range c.nuclei {
			for _, mark := range marks {
				lm, _ := v.ruleSet.Landmark(mark)
				if !n.HasLandmark(lm) {
					res.Add(cellViolation(r.Name(), c.id, "Nucleus %s does not have root collection tag %s", n.id, mark))
				}
			}
		}
	}
	consensus := func(col Collection, owner string) {
		cons, ok := col.Consensus()
		if !ok {
			return
		}
		for _, mark := range marks {
			lm, _ := v.ruleSet.Landmark(mark)
			if !cons.HasLandmark(lm) {
				res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityConsensus, col.ID(),
					"%sconsensus nucleus does not have root collection tag %s", owner, mark))
			}
		}
	}
	consensus(v.collection, "")
	for _, child := range v.children {
		pc := child.Collection().ProfileCollection()
		for _, mark := range marks {
			lm, _ := v.ruleSet.Landmark(mark)
			if !pc.HasLandmark(lm) {
				res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityDataset, child.ID(),
					"Child dataset %s does not have root collection tag %s", child.Name(), mark))
			}
		}
		consensus(child.Collection(), "Child dataset "+child.Name()+" ")
	}
	return res, nil
}

type cellSegmentationRule struct{}

func (cellSegmentationRule) Name() string { return CheckCellSegmentation }

func (r cellSegmentationRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	pc := v.collection.ProfileCollection()
	median, err := pc.SegmentedProfile(v.segType, v.reference, profile.Median)
	if err != nil {
		res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityCollection, v.collection.ID(),
			"Unable to fetch median profile for collection"))
		return res, nil
	}
	expected := pc.SegmentIDs()
	count := 0
	for _, c := range v.cells {
		for _, n := range c.nuclei {
			for _, msg := range segmentationFindings(n, v, expected, median) {
				res.Add(cellViolation(r.Name(), c.id, "%s", msg))
				count++
			}
		}
	}
	if cons, ok := v.collection.Consensus(); ok {
		findings := segmentationFindings(cons, v, expected, median)
		for _, msg := range findings {
			res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityConsensus, v.collection.ID(), "%s", msg))
		}
		if len(findings) > 0 {
			res.Add(entityViolation(r.Name(), domain.SeverityWarn, domain.EntityConsensus, v.collection.ID(),
				"Segmentation error in consensus"))
		}
		count += len(findings)
	}
	if count > 0 {
		res.Add(entityViolation(r.Name(), domain.SeverityWarn, domain.EntityCollection, v.collection.ID(),
			"Segments are not consistent in all cells"))
	}
	return res, nil
}

// segmentationFindings compares an object's segmentation from the reference
// landmark against the median's. An object segment without merge sources
// where the median segment has them counts as an error.
func segmentationFindings(n *Nucleus, v *validationView, expected []uuid.UUID, median profile.SegmentedProfile) []string {
	p, err := n.SegmentedProfile(v.segType, v.reference)
	if err != nil {
		return []string{fmt.Sprintf("Error getting segments for object %s: %v", n.id, err)}
	}
	var out []string
	ids := p.SegmentIDs()
	if len(expected) != len(ids) {
		out = append(out, fmt.Sprintf("Profile collection has %d segments; nucleus has %d", len(expected), len(ids)))
	}
	for _, id := range ids {
		if !slices.Contains(expected, id) {
			out = append(out, fmt.Sprintf("Nucleus %s has segment %s not found in parent", n.id, id))
		}
	}
	var present []*profile.Segment
	for _, id := range expected {
		seg, err := p.Segment(id)
		if err != nil {
			out = append(out, fmt.Sprintf("Profile collection segment %s not found in object %s", id, n.id))
			continue
		}
		present = append(present, seg)
	}
	for i, a := range present {
		for _, b := range present[i+1:] {
			if a.OverlapsBeyondEndpoints(b) {
				out = append(out, fmt.Sprintf("%s overlaps %s in object %s", a, b, n.id))
			}
		}
	}
	for _, id := range median.SegmentIDs() {
		medianSeg, _ := median.Segment(id)
		objectSeg, err := p.Segment(id)
		if err != nil {
			continue
		}
		if medianSeg.HasMergeSources() != objectSeg.HasMergeSources() {
			out = append(out, fmt.Sprintf("Segment %s merge history differs from the median in object %s", id, n.id))
		}
		for _, src := range medianSeg.MergeSourceIDs() {
			if !objectSeg.HasMergeSource(src) {
				out = append(out, fmt.Sprintf("Object segment %s does not have expected median merge source %s in object %s", id, src, n.id))
			}
		}
		for _, src := range objectSeg.MergeSourceIDs() {
			if !medianSeg.HasMergeSource(src) {
				out = append(out, fmt.Sprintf("Median segment %s does not have merge source %s from nucleus %s", id, src, n.id))
			}
		}
	}
	return out
}

type referenceBoundaryRule struct{}

func (referenceBoundaryRule) Name() string { return CheckReferenceBoundary }

func (r referenceBoundaryRule) Evaluate(_ context.Context, v *validationView) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range v.cells {
		for _, n := range c.nuclei {
			if msg, ok := referenceOnBoundary(n, v); !ok {
				res.Add(cellViolation(r.Name(), c.id, "%s", msg))
			}
		}
	}
	if cons, ok := v.collection.Consensus(); ok {
		if msg, ok := referenceOnBoundary(cons, v); !ok {
			res.Add(entityViolation(r.Name(), domain.SeverityBlock, domain.EntityConsensus, v.collection.ID(), "%s", msg))
		}
	}
	return res, nil
}

func referenceOnBoundary(n *Nucleus, v *validationView) (string, bool) {
	idx, err := n.LandmarkIndex(v.reference)
	if err != nil {
		return fmt.Sprintf("Nucleus %s does not have an RP set", n.id), false
	}
	p, err := n.SegmentedProfile(v.segType, v.reference)
	if err != nil {
		return fmt.Sprintf("Nucleus %s does not have a %s profile", n.id, v.segType), false
	}
	for _, s := range p.Segments() {
		if s.Start() == 0 {
			return "", true
		}
	}
	return fmt.Sprintf("Nucleus %s does not have RP at a segment boundary: RP at %d", n.id, idx), false
}
