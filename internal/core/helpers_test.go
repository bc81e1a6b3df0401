package core

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"nucleicore/pkg/profile"
)

var testSegmentIDs = []uuid.UUID{
	uuid.MustParse("00000000-0000-0000-0000-00000000000a"),
	uuid.MustParse("00000000-0000-0000-0000-00000000000b"),
	uuid.MustParse("00000000-0000-0000-0000-00000000000c"),
}

func testRuleSet() *profile.RuleSet {
	return &profile.RuleSet{
		Name:         "Test",
		ProfileTypes: []profile.Type{profile.TypeAngle},
		Orientation: map[profile.OrientationMark]profile.Landmark{
			profile.MarkReference: profile.LandmarkReferencePoint,
		},
	}
}

func angleProfile(t *testing.T, n int) profile.Profile {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = 180 + 30*math.Sin(2*math.Pi*float64(i)/float64(n))
	}
	p, err := profile.New(values)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	return p
}

// segmentsAt builds a linked cover over total whose segments start at the
// given indices and carry testSegmentIDs in order.
func segmentsAt(t *testing.T, total int, starts ...int) []*profile.Segment {
	t.Helper()
	segs := make([]*profile.Segment, len(starts))
	for i, start := range starts {
		s, err := profile.NewSegment(start, starts[(i+1)%len(starts)], total, testSegmentIDs[i])
		if err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
		segs[i] = s
	}
	if err := profile.LinkSegments(segs); err != nil {
		t.Fatalf("link: %v", err)
	}
	return segs
}

func newTestNucleus(t *testing.T, length, rp int, opts ...NucleusOption) *Nucleus {
	t.Helper()
	n, err := NewNucleus(uuid.New(),
		map[profile.Type]profile.Profile{profile.TypeAngle: angleProfile(t, length)},
		map[profile.Landmark]int{profile.LandmarkReferencePoint: rp},
		opts...)
	if err != nil {
		t.Fatalf("nucleus: %v", err)
	}
	return n
}

func newTestCell(t *testing.T, n *Nucleus) *Cell {
	t.Helper()
	c, err := NewCell(uuid.New(), n)
	if err != nil {
		t.Fatalf("cell: %v", err)
	}
	return c
}

// newPopulation returns a real collection with one unsegmented cell per
// length, each with its reference point at 0.
func newPopulation(t *testing.T, name string, lengths ...int) *RealCollection {
	t.Helper()
	rc, err := NewRealCollection(uuid.New(), name, testRuleSet())
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	for _, l := range lengths {
		if err := rc.Add(newTestCell(t, newTestNucleus(t, l, 0))); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return rc
}

func newRootFromPopulation(t *testing.T, rc *RealCollection) *Dataset {
	t.Helper()
	d, err := NewRootDataset(NewRegistry(), rc)
	if err != nil {
		t.Fatalf("root dataset: %v", err)
	}
	return d
}

func repeat(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// segmentedDataset builds a root dataset of five length-100 nuclei whose
// segments start at 3, 33 and 66. Four have their reference point on 3; the
// last has it at badRP. The median is segmented at 0, 30 and 63.
func segmentedDataset(t *testing.T, badRP int, opts ...NucleusOption) (*Dataset, *Cell) {
	t.Helper()
	rc, err := NewRealCollection(uuid.New(), "Sample", testRuleSet())
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	var bad *Cell
	for i := range 5 {
		rp := 3
		nopts := []NucleusOption{WithSegments(segmentsAt(t, 100, 3, 33, 66))}
		if i == 4 {
			rp = badRP
			nopts = append(nopts, opts...)
		}
		c := newTestCell(t, newTestNucleus(t, 100, rp, nopts...))
		if i == 4 {
			bad = c
		}
		if err := rc.Add(c); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	d := newRootFromPopulation(t, rc)
	if err := rc.ProfileCollection().SetSegments(segmentsAt(t, 100, 0, 30, 63)); err != nil {
		t.Fatalf("median segments: %v", err)
	}
	if err := rc.ProfileCollection().CalculateProfiles(); err != nil {
		t.Fatalf("calculate profiles: %v", err)
	}
	return d, bad
}
