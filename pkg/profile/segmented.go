package profile

import (
	"fmt"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
)

// SegmentedProfile pairs a profile with a linked segment cover over it.
type SegmentedProfile struct {
	profile  Profile
	segments []*Segment
}

// NewSegmented wraps p with copies of segments. An empty list assigns the
// default whole-profile segment.
func NewSegmented(p Profile, segments []*Segment) (SegmentedProfile, error) {
	if p.IsZero() {
		return SegmentedProfile{}, fmt.Errorf("segmented profile: %w", domain.ErrComponentCreation)
	}
	if len(segments) == 0 {
		def, err := NewDefaultSegment(p.Len())
		if err != nil {
			return SegmentedProfile{}, err
		}
		segments = []*Segment{def}
	}
	for _, s := range segments {
		if s.total != p.Len() {
			return SegmentedProfile{}, fmt.Errorf("segment %s does not fit profile of length %d: %w", s, p.Len(), domain.ErrInvalidSegments)
		}
	}
	copied, err := CopySegments(segments)
	if err != nil {
		return SegmentedProfile{}, err
	}
	return SegmentedProfile{profile: p, segments: copied}, nil
}

// Profile returns the underlying profile.
func (sp SegmentedProfile) Profile() Profile { return sp.profile }

// Len returns the profile length.
func (sp SegmentedProfile) Len() int { return sp.profile.Len() }

// Get returns the value at the wrapped index i.
func (sp SegmentedProfile) Get(i int) float64 { return sp.profile.Get(i) }

// Segments returns a linked copy of the cover.
func (sp SegmentedProfile) Segments() []*Segment {
	out, err := CopySegments(sp.segments)
	if err != nil {
		return nil
	}
	return out
}

// SegmentCount returns the number of segments.
func (sp SegmentedProfile) SegmentCount() int { return len(sp.segments) }

// SegmentIDs returns segment ids in cover order.
func (sp SegmentedProfile) SegmentIDs() []uuid.UUID { return SegmentIDs(sp.segments) }

// HasSegment reports whether a segment with id exists.
func (sp SegmentedProfile) HasSegment(id uuid.UUID) bool {
	for _, s := range sp.segments {
		if s.id == id {
			return true
		}
	}
	return false
}

// Segment returns a copy of the segment with id.
func (sp SegmentedProfile) Segment(id uuid.UUID) (*Segment, error) {
	for _, s := range sp.segments {
		if s.id == id {
			return s.Duplicate(), nil
		}
	}
	return nil, fmt.Errorf("segment %s: %w", id, domain.ErrMissingSegment)
}

// SegmentContaining returns a copy of the segment covering index i. A segment
// starting at i wins over one ending there.
func (sp SegmentedProfile) SegmentContaining(i int) (*Segment, error) {
	if i < 0 || i >= sp.Len() {
		return nil, fmt.Errorf("segment containing %d: %w", i, domain.ErrIndexOutOfRange)
	}
	var found *Segment
	for _, s := range sp.segments {
		if s.start == i {
			return s.Duplicate(), nil
		}
		if found == nil && s.Contains(i) {
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("segment containing %d: %w", i, domain.ErrMissingSegment)
	}
	return found.Duplicate(), nil
}

// StartFrom rotates the profile so index 0 is old index k and moves every
// segment boundary by -k.
func (sp SegmentedProfile) StartFrom(k int) (SegmentedProfile, error) {
	segs, err := OffsetSegments(sp.segments, -k)
	if err != nil {
		return SegmentedProfile{}, err
	}
	return SegmentedProfile{profile: sp.profile.StartFrom(k), segments: segs}, nil
}

// Interpolate resamples the profile to length n and places each segment start
// proportionally. Starts are kept strictly increasing around the ring.
func (sp SegmentedProfile) Interpolate(n int) (SegmentedProfile, error) {
	resampled := sp.profile.Interpolate(n)
	if len(sp.segments) <= 1 {
		return NewSegmented(resampled, nil)
	}
	total := sp.Len()
	first := sp.segments[0].start
	base := scaleIndex(first, total, n)
	rel := make([]int, len(sp.segments))
	for i, s := range sp.segments {
		d := WrapIndex(s.start-first, total)
		rel[i] = int(float64(d) / float64(total) * float64(n))
		if i > 0 && rel[i] <= rel[i-1] {
			rel[i] = rel[i-1] + 1
		}
	}
	if rel[len(rel)-1] >= n {
		return SegmentedProfile{}, fmt.Errorf("cannot fit %d segments into length %d: %w", len(rel), n, domain.ErrInvalidSegments)
	}
	segs := make([]*Segment, 0, len(sp.segments))
	for i, s := range sp.segments {
		start := WrapIndex(base+rel[i], n)
		end := WrapIndex(base+rel[(i+1)%len(rel)], n)
		seg, err := NewSegment(start, end, n, s.id)
		if err != nil {
			return SegmentedProfile{}, err
		}
		seg.locked = s.locked
		segs = append(segs, seg)
	}
	if err := LinkSegments(segs); err != nil {
		return SegmentedProfile{}, err
	}
	return SegmentedProfile{profile: resampled, segments: segs}, nil
}
