package profile

import (
	"fmt"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
)

const (
	// MinimumSegmentLength is the shortest segment produced by segmentation.
	MinimumSegmentLength = 10
	// InterpolationMinimumLength is the shortest segment that can be resampled.
	InterpolationMinimumLength = 2
)

// DefaultSegmentID identifies the single segment spanning an unsegmented profile.
var DefaultSegmentID = uuid.MustParse("11111111-2222-3333-4444-555566667777")

// Segment is a named inclusive index range over a circular profile. Adjacent
// segments share endpoints: the end of one is the start of the next. A segment
// wraps when its end is not after its start; a segment whose start equals its
// end covers the whole ring.
type Segment struct {
	id       uuid.UUID
	start    int
	end      int
	total    int
	position int
	locked   bool
	prev     *Segment
	next     *Segment
	sources  []*Segment
}

// NewSegment validates and constructs a segment over a profile of length total.
func NewSegment(start, end, total int, id uuid.UUID) (*Segment, error) {
	if total <= 0 {
		return nil, fmt.Errorf("segment over profile of length %d: %w", total, domain.ErrInvalidSegments)
	}
	if id == DefaultSegmentID && start != end {
		return nil, fmt.Errorf("default segment %d-%d does not span the profile: %w", start, end, domain.ErrInvalidSegments)
	}
	if start < 0 || end < 0 || start >= total || end >= total {
		return nil, fmt.Errorf("segment %d-%d outside profile of length %d: %w", start, end, total, domain.ErrIndexOutOfRange)
	}
	length := SegmentLength(start, end, total)
	if length < InterpolationMinimumLength {
		return nil, fmt.Errorf("segment %d-%d shorter than %d: %w", start, end, InterpolationMinimumLength, domain.ErrInvalidSegments)
	}
	if start != end && total-length < InterpolationMinimumLength {
		return nil, fmt.Errorf("segment %d-%d too long for profile of length %d: %w", start, end, total, domain.ErrInvalidSegments)
	}
	return &Segment{id: id, start: start, end: end, total: total}, nil
}

// NewDefaultSegment returns the whole-profile segment anchored at index 0.
func NewDefaultSegment(total int) (*Segment, error) {
	return NewSegment(0, 0, total, DefaultSegmentID)
}

// SegmentLength returns the inclusive length of start..end on a ring of size total.
func SegmentLength(start, end, total int) int {
	if end <= start {
		return end + total + 1 - start
	}
	return end - start + 1
}

// Contains reports whether index lies within start..end on a ring of size total.
func Contains(start, end, index, total int) bool {
	if index < 0 || index >= total {
		return false
	}
	if end <= start {
		return index <= end || index >= start
	}
	return index >= start && index <= end
}

func (s *Segment) ID() uuid.UUID      { return s.id }
func (s *Segment) Start() int         { return s.start }
func (s *Segment) End() int           { return s.end }
func (s *Segment) ProfileLength() int { return s.total }
func (s *Segment) Position() int      { return s.position }
func (s *Segment) Locked() bool       { return s.locked }
func (s *Segment) SetLocked(b bool)   { s.locked = b }
func (s *Segment) Next() *Segment     { return s.next }
func (s *Segment) Prev() *Segment     { return s.prev }

// Length returns the inclusive number of indices covered.
func (s *Segment) Length() int { return SegmentLength(s.start, s.end, s.total) }

// Wraps reports whether the segment crosses index 0.
func (s *Segment) Wraps() bool { return s.end <= s.start }

// IsLongEnough reports whether the segment meets MinimumSegmentLength.
func (s *Segment) IsLongEnough() bool { return s.Length() >= MinimumSegmentLength }

// Contains reports whether index falls within the segment.
func (s *Segment) Contains(index int) bool {
	return Contains(s.start, s.end, index, s.total)
}

// Indices lists the covered indices from start to end.
func (s *Segment) Indices() []int {
	n := s.Length()
	out := make([]int, n)
	for i := range out {
		out[i] = WrapIndex(s.start+i, s.total)
	}
	return out
}

// OverlapsBeyondEndpoints reports whether any index strictly inside this
// segment is covered by other. Shared endpoints are allowed.
func (s *Segment) OverlapsBeyondEndpoints(other *Segment) bool {
	if other == nil || other.total != s.total {
		return false
	}
	for _, idx := range s.Indices() {
		if idx == s.start || idx == s.end {
			continue
		}
		if other.Contains(idx) {
			return true
		}
	}
	return false
}

// Duplicate returns an unlinked deep copy, merge sources included.
func (s *Segment) Duplicate() *Segment {
	out := &Segment{id: s.id, start: s.start, end: s.end, total: s.total, position: s.position, locked: s.locked}
	for _, src := range s.sources {
		out.sources = append(out.sources, src.Duplicate())
	}
	return out
}

// Offset returns an unlinked copy with both boundaries moved by k, wrapping.
// Merge sources move with it.
func (s *Segment) Offset(k int) *Segment {
	out := &Segment{
		id:       s.id,
		start:    WrapIndex(s.start+k, s.total),
		end:      WrapIndex(s.end+k, s.total),
		total:    s.total,
		position: s.position,
		locked:   s.locked,
	}
	for _, src := range s.sources {
		out.sources = append(out.sources, src.Offset(k))
	}
	return out
}

// Interpolate rescales the boundaries proportionally onto a profile of length
// n. Merge sources are not carried across.
func (s *Segment) Interpolate(n int) (*Segment, error) {
	if n <= 0 {
		panic(fmt.Sprintf("profile: cannot interpolate segment to length %d", n))
	}
	start := scaleIndex(s.start, s.total, n)
	end := scaleIndex(s.end, s.total, n)
	out, err := NewSegment(start, end, n, s.id)
	if err != nil {
		return nil, err
	}
	out.locked = s.locked
	out.position = s.position
	return out, nil
}

func scaleIndex(i, from, to int) int {
	return WrapIndex(int(float64(i)/float64(from)*float64(to)), to)
}

// MergeSources returns copies of the segments this one was merged from.
func (s *Segment) MergeSources() []*Segment {
	out := make([]*Segment, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.Duplicate())
	}
	return out
}

// MergeSourceIDs returns the ids of the direct merge sources.
func (s *Segment) MergeSourceIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.id)
	}
	return out
}

// HasMergeSources reports whether the segment records any provenance.
func (s *Segment) HasMergeSources() bool { return len(s.sources) > 0 }

// HasMergeSource reports whether id is this segment or any merge source,
// searched recursively.
func (s *Segment) HasMergeSource(id uuid.UUID) bool {
	if s.id == id {
		return true
	}
	for _, src := range s.sources {
		if src.HasMergeSource(id) {
			return true
		}
	}
	return false
}

// AddMergeSource records src as provenance. At most two sources are kept and
// each must lie within this segment. The default segment is never recorded.
func (s *Segment) AddMergeSource(src *Segment) error {
	if src.id == DefaultSegmentID {
		return nil
	}
	switch {
	case src.id == s.id:
		return fmt.Errorf("merge source shares id %s with parent: %w", src.id, domain.ErrInvalidSegments)
	case len(s.sources) >= 2:
		return fmt.Errorf("segment %s already has two merge sources: %w", s.id, domain.ErrInvalidSegments)
	case src.total != s.total:
		return fmt.Errorf("merge source length %d does not match %d: %w", src.total, s.total, domain.ErrInvalidSegments)
	case !s.Contains(src.start) || !s.Contains(src.end):
		return fmt.Errorf("merge source %s not within %s: %w", src, s, domain.ErrInvalidSegments)
	case src.Length() > s.Length():
		return fmt.Errorf("merge source %s longer than %s: %w", src, s, domain.ErrInvalidSegments)
	}
	for _, existing := range s.sources {
		if existing.id == src.id {
			return fmt.Errorf("segment %s is already a merge source: %w", src.id, domain.ErrInvalidSegments)
		}
	}
	s.sources = append(s.sources, src.Duplicate())
	return nil
}

// ClearMergeSources drops all provenance.
func (s *Segment) ClearMergeSources() { s.sources = nil }

// Equal compares boundaries, ids, lock state and merge sources.
func (s *Segment) Equal(other *Segment) bool {
	if other == nil {
		return false
	}
	if s.id != other.id || s.start != other.start || s.end != other.end || s.total != other.total || s.locked != other.locked {
		return false
	}
	if len(s.sources) != len(other.sources) {
		return false
	}
	for i := range s.sources {
		if !s.sources[i].Equal(other.sources[i]) {
			return false
		}
	}
	return true
}

func (s *Segment) String() string {
	return fmt.Sprintf("Segment %s %d-%d of %d", s.id, s.start, s.end, s.total)
}

// LinkSegments sets neighbour links and positions, and snaps the first
// segment's start onto the last segment's end so the list closes the ring.
func LinkSegments(list []*Segment) error {
	if len(list) == 0 {
		return fmt.Errorf("link segments: %w", domain.ErrInvalidSegments)
	}
	total := list[0].total
	for _, s := range list {
		if s.total != total {
			return fmt.Errorf("link segments: mixed profile lengths %d and %d: %w", total, s.total, domain.ErrInvalidSegments)
		}
	}
	n := len(list)
	if n > 1 {
		first, last := list[0], list[n-1]
		if first.start != last.end {
			if SegmentLength(last.end, first.end, total) < InterpolationMinimumLength {
				return fmt.Errorf("link segments: cannot move %s start to %d: %w", first, last.end, domain.ErrInvalidSegments)
			}
			first.start = last.end
		}
	}
	for i, s := range list {
		s.prev = list[(i-1+n)%n]
		s.next = list[(i+1)%n]
		s.position = i
	}
	return nil
}

// CopySegments deep copies and relinks a segment list.
func CopySegments(list []*Segment) ([]*Segment, error) {
	out := make([]*Segment, 0, len(list))
	for _, s := range list {
		out = append(out, s.Duplicate())
	}
	if err := LinkSegments(out); err != nil {
		return nil, err
	}
	return out, nil
}

// OffsetSegments returns linked copies of list with every boundary moved by k.
func OffsetSegments(list []*Segment, k int) ([]*Segment, error) {
	out := make([]*Segment, 0, len(list))
	for _, s := range list {
		out = append(out, s.Offset(k))
	}
	if err := LinkSegments(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateCover checks that list forms a complete circular cover: each end
// meets the next start and the walk spans the profile exactly once.
func ValidateCover(list []*Segment) error {
	if len(list) == 0 {
		return fmt.Errorf("validate cover: %w", domain.ErrInvalidSegments)
	}
	total := list[0].total
	if len(list) == 1 {
		if list[0].start != list[0].end {
			return fmt.Errorf("single segment %s does not span the profile: %w", list[0], domain.ErrInvalidSegments)
		}
		return nil
	}
	span := 0
	for i, s := range list {
		next := list[(i+1)%len(list)]
		if s.total != total {
			return fmt.Errorf("segment %s has length %d, want %d: %w", s, s.total, total, domain.ErrInvalidSegments)
		}
		if s.end != next.start {
			return fmt.Errorf("segment %s does not meet %s: %w", s, next, domain.ErrInvalidSegments)
		}
		span += s.Length() - 1
	}
	if span != total {
		return fmt.Errorf("segments span %d of %d indices: %w", span, total, domain.ErrInvalidSegments)
	}
	return nil
}

// SegmentIDs returns the ids of list in order.
func SegmentIDs(list []*Segment) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(list))
	for _, s := range list {
		out = append(out, s.id)
	}
	return out
}

// MergeSegments combines two adjacent segments into one new segment with the
// given id, recording both originals as merge sources.
func MergeSegments(first, second *Segment, id uuid.UUID) (*Segment, error) {
	if first.total != second.total {
		return nil, fmt.Errorf("merge %s and %s: %w", first, second, domain.ErrInvalidSegments)
	}
	if first.end != second.start {
		return nil, fmt.Errorf("merge %s and %s: segments are not adjacent: %w", first, second, domain.ErrInvalidSegments)
	}
	merged, err := NewSegment(first.start, second.end, first.total, id)
	if err != nil {
		return nil, err
	}
	if err := merged.AddMergeSource(first); err != nil {
		return nil, err
	}
	if err := merged.AddMergeSource(second); err != nil {
		return nil, err
	}
	return merged, nil
}
