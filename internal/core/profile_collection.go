package core

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// FixedProfileLength is the common length profiles are interpolated to when
// comparing members against the median.
const FixedProfileLength = 500

type cacheKey struct {
	Type     profile.Type
	Quantile int
	Landmark profile.Landmark
}

// ProfileCollection computes and caches aggregate profiles for a population.
// Aggregates are built at the working length, which is the median border
// length of the members. Index 0 of every stored frame is the reference
// landmark; segments and landmark indices are kept in that frame.
// It is safe for concurrent use.
type ProfileCollection struct {
	members   func() []*Nucleus
	types     []profile.Type
	reference profile.Landmark
	logger    *slog.Logger

	mu        sync.Mutex
	landmarks map[profile.Landmark]int
	segments  []*profile.Segment
	cache     map[cacheKey]profile.Profile
	length    int
}

// NewProfileCollection creates an empty collection over the nuclei returned
// by members, using the profile types and reference landmark of rs.
func NewProfileCollection(rs *profile.RuleSet, members func() []*Nucleus, logger *slog.Logger) (*ProfileCollection, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	ref, err := rs.ReferenceLandmark()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileCollection{
		members:   members,
		types:     slices.Clone(rs.ProfileTypes),
		reference: ref,
		landmarks: map[profile.Landmark]int{ref: 0},
		cache:     make(map[cacheKey]profile.Profile),
		logger:    logger,
	}, nil
}

// ReferenceLandmark returns the landmark pinned to index 0.
func (pc *ProfileCollection) ReferenceLandmark() profile.Landmark { return pc.reference }

// Types returns the profile types aggregated.
func (pc *ProfileCollection) Types() []profile.Type { return slices.Clone(pc.types) }

// Length returns the working length, recomputing it from the members.
func (pc *ProfileCollection) Length() (int, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.ensureLength()
}

func medianLength(members []*Nucleus) (int, error) {
	if len(members) == 0 {
		return 0, fmt.Errorf("median border length: %w", domain.ErrEmptyCollection)
	}
	lengths := make([]float64, len(members))
	for i, m := range members {
		lengths[i] = float64(m.BorderLength())
	}
	sort.Float64s(lengths)
	return int(stat.Quantile(0.5, stat.Empirical, lengths, nil)), nil
}

func rescaleIndex(i, from, to int) int {
	if from <= 0 || to <= 0 {
		return 0
	}
	return profile.WrapIndex(int(float64(i)/float64(from)*float64(to)), to)
}

// ensureLength tracks the members' median length. pc.mu must be held.
func (pc *ProfileCollection) ensureLength() (int, error) {
	n, err := medianLength(pc.members())
	if err != nil {
		return 0, err
	}
	if n == pc.length {
		return n, nil
	}
	if err := pc.resize(n); err != nil {
		return 0, err
	}
	return n, nil
}

func (pc *ProfileCollection) resize(n int) error {
	old := pc.length
	clear(pc.cache)
	segs, err := rescaleSegments(pc.segments, old, n)
	if err != nil {
		return err
	}
	pc.segments = segs
	if old > 0 {
		for lm, idx := range pc.landmarks {
			if lm != pc.reference {
				pc.landmarks[lm] = rescaleIndex(idx, old, n)
			}
		}
	}
	pc.length = n
	pc.logger.Debug("profile collection resized", slog.Int("from", old), slog.Int("to", n), slog.Int("segments", len(segs)))
	return nil
}

// rescaleSegments moves a reference-relative cover from length old to n by
// interpolating a zero template carrying it. Without a multi-segment cover the
// default segment is assigned.
func rescaleSegments(segs []*profile.Segment, old, n int) ([]*profile.Segment, error) {
	if old == n && len(segs) > 0 {
		return profile.CopySegments(segs)
	}
	if old <= 0 || len(segs) <= 1 {
		def, err := profile.NewDefaultSegment(n)
		if err != nil {
			return nil, err
		}
		return []*profile.Segment{def}, nil
	}
	template, err := profile.NewSegmented(profile.Zeros(old), segs)
	if err != nil {
		return nil, err
	}
	scaled, err := template.Interpolate(n)
	if err != nil {
		return nil, err
	}
	return scaled.Segments(), nil
}

func (pc *ProfileCollection) aggregate(t profile.Type, q, n int) (profile.Profile, error) {
	cols := make([][]float64, n)
	used := 0
	for _, m := range pc.members() {
		p, err := m.Profile(t, pc.reference)
		if err != nil {
			pc.logger.Debug("member skipped in aggregate",
				slog.String("nucleus", m.ID().String()),
				slog.String("type", string(t)),
				slog.Any("error", err))
			continue
		}
		resampled := p.Interpolate(n)
		for i := range cols {
			cols[i] = append(cols[i], resampled.Get(i))
		}
		used++
	}
	if used == 0 {
		return profile.Profile{}, fmt.Errorf("aggregate %s profile: %w", t, domain.ErrMissingProfile)
	}
	values := make([]float64, n)
	for i, col := range cols {
		sort.Float64s(col)
		values[i] = stat.Quantile(float64(q)/100, stat.Empirical, col, nil)
	}
	return profile.New(values)
}

// Profile returns the aggregate profile of type t at quantile q, rotated so
// index 0 is lm.
func (pc *ProfileCollection) Profile(t profile.Type, lm profile.Landmark, q int) (profile.Profile, error) {
	if q < 0 || q > 100 {
		return profile.Profile{}, fmt.Errorf("quantile %d: %w", q, domain.ErrIndexOutOfRange)
	}
	if !slices.Contains(pc.types, t) {
		return profile.Profile{}, fmt.Errorf("profile type %s not collected: %w", t, domain.ErrMissingProfile)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.profile(t, lm, q)
}

func (pc *ProfileCollection) profile(t profile.Type, lm profile.Landmark, q int) (profile.Profile, error) {
	n, err := pc.ensureLength()
	if err != nil {
		return profile.Profile{}, err
	}
	idx, ok := pc.landmarks[lm]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile collection landmark %q: %w", lm, domain.ErrMissingLandmark)
	}
	key := cacheKey{Type: t, Quantile: q, Landmark: lm}
	if p, ok := pc.cache[key]; ok {
		return p, nil
	}
	refKey := cacheKey{Type: t, Quantile: q, Landmark: pc.reference}
	base, ok := pc.cache[refKey]
	if !ok {
		base, err = pc.aggregate(t, q, n)
		if err != nil {
			return profile.Profile{}, err
		}
		pc.cache[refKey] = base
	}
	out := base.StartFrom(idx)
	pc.cache[key] = out
	return out, nil
}

// SegmentedProfile returns Profile(t, lm, q) with the collection's segments.
func (pc *ProfileCollection) SegmentedProfile(t profile.Type, lm profile.Landmark, q int) (profile.SegmentedProfile, error) {
	if q < 0 || q > 100 {
		return profile.SegmentedProfile{}, fmt.Errorf("quantile %d: %w", q, domain.ErrIndexOutOfRange)
	}
	if !slices.Contains(pc.types, t) {
		return profile.SegmentedProfile{}, fmt.Errorf("profile type %s not collected: %w", t, domain.ErrMissingProfile)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	p, err := pc.profile(t, pc.reference, q)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	if len(pc.segments) == 0 {
		return profile.SegmentedProfile{}, fmt.Errorf("profile collection has no segments: %w", domain.ErrMissingSegment)
	}
	idx, ok := pc.landmarks[lm]
	if !ok {
		return profile.SegmentedProfile{}, fmt.Errorf("profile collection landmark %q: %w", lm, domain.ErrMissingLandmark)
	}
	sp, err := profile.NewSegmented(p, pc.segments)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	return sp.StartFrom(idx)
}

// CalculateProfiles clears the cache and fills it for every profile type,
// landmark and aggregate quantile.
func (pc *ProfileCollection) CalculateProfiles() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	clear(pc.cache)
	if _, err := pc.ensureLength(); err != nil {
		return err
	}
	for _, t := range pc.types {
		for _, lm := range slices.Sorted(maps.Keys(pc.landmarks)) {
			for _, q := range profile.AggregateQuantiles {
				if _, err := pc.profile(t, lm, q); err != nil {
					return fmt.Errorf("calculate %s profile from %q: %w", t, lm, err)
				}
			}
		}
	}
	return nil
}

// InvalidateProfiles drops every cached aggregate.
func (pc *ProfileCollection) InvalidateProfiles() {
	pc.mu.Lock()
	clear(pc.cache)
	pc.mu.Unlock()
}

func (pc *ProfileCollection) isCached(t profile.Type, lm profile.Landmark, q int) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, ok := pc.cache[cacheKey{Type: t, Quantile: q, Landmark: lm}]
	return ok
}

// Landmarks returns the assigned landmarks in sorted order.
func (pc *ProfileCollection) Landmarks() []profile.Landmark {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return slices.Sorted(maps.Keys(pc.landmarks))
}

// HasLandmark reports whether lm is assigned.
func (pc *ProfileCollection) HasLandmark(lm profile.Landmark) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, ok := pc.landmarks[lm]
	return ok
}

// LandmarkIndex returns the index of lm relative to the reference landmark.
func (pc *ProfileCollection) LandmarkIndex(lm profile.Landmark) (int, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.landmarkIndex(lm)
}

func (pc *ProfileCollection) landmarkIndex(lm profile.Landmark) (int, error) {
	if _, err := pc.ensureLength(); err != nil {
		return 0, err
	}
	idx, ok := pc.landmarks[lm]
	if !ok {
		return 0, fmt.Errorf("profile collection landmark %q: %w", lm, domain.ErrMissingLandmark)
	}
	return idx, nil
}

// SetLandmark places lm at idx relative to the reference landmark. Only the
// cached profiles anchored on lm are dropped.
func (pc *ProfileCollection) SetLandmark(lm profile.Landmark, idx int) error {
	if lm == pc.reference {
		return fmt.Errorf("set landmark %q: %w", lm, domain.ErrReferenceMove)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	n, err := pc.ensureLength()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= n {
		return fmt.Errorf("set landmark %q to %d of %d: %w", lm, idx, n, domain.ErrIndexOutOfRange)
	}
	pc.landmarks[lm] = idx
	for key := range pc.cache {
		if key.Landmark == lm {
			delete(pc.cache, key)
		}
	}
	return nil
}

// Segments returns the segments expressed with index 0 at lm.
func (pc *ProfileCollection) Segments(lm profile.Landmark) ([]*profile.Segment, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	idx, err := pc.landmarkIndex(lm)
	if err != nil {
		return nil, err
	}
	if len(pc.segments) == 0 {
		return nil, fmt.Errorf("profile collection has no segments: %w", domain.ErrMissingSegment)
	}
	return profile.OffsetSegments(pc.segments, -idx)
}

// SetSegments replaces the segments. They are given relative to the reference
// landmark and must match the working length. All cached profiles are dropped.
func (pc *ProfileCollection) SetSegments(segments []*profile.Segment) error {
	if len(segments) == 0 {
		return fmt.Errorf("set segments: %w", domain.ErrInvalidSegments)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	n, err := pc.ensureLength()
	if err != nil {
		return err
	}
	for _, s := range segments {
		if s.ProfileLength() != n {
			return fmt.Errorf("segment %s does not fit working length %d: %w", s, n, domain.ErrInvalidSegments)
		}
	}
	stored, err := profile.OffsetSegments(segments, pc.landmarks[pc.reference])
	if err != nil {
		return err
	}
	if err := profile.ValidateCover(stored); err != nil {
		return err
	}
	pc.segments = stored
	clear(pc.cache)
	return nil
}

// SegmentIDs returns the segment ids in cover order.
func (pc *ProfileCollection) SegmentIDs() []uuid.UUID {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.refreshLength("segment ids")
	return profile.SegmentIDs(pc.segments)
}

// SegmentCount returns the number of segments.
func (pc *ProfileCollection) SegmentCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.refreshLength("segment count")
	return len(pc.segments)
}

// HasSegments reports whether a cover other than the default segment is set.
func (pc *ProfileCollection) HasSegments() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.refreshLength("has segments")
	return len(pc.segments) > 1 || (len(pc.segments) == 1 && pc.segments[0].ID() != profile.DefaultSegmentID)
}

// refreshLength is ensureLength for accessors that fall back to the stored
// segments when the working length cannot be computed.
func (pc *ProfileCollection) refreshLength(op string) {
	if _, err := pc.ensureLength(); err != nil {
		pc.logger.Debug("working length unavailable",
			slog.String("op", op),
			slog.Int("length", pc.length),
			slog.Any("error", err))
	}
}

// ProportionOfIndex maps an index onto [0, 1] across the working length.
func (pc *ProfileCollection) ProportionOfIndex(i int) (float64, error) {
	n, err := pc.Length()
	if err != nil {
		return 0, err
	}
	switch {
	case i < 0 || i >= n:
		return 0, fmt.Errorf("proportion of index %d in %d: %w", i, n, domain.ErrIndexOutOfRange)
	case i == 0:
		return 0, nil
	case i == n-1:
		return 1, nil
	default:
		return float64(i) / float64(n-1), nil
	}
}

// IndexOfProportion maps a proportion in [0, 1] onto the working length.
func (pc *ProfileCollection) IndexOfProportion(p float64) (int, error) {
	n, err := pc.Length()
	if err != nil {
		return 0, err
	}
	switch {
	case p < 0 || p > 1:
		return 0, fmt.Errorf("index of proportion %v: %w", p, domain.ErrIndexOutOfRange)
	case p == 0:
		return 0, nil
	case p == 1:
		return n - 1, nil
	default:
		return int(float64(n) * p), nil
	}
}

// Duplicate copies landmarks and segments onto a collection over members.
// The cache is not copied.
func (pc *ProfileCollection) Duplicate(members func() []*Nucleus) *ProfileCollection {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := &ProfileCollection{
		members:   members,
		types:     slices.Clone(pc.types),
		reference: pc.reference,
		landmarks: maps.Clone(pc.landmarks),
		cache:     make(map[cacheKey]profile.Profile),
		length:    pc.length,
		logger:    pc.logger,
	}
	if len(pc.segments) > 0 {
		segs, err := profile.CopySegments(pc.segments)
		if err != nil {
			// stored segments are always a linked cover of one length
			panic(err)
		}
		out.segments = segs
	}
	return out
}

// CopySegmentsAndLandmarksTo writes this collection's segments and landmark
// positions onto target, rescaled to the target's working length.
func (pc *ProfileCollection) CopySegmentsAndLandmarksTo(target *ProfileCollection) error {
	pc.mu.Lock()
	n, err := pc.ensureLength()
	if err != nil {
		pc.mu.Unlock()
		return err
	}
	var src []*profile.Segment
	if len(pc.segments) > 0 {
		src, err = profile.CopySegments(pc.segments)
	}
	landmarks := maps.Clone(pc.landmarks)
	pc.mu.Unlock()
	if err != nil {
		return err
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	tn, err := target.ensureLength()
	if err != nil {
		return err
	}
	segs, err := rescaleSegments(src, n, tn)
	if err != nil {
		return err
	}
	target.segments = segs
	for lm, idx := range landmarks {
		if lm == pc.reference {
			continue
		}
		target.landmarks[lm] = rescaleIndex(idx, n, tn)
	}
	clear(target.cache)
	return nil
}

func (pc *ProfileCollection) restore(length int, landmarks map[profile.Landmark]int, segments []*profile.Segment) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.length = length
	for lm, idx := range landmarks {
		pc.landmarks[lm] = idx
	}
	pc.landmarks[pc.reference] = 0
	switch {
	case len(segments) > 0:
		copied, err := profile.CopySegments(segments)
		if err != nil {
			return err
		}
		pc.segments = copied
	case length > 0:
		def, err := profile.NewDefaultSegment(length)
		if err != nil {
			return err
		}
		pc.segments = []*profile.Segment{def}
	}
	clear(pc.cache)
	return nil
}
