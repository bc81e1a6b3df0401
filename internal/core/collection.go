package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// Collection is a population of cells with its aggregate profiles, consensus
// shape and statistics. A collection is either real, owning its cells, or
// virtual, holding ids that filter its parent dataset's cells.
type Collection interface {
	ID() uuid.UUID
	Name() string
	SetName(name string)
	IsReal() bool
	IsVirtual() bool
	RuleSet() *profile.RuleSet

	Cells() []*Cell
	CellIDs() []uuid.UUID
	Cell(id uuid.UUID) (*Cell, error)
	Nuclei() []*Nucleus
	Contains(id uuid.UUID) bool
	Size() int
	Add(c *Cell) error
	AddAll(cells []*Cell) error
	Remove(id uuid.UUID) error
	Clear()

	ProfileCollection() *ProfileCollection
	Consensus() (*Nucleus, bool)
	HasConsensus() bool
	SetConsensus(n *Nucleus)
	SignalGroups() []*SignalGroup
	SignalGroup(id uuid.UUID) (*SignalGroup, error)

	MedianArrayLength() (int, error)
	MaxProfileLength() int
	CountShared(other Collection) int
	SetSharedCount(other Collection, n int)

	Median(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) (float64, error)
	Min(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) (float64, error)
	Max(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) (float64, error)
	RawValues(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) ([]float64, error)
	NormalisedDifferenceToMedian(mark profile.OrientationMark, n *Nucleus) (float64, error)
	NucleusMostSimilarToMedian(mark profile.OrientationMark) (*Nucleus, error)
	InvalidateStatistics()

	Duplicate() Collection

	base() *collectionBase
	duplicate(reg *Registry) Collection
}

// collectionBase holds the state shared by real and virtual collections.
type collectionBase struct {
	self      Collection
	id        uuid.UUID
	name      string
	profiles  *ProfileCollection
	consensus *Nucleus
	stats     *statsCache
	venn      vennCache
	settings  settings

	membership atomic.Uint64
	// vennComputations counts shared-cell counts computed rather than served
	// from the venn cache.
	vennComputations atomic.Int64
}

func newCollectionBase(self Collection, id uuid.UUID, name string, rs *profile.RuleSet, s settings) (*collectionBase, error) {
	b := &collectionBase{
		self:     self,
		id:       id,
		name:     name,
		stats:    newStatsCache(s.metrics),
		venn:     vennCache{entries: make(map[uuid.UUID]vennEntry)},
		settings: s,
	}
	pc, err := NewProfileCollection(rs, func() []*Nucleus { return self.Nuclei() }, s.logger)
	if err != nil {
		return nil, err
	}
	b.profiles = pc
	return b, nil
}

func (b *collectionBase) base() *collectionBase { return b }

func (b *collectionBase) ID() uuid.UUID                         { return b.id }
func (b *collectionBase) Name() string                          { return b.name }
func (b *collectionBase) SetName(name string)                   { b.name = name }
func (b *collectionBase) ProfileCollection() *ProfileCollection { return b.profiles }
func (b *collectionBase) HasConsensus() bool                    { return b.consensus != nil }
func (b *collectionBase) SetConsensus(n *Nucleus)               { b.consensus = n }

// Consensus returns the consensus nucleus when one is set.
func (b *collectionBase) Consensus() (*Nucleus, bool) {
	return b.consensus, b.consensus != nil
}

// Nuclei returns the nuclei of every cell.
func (b *collectionBase) Nuclei() []*Nucleus {
	var out []*Nucleus
	for _, c := range b.self.Cells() {
		out = append(out, c.nuclei...)
	}
	return out
}

// MedianArrayLength returns the working length of the profile collection.
func (b *collectionBase) MedianArrayLength() (int, error) {
	return b.profiles.Length()
}

// MaxProfileLength returns the longest member border length.
func (b *collectionBase) MaxProfileLength() int {
	longest := 0
	for _, n := range b.Nuclei() {
		longest = max(longest, n.BorderLength())
	}
	return longest
}

// membershipChanged invalidates state derived from the member set.
func (b *collectionBase) membershipChanged() {
	b.membership.Add(1)
	b.stats.clear()
}

// InvalidateStatistics drops cached statistics.
func (b *collectionBase) InvalidateStatistics() { b.stats.clear() }

// CountShared returns the number of cells present in both collections.
func (b *collectionBase) CountShared(other Collection) int {
	if other == nil {
		return 0
	}
	self := b.self
	if other.ID() == b.id {
		return self.Size()
	}
	if v, ok := self.(*VirtualCollection); ok && v.parentID == other.ID() {
		return self.Size()
	}
	if v, ok := other.(*VirtualCollection); ok && v.parentID == b.id {
		return other.Size()
	}
	if !self.RuleSet().Equal(other.RuleSet()) {
		return 0
	}
	ob := other.base()
	sv, ov := b.membership.Load(), ob.membership.Load()
	if n, ok := b.venn.lookup(other.ID(), sv, ov); ok {
		return n
	}
	ids := make(map[uuid.UUID]struct{}, self.Size())
	for _, id := range self.CellIDs() {
		ids[id] = struct{}{}
	}
	count := 0
	for _, id := range other.CellIDs() {
		if _, ok := ids[id]; ok {
			count++
		}
	}
	b.vennComputations.Add(1)
	b.writeShared(ob, count, sv, ov)
	return count
}

// SetSharedCount records n as the shared-cell count in both collections.
func (b *collectionBase) SetSharedCount(other Collection, n int) {
	if other == nil || other.ID() == b.id {
		return
	}
	ob := other.base()
	b.writeShared(ob, n, b.membership.Load(), ob.membership.Load())
}

func (b *collectionBase) writeShared(ob *collectionBase, n int, sv, ov uint64) {
	first, second := &b.venn, &ob.venn
	if bytes.Compare(b.id[:], ob.id[:]) > 0 {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	b.venn.entries[ob.id] = vennEntry{count: n, selfVersion: sv, otherVersion: ov}
	ob.venn.entries[b.id] = vennEntry{count: n, selfVersion: ov, otherVersion: sv}
}

func (b *collectionBase) summary(ctx context.Context, key statKey) (statSummary, error) {
	return b.stats.get(ctx, key, func(ctx context.Context) ([]float64, error) {
		return b.computeValues(ctx, key)
	})
}

// Median returns the median of the statistic across the collection.
func (b *collectionBase) Median(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) (float64, error) {
	s, err := b.summary(ctx, statKey{stat, component, scale, subID})
	return s.median, err
}

// Min returns the smallest value of the statistic.
func (b *collectionBase) Min(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) (float64, error) {
	s, err := b.summary(ctx, statKey{stat, component, scale, subID})
	return s.min, err
}

// Max returns the largest value of the statistic.
func (b *collectionBase) Max(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) (float64, error) {
	s, err := b.summary(ctx, statKey{stat, component, scale, subID})
	return s.max, err
}

// RawValues returns the sorted values of the statistic.
func (b *collectionBase) RawValues(ctx context.Context, stat Measurement, component Component, scale MeasurementScale, subID uuid.UUID) ([]float64, error) {
	s, err := b.summary(ctx, statKey{stat, component, scale, subID})
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.values), nil
}

func (b *collectionBase) computeValues(ctx context.Context, key statKey) ([]float64, error) {
	cells := b.self.Cells()
	var median profile.Profile
	if key.Component == ComponentNucleus && key.Stat == MeasurementVariability {
		m, err := b.profiles.Profile(profile.TypeAngle, b.profiles.ReferenceLandmark(), profile.Median)
		if err != nil {
			return nil, err
		}
		median = m
	}
	perCell := make([][]float64, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.settings.workers)
	for i, c := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := b.cellValues(c, key, median)
			if err != nil {
				return err
			}
			perCell[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []float64
	for _, values := range perCell {
		out = append(out, values...)
	}
	b.settings.logger.Debug("computed statistic",
		slog.String("collection", b.id.String()),
		slog.String("stat", key.String()),
		slog.Int("values", len(out)))
	return out, nil
}

func isMissingData(err error) bool {
	var nf domain.ErrNotFound
	return errors.Is(err, domain.ErrMissingLandmark) ||
		errors.Is(err, domain.ErrMissingProfile) ||
		errors.Is(err, domain.ErrMissingSegment) ||
		errors.As(err, &nf)
}

func (b *collectionBase) cellValues(c *Cell, key statKey, median profile.Profile) ([]float64, error) {
	switch key.Component {
	case ComponentCell:
		v, err := c.Measurement(key.Stat, key.Scale)
		if err != nil {
			if isMissingData(err) {
				return nil, nil
			}
			return nil, err
		}
		return []float64{v}, nil
	case ComponentNucleus, ComponentSegment, ComponentSignal:
	default:
		return nil, fmt.Errorf("statistic on %s: %w", key.Component, domain.ErrUnknownComponent)
	}
	var out []float64
	for _, n := range c.nuclei {
		values, err := b.nucleusValues(n, key, median)
		if err != nil {
			if isMissingData(err) {
				b.settings.logger.Debug("nucleus skipped in statistic",
					slog.String("nucleus", n.ID().String()),
					slog.String("stat", key.String()),
					slog.Any("error", err))
				continue
			}
			return nil, err
		}
		out = append(out, values...)
	}
	return out, nil
}

func (b *collectionBase) nucleusValues(n *Nucleus, key statKey, median profile.Profile) ([]float64, error) {
	switch key.Component {
	case ComponentSegment:
		if key.Stat != MeasurementLength {
			return nil, fmt.Errorf("segment statistic %s: %w", key.Stat, domain.ErrUnknownComponent)
		}
		seg, err := n.Segment(key.SubID)
		if err != nil {
			return nil, err
		}
		perimeter, err := n.Measurement(MeasurementPerimeter, key.Scale)
		if err != nil {
			return nil, err
		}
		return []float64{float64(seg.Length()) / float64(n.BorderLength()) * perimeter}, nil
	case ComponentSignal:
		var out []float64
		for _, s := range n.signals {
			if s.GroupID != key.SubID {
				continue
			}
			if v, ok := s.Measurements[key.Stat]; ok {
				out = append(out, Convert(v, key.Stat, key.Scale, n.scale))
			}
		}
		return out, nil
	}
	if key.Stat == MeasurementVariability {
		p, err := n.Profile(profile.TypeAngle, b.profiles.ReferenceLandmark())
		if err != nil {
			return nil, err
		}
		return []float64{variability(p, median)}, nil
	}
	v, err := n.Measurement(key.Stat, key.Scale)
	if err != nil {
		return nil, err
	}
	return []float64{v}, nil
}

func variability(p, median profile.Profile) float64 {
	return math.Sqrt(p.AbsoluteSquareDifference(median, FixedProfileLength) / FixedProfileLength)
}

// NormalisedDifferenceToMedian returns the root mean square difference between
// the nucleus's angle profile and the median, both taken from mark.
func (b *collectionBase) NormalisedDifferenceToMedian(mark profile.OrientationMark, n *Nucleus) (float64, error) {
	lm, err := b.landmarkFor(mark)
	if err != nil {
		return 0, err
	}
	median, err := b.profiles.Profile(profile.TypeAngle, lm, profile.Median)
	if err != nil {
		return 0, err
	}
	p, err := n.Profile(profile.TypeAngle, lm)
	if err != nil {
		return 0, err
	}
	return variability(p, median), nil
}

// NucleusMostSimilarToMedian returns the nucleus whose angle profile from mark
// has the lowest difference to the median.
func (b *collectionBase) NucleusMostSimilarToMedian(mark profile.OrientationMark) (*Nucleus, error) {
	lm, err := b.landmarkFor(mark)
	if err != nil {
		return nil, err
	}
	median, err := b.profiles.Profile(profile.TypeAngle, lm, profile.Median)
	if err != nil {
		return nil, err
	}
	var best *Nucleus
	bestScore := math.Inf(1)
	for _, n := range b.Nuclei() {
		p, err := n.Profile(profile.TypeAngle, lm)
		if err != nil {
			continue
		}
		if score := p.AbsoluteSquareDifference(median, FixedProfileLength); score < bestScore {
			best, bestScore = n, score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("most similar nucleus: %w", domain.ErrEmptyCollection)
	}
	return best, nil
}

func (b *collectionBase) landmarkFor(mark profile.OrientationMark) (profile.Landmark, error) {
	rs := b.self.RuleSet()
	if rs == nil {
		return "", fmt.Errorf("orientation mark %s: %w", mark, domain.ErrMissingLandmark)
	}
	lm, ok := rs.Landmark(mark)
	if !ok {
		return "", fmt.Errorf("orientation mark %s: %w", mark, domain.ErrMissingLandmark)
	}
	return lm, nil
}

func compareIDs(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }

func sortCells(cells []*Cell) {
	slices.SortFunc(cells, func(a, b *Cell) int { return compareIDs(a.id, b.id) })
}
