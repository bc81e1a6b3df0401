package core

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// Nucleus is a profiled member object. Profiles and segments are stored in
// the nucleus's own absolute index frame; landmark indices point into it.
type Nucleus struct {
	id           uuid.UUID
	profiles     map[profile.Type]profile.Profile
	landmarks    map[profile.Landmark]int
	segments     []*profile.Segment
	locked       bool
	scale        float64
	measurements map[Measurement]float64
	signals      []Signal
}

// NucleusOption customises a nucleus at construction.
type NucleusOption func(*Nucleus) error

// WithSegments assigns absolute segments.
func WithSegments(segments []*profile.Segment) NucleusOption {
	return func(n *Nucleus) error { return n.setSegments(segments) }
}

// WithScale sets the pixels-per-micron scale.
func WithScale(pixelsPerMicron float64) NucleusOption {
	return func(n *Nucleus) error {
		n.scale = pixelsPerMicron
		return nil
	}
}

// WithMeasurements records pixel-scale measurements.
func WithMeasurements(values map[Measurement]float64) NucleusOption {
	return func(n *Nucleus) error {
		maps.Copy(n.measurements, values)
		return nil
	}
}

// WithSignals attaches detected signals.
func WithSignals(signals ...Signal) NucleusOption {
	return func(n *Nucleus) error {
		for _, s := range signals {
			n.signals = append(n.signals, s.clone())
		}
		return nil
	}
}

// Locked marks the nucleus as locked against landmark and segment edits.
func Locked() NucleusOption {
	return func(n *Nucleus) error {
		n.locked = true
		return nil
	}
}

// NewNucleus builds a nucleus from its border profiles and landmark indices.
// All profiles must share one length. Without WithSegments the nucleus
// carries the default whole-profile segment.
func NewNucleus(id uuid.UUID, profiles map[profile.Type]profile.Profile, landmarks map[profile.Landmark]int, opts ...NucleusOption) (*Nucleus, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("nucleus %s has no profiles: %w", id, domain.ErrComponentCreation)
	}
	length := -1
	for t, p := range profiles {
		if p.IsZero() {
			return nil, fmt.Errorf("nucleus %s profile %s is empty: %w", id, t, domain.ErrComponentCreation)
		}
		if length >= 0 && p.Len() != length {
			return nil, fmt.Errorf("nucleus %s profile %s has length %d, want %d: %w", id, t, p.Len(), length, domain.ErrComponentCreation)
		}
		length = p.Len()
	}
	for lm, idx := range landmarks {
		if idx < 0 || idx >= length {
			return nil, fmt.Errorf("nucleus %s landmark %q at %d: %w", id, lm, idx, domain.ErrIndexOutOfRange)
		}
	}
	def, err := profile.NewDefaultSegment(length)
	if err != nil {
		return nil, err
	}
	n := &Nucleus{
		id:           id,
		profiles:     maps.Clone(profiles),
		landmarks:    maps.Clone(landmarks),
		segments:     []*profile.Segment{def},
		scale:        1,
		measurements: make(map[Measurement]float64),
	}
	if n.landmarks == nil {
		n.landmarks = make(map[profile.Landmark]int)
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *Nucleus) ID() uuid.UUID { return n.id }

// BorderLength returns the number of border points profiled.
func (n *Nucleus) BorderLength() int {
	for _, t := range profile.AllTypes {
		if p, ok := n.profiles[t]; ok {
			return p.Len()
		}
	}
	for _, p := range n.profiles {
		return p.Len()
	}
	return 0
}

func (n *Nucleus) IsLocked() bool     { return n.locked }
func (n *Nucleus) SetLocked(b bool)   { n.locked = b }
func (n *Nucleus) Scale() float64     { return n.scale }
func (n *Nucleus) SetScale(s float64) { n.scale = s }
func (n *Nucleus) Signals() []Signal  { return cloneSignals(n.signals) }
func (n *Nucleus) AddSignal(s Signal) { n.signals = append(n.signals, s.clone()) }

func (n *Nucleus) HasProfile(t profile.Type) bool {
	_, ok := n.profiles[t]
	return ok
}

// RawProfile returns the profile of type t in the absolute frame.
func (n *Nucleus) RawProfile(t profile.Type) (profile.Profile, error) {
	p, ok := n.profiles[t]
	if !ok {
		return profile.Profile{}, fmt.Errorf("nucleus %s profile %s: %w", n.id, t, domain.ErrMissingProfile)
	}
	return p, nil
}

// HasLandmark reports whether lm is assigned.
func (n *Nucleus) HasLandmark(lm profile.Landmark) bool {
	_, ok := n.landmarks[lm]
	return ok
}

// LandmarkIndex returns the absolute index of lm.
func (n *Nucleus) LandmarkIndex(lm profile.Landmark) (int, error) {
	idx, ok := n.landmarks[lm]
	if !ok {
		return 0, fmt.Errorf("nucleus %s landmark %q: %w", n.id, lm, domain.ErrMissingLandmark)
	}
	return idx, nil
}

// Landmarks returns a copy of the landmark map.
func (n *Nucleus) Landmarks() map[profile.Landmark]int { return maps.Clone(n.landmarks) }

// SetLandmark moves lm to the absolute index idx. Segments are not moved.
func (n *Nucleus) SetLandmark(lm profile.Landmark, idx int) error {
	if n.locked {
		return fmt.Errorf("set landmark %q on nucleus %s: %w", lm, n.id, domain.ErrLocked)
	}
	if idx < 0 || idx >= n.BorderLength() {
		return fmt.Errorf("set landmark %q on nucleus %s to %d: %w", lm, n.id, idx, domain.ErrIndexOutOfRange)
	}
	n.landmarks[lm] = idx
	return nil
}

// Profile returns the profile of type t rotated so index 0 is lm.
func (n *Nucleus) Profile(t profile.Type, lm profile.Landmark) (profile.Profile, error) {
	raw, err := n.RawProfile(t)
	if err != nil {
		return profile.Profile{}, err
	}
	idx, err := n.LandmarkIndex(lm)
	if err != nil {
		return profile.Profile{}, err
	}
	return raw.StartFrom(idx), nil
}

// SegmentedProfile returns the profile of type t with the nucleus's segments,
// both rotated so index 0 is lm.
func (n *Nucleus) SegmentedProfile(t profile.Type, lm profile.Landmark) (profile.SegmentedProfile, error) {
	raw, err := n.RawProfile(t)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	idx, err := n.LandmarkIndex(lm)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	sp, err := profile.NewSegmented(raw, n.segments)
	if err != nil {
		return profile.SegmentedProfile{}, err
	}
	return sp.StartFrom(idx)
}

// Segments returns copies of the absolute segments.
func (n *Nucleus) Segments() []*profile.Segment {
	out, err := profile.CopySegments(n.segments)
	if err != nil {
		return nil
	}
	return out
}

// Segment returns a copy of the absolute segment with id.
func (n *Nucleus) Segment(id uuid.UUID) (*profile.Segment, error) {
	for _, s := range n.segments {
		if s.ID() == id {
			return s.Duplicate(), nil
		}
	}
	return nil, fmt.Errorf("nucleus %s segment %s: %w", n.id, id, domain.ErrMissingSegment)
}

// HasSegments reports whether the nucleus carries more than the default segment.
func (n *Nucleus) HasSegments() bool {
	return len(n.segments) > 1 || (len(n.segments) == 1 && n.segments[0].ID() != profile.DefaultSegmentID)
}

// SetSegments replaces the absolute segments.
func (n *Nucleus) SetSegments(segments []*profile.Segment) error {
	if n.locked {
		return fmt.Errorf("set segments on nucleus %s: %w", n.id, domain.ErrLocked)
	}
	return n.setSegments(segments)
}

// SetSegmentsRelativeTo assigns segments expressed with index 0 at lm.
func (n *Nucleus) SetSegmentsRelativeTo(lm profile.Landmark, segments []*profile.Segment) error {
	idx, err := n.LandmarkIndex(lm)
	if err != nil {
		return err
	}
	abs, err := profile.OffsetSegments(segments, idx)
	if err != nil {
		return err
	}
	return n.SetSegments(abs)
}

func (n *Nucleus) setSegments(segments []*profile.Segment) error {
	length := n.BorderLength()
	for _, s := range segments {
		if s.ProfileLength() != length {
			return fmt.Errorf("segment %s does not fit nucleus %s of length %d: %w", s, n.id, length, domain.ErrInvalidSegments)
		}
	}
	copied, err := profile.CopySegments(segments)
	if err != nil {
		return err
	}
	if err := profile.ValidateCover(copied); err != nil {
		return err
	}
	n.segments = copied
	return nil
}

// Measurement returns m in the requested scale.
func (n *Nucleus) Measurement(m Measurement, scale MeasurementScale) (float64, error) {
	v, ok := n.measurements[m]
	if !ok {
		if m != MeasurementPerimeter {
			return 0, fmt.Errorf("nucleus %s measurement %s: %w", n.id, m, domain.ErrNotFound{Entity: domain.EntityNucleus, ID: string(m)})
		}
		v = float64(n.BorderLength())
	}
	return Convert(v, m, scale, n.scale), nil
}

// HasMeasurement reports whether m is recorded.
func (n *Nucleus) HasMeasurement(m Measurement) bool {
	_, ok := n.measurements[m]
	return ok
}

// SetMeasurement records a pixel-scale value.
func (n *Nucleus) SetMeasurement(m Measurement, v float64) { n.measurements[m] = v }

// ClearMeasurement drops m.
func (n *Nucleus) ClearMeasurement(m Measurement) { delete(n.measurements, m) }

// MeasurementNames returns the recorded measurement names sorted.
func (n *Nucleus) MeasurementNames() []Measurement {
	return slices.Sorted(maps.Keys(n.measurements))
}

// ClearGroupMeasurements drops every measurement produced by a cluster group.
func (n *Nucleus) ClearGroupMeasurements(group uuid.UUID) int {
	cleared := 0
	for m := range n.measurements {
		if m.BelongsToGroup(group) {
			delete(n.measurements, m)
			cleared++
		}
	}
	return cleared
}

// Duplicate returns a deep copy.
func (n *Nucleus) Duplicate() *Nucleus {
	out := &Nucleus{
		id:           n.id,
		profiles:     maps.Clone(n.profiles),
		landmarks:    maps.Clone(n.landmarks),
		segments:     n.Segments(),
		locked:       n.locked,
		scale:        n.scale,
		measurements: maps.Clone(n.measurements),
		signals:      cloneSignals(n.signals),
	}
	return out
}
