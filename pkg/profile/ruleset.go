package profile

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"nucleicore/pkg/domain"
)

// PriorityAxis selects which orientation axis wins when both are available.
type PriorityAxis string

const (
	AxisX PriorityAxis = "X"
	AxisY PriorityAxis = "Y"
)

// RuleSet binds orientation marks to landmarks and declares which profile
// types and measurements a population carries. Two collections can only be
// compared when their rule sets are equal.
type RuleSet struct {
	Name         string                       `yaml:"name"`
	Version      string                       `yaml:"version,omitempty"`
	Application  string                       `yaml:"application,omitempty"`
	PriorityAxis PriorityAxis                 `yaml:"priority_axis,omitempty"`
	ProfileTypes []Type                       `yaml:"profile_types"`
	Orientation  map[OrientationMark]Landmark `yaml:"orientation"`
	Measurements []string                     `yaml:"measurements,omitempty"`
}

// Built-in landmark names.
const (
	LandmarkReferencePoint   Landmark = "Reference point"
	LandmarkOrientationPoint Landmark = "Orientation point"
	LandmarkTopVertical      Landmark = "Top vertical"
	LandmarkBottomVertical   Landmark = "Bottom vertical"
)

// RoundRuleSet is the default rule set for round nuclei.
func RoundRuleSet() *RuleSet {
	return &RuleSet{
		Name:         "Round",
		Version:      "2.0.0",
		Application:  "via-median",
		ProfileTypes: slices.Clone(AllTypes),
		Orientation: map[OrientationMark]Landmark{
			MarkReference: LandmarkReferencePoint,
			MarkBottom:    LandmarkReferencePoint,
			MarkTop:       LandmarkOrientationPoint,
		},
		Measurements: []string{"AREA", "PERIMETER", "CIRCULARITY", "VARIABILITY"},
	}
}

// Validate checks that the rule set names a reference landmark and at least
// one profile type.
func (r *RuleSet) Validate() error {
	if r == nil {
		return fmt.Errorf("rule set: %w", domain.ErrComponentCreation)
	}
	if r.Name == "" {
		return fmt.Errorf("rule set has no name: %w", domain.ErrComponentCreation)
	}
	if _, ok := r.Orientation[MarkReference]; !ok {
		return fmt.Errorf("rule set %q has no reference landmark: %w", r.Name, domain.ErrMissingLandmark)
	}
	if len(r.ProfileTypes) == 0 {
		return fmt.Errorf("rule set %q declares no profile types: %w", r.Name, domain.ErrComponentCreation)
	}
	return nil
}

// ReferenceLandmark returns the landmark bound to MarkReference.
func (r *RuleSet) ReferenceLandmark() (Landmark, error) {
	lm, ok := r.Orientation[MarkReference]
	if !ok {
		return "", fmt.Errorf("rule set %q: %w", r.Name, domain.ErrMissingLandmark)
	}
	return lm, nil
}

// Landmark resolves an orientation mark.
func (r *RuleSet) Landmark(mark OrientationMark) (Landmark, bool) {
	lm, ok := r.Orientation[mark]
	return lm, ok
}

// OrientationMarks returns the bound marks in sorted order.
func (r *RuleSet) OrientationMarks() []OrientationMark {
	return slices.Sorted(maps.Keys(r.Orientation))
}

// Landmarks returns the distinct bound landmarks in sorted order.
func (r *RuleSet) Landmarks() []Landmark {
	seen := make(map[Landmark]struct{}, len(r.Orientation))
	for _, lm := range r.Orientation {
		seen[lm] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Clone returns a deep copy.
func (r *RuleSet) Clone() *RuleSet {
	if r == nil {
		return nil
	}
	out := *r
	out.ProfileTypes = slices.Clone(r.ProfileTypes)
	out.Orientation = maps.Clone(r.Orientation)
	out.Measurements = slices.Clone(r.Measurements)
	return &out
}

// Equal reports whether both rule sets declare the same name, profile types
// and orientation bindings.
func (r *RuleSet) Equal(other *RuleSet) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Name == other.Name &&
		slices.Equal(r.ProfileTypes, other.ProfileTypes) &&
		maps.Equal(r.Orientation, other.Orientation)
}

// DecodeRuleSet reads a YAML rule set and validates it.
func DecodeRuleSet(rd io.Reader) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode rule set: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRuleSetFile reads a YAML rule set from path.
func LoadRuleSetFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return DecodeRuleSet(bytes.NewReader(data))
}

// EncodeRuleSet writes r as YAML.
func EncodeRuleSet(w io.Writer, r *RuleSet) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode rule set: %w", err)
	}
	return enc.Close()
}
