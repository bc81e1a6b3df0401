package profile

// Type identifies the measurement sampled around a border to build a profile.
type Type string

const (
	// TypeAngle is the interior angle measured at each border point.
	TypeAngle Type = "ANGLE"
	// TypeDiameter is the distance across the object through the centre of mass.
	TypeDiameter Type = "DIAMETER"
	// TypeRadius is the distance from each border point to the centre of mass.
	TypeRadius Type = "RADIUS"
)

// AllTypes lists every profile type in declaration order.
var AllTypes = []Type{TypeAngle, TypeDiameter, TypeRadius}

// Landmark is a named anchor bound to an index within a profile.
type Landmark string

// OrientationMark is a semantic role resolved to a Landmark through a RuleSet.
type OrientationMark string

const (
	MarkReference OrientationMark = "REFERENCE"
	MarkTop       OrientationMark = "TOP"
	MarkBottom    OrientationMark = "BOTTOM"
	MarkLeft      OrientationMark = "LEFT"
	MarkRight     OrientationMark = "RIGHT"
	MarkX         OrientationMark = "X"
	MarkY         OrientationMark = "Y"
)

// Quantiles computed for every aggregate profile.
const (
	Median        = 50
	LowerQuartile = 25
	UpperQuartile = 75
)

// AggregateQuantiles are the quantiles populated eagerly by profile calculation.
var AggregateQuantiles = []int{Median, LowerQuartile, UpperQuartile}
