package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Measurement names a scalar value recorded on a nucleus, cell or signal.
type Measurement string

// Built-in measurements.
const (
	MeasurementArea         Measurement = "AREA"
	MeasurementPerimeter    Measurement = "PERIMETER"
	MeasurementMinDiameter  Measurement = "MIN_DIAMETER"
	MeasurementCircularity  Measurement = "CIRCULARITY"
	MeasurementAspectRatio  Measurement = "ASPECT_RATIO"
	MeasurementVariability  Measurement = "VARIABILITY"
	MeasurementBoundHeight  Measurement = "BOUNDING_HEIGHT"
	MeasurementBoundWidth   Measurement = "BOUNDING_WIDTH"
	MeasurementLength       Measurement = "LENGTH"
	MeasurementNucleusCount Measurement = "NUCLEUS_COUNT"
)

// Dimension is the number of length units a measurement carries.
type Dimension int

const (
	DimensionNone Dimension = iota
	DimensionLength
	DimensionArea
)

var measurementDimensions = map[Measurement]Dimension{
	MeasurementArea:        DimensionArea,
	MeasurementPerimeter:   DimensionLength,
	MeasurementMinDiameter: DimensionLength,
	MeasurementBoundHeight: DimensionLength,
	MeasurementBoundWidth:  DimensionLength,
	MeasurementLength:      DimensionLength,
}

// Dimension reports how the measurement scales with pixel size.
func (m Measurement) Dimension() Dimension {
	return measurementDimensions[m]
}

// MeasurementScale selects the unit a value is reported in.
type MeasurementScale string

const (
	ScalePixels  MeasurementScale = "PIXELS"
	ScaleMicrons MeasurementScale = "MICRONS"
)

// Convert expresses a pixel value in the requested scale. pixelsPerMicron must
// be positive when converting to microns.
func Convert(value float64, m Measurement, scale MeasurementScale, pixelsPerMicron float64) float64 {
	if scale != ScaleMicrons || pixelsPerMicron <= 0 {
		return value
	}
	switch m.Dimension() {
	case DimensionLength:
		return value / pixelsPerMicron
	case DimensionArea:
		return value / (pixelsPerMicron * pixelsPerMicron)
	default:
		return value
	}
}

// Component selects what a statistic is measured on.
type Component string

const (
	ComponentCell    Component = "CELL"
	ComponentNucleus Component = "NUCLEUS"
	ComponentSegment Component = "NUCLEAR_BORDER_SEGMENT"
	ComponentSignal  Component = "NUCLEAR_SIGNAL"
)

// PrincipalComponentMeasurement names the value of component pc from the
// clustering run identified by group.
func PrincipalComponentMeasurement(pc int, group uuid.UUID) Measurement {
	return Measurement(fmt.Sprintf("PC%d_%s", pc, group))
}

// TSNEMeasurement names a t-SNE embedding dimension for a cluster group.
func TSNEMeasurement(dim int, group uuid.UUID) Measurement {
	return Measurement(fmt.Sprintf("TSNE_%d_%s", dim, group))
}

// UMAPMeasurement names a UMAP embedding dimension for a cluster group.
func UMAPMeasurement(dim int, group uuid.UUID) Measurement {
	return Measurement(fmt.Sprintf("UMAP_%d_%s", dim, group))
}

// BelongsToGroup reports whether m was produced by the cluster group.
func (m Measurement) BelongsToGroup(group uuid.UUID) bool {
	return strings.HasSuffix(string(m), group.String())
}
