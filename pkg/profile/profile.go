// Package profile models circular border profiles, the segments partitioning
// them and the landmarks anchored on them.
package profile

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"nucleicore/pkg/domain"
)

// Profile is an immutable circular sequence of values. Index arithmetic wraps
// modulo the length.
type Profile struct {
	values []float64
}

// New copies values into a profile. An empty slice is rejected.
func New(values []float64) (Profile, error) {
	if len(values) == 0 {
		return Profile{}, fmt.Errorf("new profile: %w", domain.ErrComponentCreation)
	}
	return Profile{values: append([]float64(nil), values...)}, nil
}

// Zeros returns a profile of length n filled with zeros.
func Zeros(n int) Profile {
	if n <= 0 {
		panic(fmt.Sprintf("profile: zero profile of length %d", n))
	}
	return Profile{values: make([]float64, n)}
}

// Len returns the number of samples.
func (p Profile) Len() int { return len(p.values) }

// IsZero reports whether p is the zero value.
func (p Profile) IsZero() bool { return len(p.values) == 0 }

// Values returns a copy of the samples.
func (p Profile) Values() []float64 {
	return append([]float64(nil), p.values...)
}

// Get returns the value at the wrapped index i.
func (p Profile) Get(i int) float64 {
	return p.values[p.WrapIndex(i)]
}

// WrapIndex maps any integer onto [0, Len).
func (p Profile) WrapIndex(i int) int {
	return WrapIndex(i, len(p.values))
}

// WrapIndex maps i onto [0, n).
func WrapIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i % n) + n) % n
}

// StartFrom returns the profile rotated so that index 0 holds the old index k.
func (p Profile) StartFrom(k int) Profile {
	n := len(p.values)
	out := make([]float64, n)
	for i := range out {
		out[i] = p.values[WrapIndex(i+k, n)]
	}
	return Profile{values: out}
}

// Offset is an alias of StartFrom.
func (p Profile) Offset(k int) Profile { return p.StartFrom(k) }

// Interpolate resamples the profile to length n with piecewise-linear
// interpolation over the circular domain. n must be positive.
func (p Profile) Interpolate(n int) Profile {
	if n <= 0 {
		panic(fmt.Sprintf("profile: cannot interpolate to length %d", n))
	}
	size := len(p.values)
	if size == 0 {
		panic("profile: cannot interpolate an empty profile")
	}
	if n == size {
		return Profile{values: p.Values()}
	}
	step := float64(size) / float64(n)
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * step
		lower := math.Floor(pos)
		frac := pos - lower
		j0 := WrapIndex(int(lower), size)
		j1 := WrapIndex(j0+1, size)
		out[i] = p.values[j0] + frac*(p.values[j1]-p.values[j0])
	}
	return Profile{values: out}
}

// AbsoluteSquareDifference interpolates both profiles to length n and returns
// the sum of squared pointwise differences. Lower values are more similar.
func (p Profile) AbsoluteSquareDifference(other Profile, n int) float64 {
	a := p.Interpolate(n).values
	b := other.Interpolate(n).values
	diff := make([]float64, n)
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff)
}

// FractionOfIndex returns i / Len.
func (p Profile) FractionOfIndex(i int) (float64, error) {
	if i < 0 || i >= len(p.values) {
		return 0, fmt.Errorf("fraction of index %d in profile of length %d: %w", i, len(p.values), domain.ErrIndexOutOfRange)
	}
	return float64(i) / float64(len(p.values)), nil
}

// IndexOfMin returns the index holding the smallest value.
func (p Profile) IndexOfMin() int { return floats.MinIdx(p.values) }

// IndexOfMax returns the index holding the largest value.
func (p Profile) IndexOfMax() int { return floats.MaxIdx(p.values) }

// Equal reports whether both profiles hold identical samples.
func (p Profile) Equal(other Profile) bool {
	return floats.Equal(p.values, other.values)
}

// EqualApprox reports whether both profiles match within tol at every index.
func (p Profile) EqualApprox(other Profile, tol float64) bool {
	return floats.EqualApprox(p.values, other.values, tol)
}

func (p Profile) String() string {
	return fmt.Sprintf("Profile(len=%d)", len(p.values))
}
