// Package interptest provides helpers shared by the interpolation engine
// tests.
package interptest

import (
	"math"
	"math/rand"
	"testing"
)

// RandomPoints generates n points of the given dimension with coordinates
// drawn uniformly from [min, max]. The seed fixes the sequence so tests stay
// reproducible.
func RandomPoints(n, dim int, min, max float64, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, dim)
		for j := range p {
			p[j] = min + rng.Float64()*(max-min)
		}
		points[i] = p
	}
	return points
}

// Points1D wraps scalar samples as one-dimensional points.
func Points1D(xs ...float64) [][]float64 {
	points := make([][]float64, len(xs))
	for i, x := range xs {
		points[i] = []float64{x}
	}
	return points
}

// Apply evaluates f at every point and returns the resulting values.
func Apply(points [][]float64, f func([]float64) float64) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = f(p)
	}
	return values
}

// AssertFloatsEqual checks if two float64 slices are approximately equal.
func AssertFloatsEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertInDelta checks if got is within tol of want.
func AssertInDelta(t *testing.T, got, want, tol float64) {
	t.Helper()

	if math.Abs(got-want) > tol {
		t.Fatalf("got %v, want %v (tolerance %v)", got, want, tol)
	}
}
