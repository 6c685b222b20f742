package testutil

import (
	"math"
	"testing"
)

// RequireSliceNearlyEqual fails t at the first sample where got and want
// differ by more than eps, or when their lengths differ.
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	if i, d := MaxAbsDiff(got, want); d > eps {
		t.Fatalf("sample %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], d, eps)
	}
}

// MaxAbsDiff returns the index and size of the largest absolute difference
// over the common prefix of a and b. It returns (-1, 0) when the prefix is
// empty.
func MaxAbsDiff(a, b []float64) (int, float64) {
	at, worst := -1, 0.0
	for i := range min(len(a), len(b)) {
		d := math.Abs(a[i] - b[i])
		if at < 0 || d > worst || math.IsNaN(d) {
			at, worst = i, d
			if math.IsNaN(d) {
				return at, math.Inf(1)
			}
		}
	}
	return at, worst
}
