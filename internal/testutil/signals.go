// Package testutil holds deterministic signals and assertions shared by the
// package tests.
package testutil

import (
	"math"
	"math/rand"
)

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// NonZero returns the indices whose magnitude exceeds eps.
func NonZero(data []float64, eps float64) []int {
	var idx []int
	for i, v := range data {
		if math.Abs(v) > eps {
			idx = append(idx, i)
		}
	}
	return idx
}

// Peak returns the index and value of the largest magnitude sample,
// or -1 for an empty slice.
func Peak(data []float64) (int, float64) {
	best, val := -1, 0.0
	for i, v := range data {
		if best < 0 || math.Abs(v) > math.Abs(val) {
			best, val = i, v
		}
	}
	return best, val
}
