package core

import (
	"math"

	"github.com/meko-christian/algo-approx"
)

const (
	defaultEpsilon = 1e-12
	ln10           = 2.302585092994045684017991454684364208
)

// MinusInfDB is the floor reported for silent signals.
var MinusInfDB = math.Inf(-1)

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// NearlyEqual reports whether a and b are equal within eps.
func NearlyEqual(a, b, eps float64) bool {
	if eps <= 0 {
		eps = defaultEpsilon
	}

	diff := math.Abs(a - b)
	if diff <= eps {
		return true
	}

	largest := math.Max(math.Abs(a), math.Abs(b))
	if largest == 0 {
		return diff <= eps
	}

	return diff/largest <= eps
}

// FlushDenormals converts tiny denormal-like values to exact zero.
func FlushDenormals(x float64) float64 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0
	}

	return x
}

// FlushDenormalsBlock applies FlushDenormals to every sample of buf.
func FlushDenormalsBlock(buf []float64) {
	for i, v := range buf {
		buf[i] = FlushDenormals(v)
	}
}

// DBToGain converts dB to a linear gain coefficient (20*log10 convention).
// -Inf maps to 0. Gain changes happen on the control side, so this is exact.
func DBToGain(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

// GainToDB converts a linear gain to dB. Returns -Inf for zero and NaN for
// negative values.
func GainToDB(gain float64) float64 {
	if gain < 0 {
		return math.NaN()
	}

	if gain == 0 {
		return MinusInfDB
	}

	return 20 * math.Log10(gain)
}

// FastGainToDB is GainToDB through a fast logarithm approximation. Meters call
// it for every channel on every cycle.
func FastGainToDB(gain float64) float64 {
	if gain <= 0 {
		if gain < 0 {
			return math.NaN()
		}
		return MinusInfDB
	}

	return 20 * approx.FastLog(gain) / ln10
}

// FastDBToGain is DBToGain through a fast exponential approximation.
func FastDBToGain(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return approx.FastExp(db * ln10 / 20)
}

// RMS returns the root mean square of buf.
func RMS(buf []float64) float64 {
	if len(buf) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range buf {
		sum += v * v
	}
	return approx.FastSqrt(sum / float64(len(buf)))
}
