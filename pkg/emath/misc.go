package emath

import "math"

// Some functions that only operate on basic types, that are useful

// https://www.sjbrown.co.uk/posts/gamma-correct-rendering/ - "linear RGB to sRGB"
// Expects f in the range [0,1]
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite is false for NaN and +-Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SnapToInt returns the nearest integer if v is within eps of it. Round
// trips through a transform and its inverse leave tiny residuals, and we
// want pixel centers to stay pixel centers.
func SnapToInt(v, eps float64) float64 {
	if r := math.Round(v); math.Abs(v-r) <= eps {
		return r
	}
	return v
}
