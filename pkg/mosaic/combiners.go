package mosaic

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// A Sample is one tile's contribution to one output pixel. Samples are
// only made for tiles that actually cover the pixel, and arrive in tile
// order.
type Sample struct {
	Value  float64
	Weight float64 // footprint x tile weight; always > 0
	Tile   int
}

// A CombinerFunc reduces the samples at a pixel to a single value. It is
// never called with an empty slice.
type CombinerFunc func(samples []Sample) float64

// {{{ CombineMean

// CombineMean is the weighted mean.
func CombineMean(samples []Sample) float64 {
	vals := make([]float64, len(samples))
	weights := make([]float64, len(samples))
	for i, s := range samples {
		vals[i], weights[i] = s.Value, s.Weight
	}
	return stat.Mean(vals, weights)
}

// }}}
// {{{ CombineSum

func CombineSum(samples []Sample) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s.Value * s.Weight
	}
	return sum
}

// }}}
// {{{ CombineMedian

// CombineMedian ignores the weights; with an even number of samples it
// returns the mean of the middle two.
func CombineMedian(samples []Sample) float64 {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.Value
	}
	sort.Float64s(vals)

	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// }}}
// {{{ CombineMin, CombineMax

func CombineMin(samples []Sample) float64 {
	v := math.Inf(1)
	for _, s := range samples {
		v = math.Min(v, s.Value)
	}
	return v
}

func CombineMax(samples []Sample) float64 {
	v := math.Inf(-1)
	for _, s := range samples {
		v = math.Max(v, s.Value)
	}
	return v
}

// }}}
// {{{ CombineFirst, CombineLast

// CombineFirst takes the value from the earliest tile in the list that
// covers the pixel; later tiles only fill in the gaps.
func CombineFirst(samples []Sample) float64 { return samples[0].Value }

// CombineLast is the opposite; later tiles are painted over earlier ones.
func CombineLast(samples []Sample) float64 { return samples[len(samples)-1].Value }

// }}}
