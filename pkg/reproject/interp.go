package reproject

import (
	"math"

	"golang.org/x/image/draw"
)

// maxTaps is enough for the widest kernel we use (CatmullRom, support 2).
const maxTaps = 4

// kernelWeights fills w with the 1-D weights for the taps around s,
// and returns the index of the first tap and the number of taps.
func kernelWeights(k *draw.Kernel, s float64, w *[maxTaps]float64) (int, int) {
	support := int(math.Ceil(k.Support))
	n := 2 * support
	first := int(math.Floor(s)) - support + 1

	for i := 0; i < n; i++ {
		d := math.Abs(s - float64(first+i))
		if d >= k.Support {
			w[i] = 0
		} else {
			w[i] = k.At(d)
		}
	}
	return first, n
}

// fillKernel interpolates with a separable kernel. Neighbours with zero
// weight are never looked at, so a source coordinate that lands exactly
// on a pixel center returns that pixel untouched, even at the image edge.
func fillKernel(k *draw.Kernel, edge EdgePolicy, cm coordMap, src plane, cov *coverage) {
	var wx, wy [maxTaps]float64

	for i := range cm.ok {
		if !cm.ok[i] {
			cov.set(i, math.NaN(), 0)
			continue
		}

		x0, nx := kernelWeights(k, cm.sx[i], &wx)
		y0, ny := kernelWeights(k, cm.sy[i], &wy)

		sumAll, sumValid := 0.0, 0.0 // absolute weights, for the footprint
		sumW, sumWV := 0.0, 0.0
		missing := false

		for j := 0; j < ny; j++ {
			if wy[j] == 0 {
				continue
			}
			for l := 0; l < nx; l++ {
				w := wx[l] * wy[j]
				if w == 0 {
					continue
				}
				sumAll += math.Abs(w)

				v, ok := src.at(x0+l, y0+j)
				if !ok {
					missing = true
					continue
				}
				sumValid += math.Abs(w)
				sumW += w
				sumWV += w * v
			}
		}

		switch {
		case missing && edge == EdgeStrict:
			cov.set(i, math.NaN(), 0)
		case sumValid == 0 || math.Abs(sumW) < 1e-12*sumAll:
			cov.set(i, math.NaN(), 0)
		default:
			cov.set(i, sumWV/sumW, sumValid/sumAll)
		}
	}
}
