package reproject

import (
	"image"
	"math"

	"github.com/minzastro/reproject/pkg/wcs"
)

// A coordMap holds the source coordinates of every output pixel in a
// block. It is computed once per block and shared by all the planes.
type coordMap struct {
	r      image.Rectangle
	sx, sy []float64
	ok     []bool
}

func mapBlock(t wcs.Transform, r image.Rectangle) coordMap {
	n := r.Dx() * r.Dy()
	cm := coordMap{r: r, sx: make([]float64, n), sy: make([]float64, n), ok: make([]bool, n)}

	k := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cm.sx[k], cm.sy[k], cm.ok[k] = t.TargetToSource(float64(x), float64(y))
			k++
		}
	}
	return cm
}

// fillNearest takes the value of whichever source pixel the output
// pixel's center lands in.
func fillNearest(cm coordMap, src plane, cov *coverage) {
	for k := range cm.ok {
		if !cm.ok[k] {
			cov.set(k, math.NaN(), 0)
			continue
		}

		// Pixel i covers [i-0.5, i+0.5)
		ix := int(math.Floor(cm.sx[k] + 0.5))
		iy := int(math.Floor(cm.sy[k] + 0.5))
		if v, ok := src.at(ix, iy); ok {
			cov.set(k, v, 1)
		} else {
			cov.set(k, math.NaN(), 0)
		}
	}
}
