package wcs

import (
	"fmt"
	"math"

	"github.com/minzastro/reproject/pkg/emath"
)

// DefaultTolerance is the largest round-trip residual, in pixels, that a
// Transform accepts before declaring a coordinate invalid.
const DefaultTolerance = 0.01

// Pixel coordinates this close to an integer get snapped onto it.
const snapEpsilon = 1e-9

// A Transform composes two coordinate systems, so that pixels in one
// image can be mapped to pixels in the other via the sky. It is
// read-only, and can be shared across goroutines.
//
// If Tolerance > 0, every mapped point is mapped back again, and if it
// doesn't land within Tolerance pixels of where it started, the mapping
// is rejected. Projections misbehave near the edge of their domains, and
// this is how we notice.
type Transform struct {
	Source    CoordinateSystem
	Target    CoordinateSystem
	Tolerance float64
}

func NewTransform(src, dst CoordinateSystem, tolerance float64) (Transform, error) {
	if src == nil || dst == nil {
		return Transform{}, fmt.Errorf("transform needs both a source and a target coordinate system")
	}
	if math.IsNaN(tolerance) {
		return Transform{}, fmt.Errorf("transform tolerance is NaN")
	}
	return Transform{Source: src, Target: dst, Tolerance: tolerance}, nil
}

// TargetToSource maps a pixel in the target grid to the source image.
func (t Transform) TargetToSource(x, y float64) (float64, float64, bool) {
	return compose(t.Target, t.Source, x, y, t.Tolerance)
}

// SourceToTarget maps a pixel in the source image to the target grid.
func (t Transform) SourceToTarget(x, y float64) (float64, float64, bool) {
	return compose(t.Source, t.Target, x, y, t.Tolerance)
}

// Residual reports how far (in target pixels) the point (x,y) drifts
// after a trip out to the source image and back.
func (t Transform) Residual(x, y float64) (float64, bool) {
	sx, sy, ok := compose(t.Target, t.Source, x, y, 0)
	if !ok {
		return 0, false
	}
	bx, by, ok := compose(t.Source, t.Target, sx, sy, 0)
	if !ok {
		return 0, false
	}
	return math.Hypot(bx-x, by-y), true
}

func compose(from, to CoordinateSystem, x, y, tolerance float64) (float64, float64, bool) {
	w, ok := from.PixelToWorld(x, y)
	if !ok {
		return 0, 0, false
	}
	px, py, ok := to.WorldToPixel(w)
	if !ok || !emath.IsFinite(px) || !emath.IsFinite(py) {
		return 0, 0, false
	}

	if tolerance > 0 {
		w2, ok := to.PixelToWorld(px, py)
		if !ok {
			return 0, 0, false
		}
		bx, by, ok := from.WorldToPixel(w2)
		if !ok || math.Hypot(bx-x, by-y) > tolerance {
			return 0, 0, false
		}
	}

	return emath.SnapToInt(px, snapEpsilon), emath.SnapToInt(py, snapEpsilon), true
}
