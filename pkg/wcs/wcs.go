// Package wcs holds the pixel<->world mappings that the reprojection
// engine is driven by. The engine only sees the CoordinateSystem
// interface. We ship Linear for plate-style images, Gnomonic for
// TAN-projected sky images, and Cylindrical for CAR and MER all-sky maps.
//
// Pixel coordinates are 0-based, with pixel centers on integers (so the
// pixel at index (0,0) covers [-0.5,0.5) on each axis). World
// coordinates are (Lon,Lat) in degrees.
package wcs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/minzastro/reproject/pkg/emath"
)

type World struct {
	Lon float64
	Lat float64
}

func (w World) String() string { return fmt.Sprintf("(%.6f,%.6f)", w.Lon, w.Lat) }

// A CoordinateSystem maps pixels to world coords and back. Both
// directions may be partial; the bool is false when the input is outside
// the domain of the mapping (e.g. behind a projection's tangent plane).
// Implementations must be safe for concurrent use.
type CoordinateSystem interface {
	PixelToWorld(x, y float64) (World, bool)
	WorldToPixel(w World) (float64, float64, bool)
}

// PixelArea returns the solid angle (in square degrees) covered by the
// pixel centered at (x,y), by computing the spherical excess of the
// quadrilateral made by its four corners.
func PixelArea(cs CoordinateSystem, x, y float64) (float64, bool) {
	corners := [4][2]float64{{x - 0.5, y - 0.5}, {x + 0.5, y - 0.5}, {x + 0.5, y + 0.5}, {x - 0.5, y + 0.5}}
	vecs := [4]r3.Vec{}
	for i, c := range corners {
		w, ok := cs.PixelToWorld(c[0], c[1])
		if !ok {
			return 0, false
		}
		v := emath.SphereVec(w.Lon, w.Lat)
		vecs[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}

	// Split the quad into two spherical triangles
	area := triangleArea(vecs[0], vecs[1], vecs[2]) + triangleArea(vecs[0], vecs[2], vecs[3])
	sr2deg2 := (180.0 / math.Pi) * (180.0 / math.Pi)
	return area * sr2deg2, true
}

// Van Oosterom & Strackee: tan(E/2) = |a.(b x c)| / (1 + a.b + b.c + c.a)
func triangleArea(a, b, c r3.Vec) float64 {
	num := math.Abs(r3.Dot(a, r3.Cross(b, c)))
	den := 1 + r3.Dot(a, b) + r3.Dot(b, c) + r3.Dot(c, a)
	return 2 * math.Atan2(num, den)
}

// A Frame is an image's extent, described by its coordinate system and
// its pixel dimensions.
type Frame struct {
	CS     CoordinateSystem
	Nx, Ny int
}

// Corners returns the world coords of the outer corners of the frame,
// skipping any that fall outside the coordinate system's domain.
func (f Frame) Corners() []World {
	out := []World{}
	xs := []float64{-0.5, float64(f.Nx) - 0.5}
	ys := []float64{-0.5, float64(f.Ny) - 0.5}
	for _, y := range ys {
		for _, x := range xs {
			if w, ok := f.CS.PixelToWorld(x, y); ok {
				out = append(out, w)
			}
		}
	}
	return out
}

// Edges samples the frame's border every `step` pixels, which is what we
// need to bound a frame that's been distorted by a projection.
func (f Frame) Edges(step float64) []World {
	if step <= 0 {
		step = 1
	}
	out := []World{}
	add := func(x, y float64) {
		if w, ok := f.CS.PixelToWorld(x, y); ok {
			out = append(out, w)
		}
	}
	x0, y0 := -0.5, -0.5
	x1, y1 := float64(f.Nx)-0.5, float64(f.Ny)-0.5
	for x := x0; x < x1; x += step {
		add(x, y0)
		add(x, y1)
	}
	for y := y0; y < y1; y += step {
		add(x0, y)
		add(x1, y)
	}
	add(x1, y1)
	return out
}
