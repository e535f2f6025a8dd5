package wcs

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/minzastro/reproject/pkg/emath"
)

/* A Spec is the YAML form of a coordinate system, e.g.

projection: tan
crpix: [511.5, 511.5]
crval: [83.82, -5.39]
cd: [-0.0003, 0, 0, 0.0003]

*/
type Spec struct {
	Projection string     // "tan", "car", "mer" or "linear"
	CRPix      [2]float64 // 0-based
	CRVal      [2]float64 // lon, lat in degrees
	CD         [4]float64 // degrees per pixel, row-major
}

func (s Spec) Build() (CoordinateSystem, error) {
	crval := World{s.CRVal[0], s.CRVal[1]}
	switch strings.ToLower(s.Projection) {
	case "tan", "gnomonic":
		return NewGnomonic(s.CRPix, crval, s.CD)
	case "linear", "":
		return NewLinearFromCD(s.CRPix, crval, s.CD)
	case "car", "mer":
		return NewCylindrical(s.Projection, s.CRPix, crval, s.CD)
	default:
		return nil, fmt.Errorf("no projection named '%s'", s.Projection)
	}
}

// SpecFromGnomonic is used to write out a fitted system.
func SpecFromGnomonic(g Gnomonic) Spec {
	return Spec{
		Projection: "tan",
		CRPix:      g.CRPix,
		CRVal:      [2]float64{g.CRVal.Lon, g.CRVal.Lat},
		CD:         g.CD,
	}
}

// OptimalGnomonic fits a TAN system, and an output shape, that covers all
// of the frames. The tangent point is the mean direction of the frames'
// borders. If resolution (degrees per pixel) is not positive, we use the
// finest resolution of any of the frames, measured at its center.
func OptimalGnomonic(frames []Frame, resolution float64) (Gnomonic, int, int, error) {
	if len(frames) == 0 {
		return Gnomonic{}, 0, 0, fmt.Errorf("no frames to fit")
	}

	points := []World{}
	sum := r3.Vec{}
	minRes := math.MaxFloat64
	for i, f := range frames {
		if f.CS == nil || f.Nx <= 0 || f.Ny <= 0 {
			return Gnomonic{}, 0, 0, fmt.Errorf("frame %d is empty", i)
		}
		if len(f.Corners()) == 0 {
			return Gnomonic{}, 0, 0, fmt.Errorf("frame %d has no corners on the sky", i)
		}
		step := float64(max(f.Nx, f.Ny)) / 16.0
		for _, w := range f.Edges(step) {
			v := emath.SphereVec(w.Lon, w.Lat)
			sum = r3.Add(sum, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
			points = append(points, w)
		}
		if area, ok := PixelArea(f.CS, float64(f.Nx-1)/2.0, float64(f.Ny-1)/2.0); ok && area > 0 {
			minRes = math.Min(minRes, math.Sqrt(area))
		}
	}
	if len(points) == 0 || r3.Norm(sum) == 0 {
		return Gnomonic{}, 0, 0, fmt.Errorf("frames have no valid corners")
	}

	if resolution <= 0 {
		if minRes == math.MaxFloat64 {
			return Gnomonic{}, 0, 0, fmt.Errorf("could not measure frame resolution")
		}
		resolution = minRes
	}

	c := r3.Unit(sum)
	lon, lat := emath.Vec3{c.X, c.Y, c.Z}.SphereLonLat()
	center := World{lon, lat}
	cd := [4]float64{-resolution, 0, 0, resolution} // RA increases to the left

	g, err := NewGnomonic([2]float64{0, 0}, center, cd)
	if err != nil {
		return Gnomonic{}, 0, 0, err
	}

	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for _, w := range points {
		x, y, ok := g.WorldToPixel(w)
		if !ok {
			return Gnomonic{}, 0, 0, fmt.Errorf("frames span more than a hemisphere around %s", center)
		}
		xmin, xmax = math.Min(xmin, x), math.Max(xmax, x)
		ymin, ymax = math.Min(ymin, y), math.Max(ymax, y)
	}

	nx := int(math.Ceil(xmax - xmin))
	ny := int(math.Ceil(ymax - ymin))
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}

	// Shift the reference pixel so that the bounding box starts at the
	// outer edge of pixel (0,0)
	g, err = NewGnomonic([2]float64{-xmin - 0.5, -ymin - 0.5}, center, cd)
	return g, nx, ny, err
}
