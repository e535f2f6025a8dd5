// Package reproject resamples images from one sky coordinate system onto
// the pixel grid of another. For every output pixel it produces a value
// and a footprint, the fraction of that pixel the input actually covered
// (0 means no data, and the value is NaN).
//
// The output is split into blocks, which are processed in parallel; the
// answer doesn't depend on how it was split.
package reproject

import (
	"context"
	"image"
	"log"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/minzastro/reproject/pkg/blocks"
	"github.com/minzastro/reproject/pkg/emath"
	"github.com/minzastro/reproject/pkg/wcs"
)

// Below this pixel size (in square degrees) the overlap algorithms run
// out of floating point precision.
const minPrecisePixelArea = (0.05 / 3600) * (0.05 / 3600)

type Result struct {
	Array     Image
	Footprint Image
	Algorithm Algorithm
	Timing    blocks.Timing
}

// Reproject resamples `in` (described by `src`) onto an output grid of
// shape `shapeOut` described by `dst`. Any leading dimensions (beyond
// the last two) must match between the input and output shapes; each
// plane is reprojected independently, reusing the same coordinates.
//
// Pixels that can't be mapped just get a zero footprint; errors are
// reserved for bad arguments, resource limits, and cancellation. If ctx
// is cancelled part way through, the error is returned along with the
// partially filled result.
func Reproject(ctx context.Context, in Image, src, dst wcs.CoordinateSystem, shapeOut []int, cfg Config) (*Result, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, errors.Wrap(err, "input")
	}
	if err := checkShapes(in.Shape, shapeOut); err != nil {
		return nil, err
	}
	if err := checkResources(shapeOut, cfg.MaxOutputBytes); err != nil {
		return nil, err
	}

	t, err := wcs.NewTransform(src, dst, cfg.RoundTripTolerance)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "%v", err)
	}

	array, _ := NewImage(shapeOut...)
	footprint, _ := NewImage(shapeOut...)
	res := &Result{Array: array, Footprint: footprint, Algorithm: cfg.algorithm}

	nx, ny := array.Nx(), array.Ny()
	plan, err := blocks.NewPlan(nx, ny, cfg.MaxBlockElements, cfg.BlockWidth, cfg.BlockHeight)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "%v", err)
	}

	if cfg.algorithm.Overlap() {
		warnIfImprecise(src, in.Nx(), in.Ny(), "input")
		warnIfImprecise(dst, nx, ny, "output")
	}

	if cfg.Verbosity > 0 {
		log.Printf("Reprojecting %s -> %v, %s, %s\n", in, shapeOut, cfg.algorithm, plan)
		if drift, ok := maxDrift(t, nx, ny); ok {
			log.Printf(" - round trip drift: %.3g pixels (tolerance %g)\n", drift, cfg.RoundTripTolerance)
		}
	}

	nPlanes := in.NumPlanes()
	outVals := make([]emath.FloatGrid, nPlanes)
	outFps := make([]emath.FloatGrid, nPlanes)
	for i := 0; i < nPlanes; i++ {
		outVals[i] = array.Plane(i)
		outFps[i] = footprint.Plane(i)
		outFps[i].Fill(0)
	}

	fn := func(ctx context.Context, n int, r image.Rectangle) error {
		tStart := time.Now()
		cov := newCoverage(r)

		switch cfg.algorithm {
		case Nearest, Bilinear, Bicubic:
			cm := mapBlock(t, r)
			for i := 0; i < nPlanes; i++ {
				switch cfg.algorithm {
				case Nearest:
					fillNearest(cm, in.plane(i), cov)
				case Bilinear:
					fillKernel(draw.BiLinear, cfg.edge, cm, in.plane(i), cov)
				case Bicubic:
					fillKernel(draw.CatmullRom, cfg.edge, cm, in.plane(i), cov)
				}
				cov.finish(&outVals[i], &outFps[i], false)
			}

		case Exact, Drizzle:
			overlaps := findOverlaps(t, cfg.algorithm, cfg.DropSize, r, in.Nx(), in.Ny())
			for i := 0; i < nPlanes; i++ {
				fillOverlap(overlaps, in.plane(i), cfg.ConserveFlux, cov)
				cov.finish(&outVals[i], &outFps[i], !cfg.ConserveFlux)
			}
		}

		if cfg.Verbosity > 1 {
			log.Printf(" - block %d %v done [%s]\n", n, r, time.Since(tStart))
		}
		return nil
	}

	res.Timing, err = blocks.Run(ctx, plan, cfg.Parallelism, fn)
	if err != nil {
		return res, err
	}

	if cfg.Verbosity > 0 {
		log.Printf("Reprojected: %s\n", res.Timing)
		if err := CheckFootprint(res.Array, res.Footprint); err != nil {
			log.Printf("footprint check failed: %v\n", err)
		}
	}

	return res, nil
}

// checkShapes insists on 2-D celestial planes, with any leading axes
// matching exactly.
func checkShapes(in, out []int) error {
	if _, err := numElements(out); err != nil {
		return errors.Wrap(err, "output")
	}
	if len(in) != len(out) {
		return shapeErrorf("input has %d dimensions, output %d; they must match", len(in), len(out))
	}
	for i := 0; i < len(in)-2; i++ {
		if in[i] != out[i] {
			return shapeErrorf("leading dimensions must match exactly: input %v, output %v", in, out)
		}
	}
	return nil
}

// The output needs a value array and a footprint array, both float64.
func checkResources(shapeOut []int, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil
	}
	n, _ := numElements(shapeOut)
	if need := int64(n) * 2 * 8; need > maxBytes || need/16 != int64(n) {
		return errors.Wrapf(ErrResource, "output %v needs %d bytes, limit is %d", shapeOut, need, maxBytes)
	}
	return nil
}

func warnIfImprecise(cs wcs.CoordinateSystem, nx, ny int, which string) {
	area, ok := wcs.PixelArea(cs, float64(nx-1)/2, float64(ny-1)/2)
	if !ok {
		return
	}
	if area < minPrecisePixelArea {
		log.Printf("WARNING: %s pixels are %.3g arcsec across; the overlap calculation may lose precision\n",
			which, math.Sqrt(area)*3600)
	}
}

// maxDrift samples the output grid on a coarse lattice and returns the
// worst round trip residual, in output pixels, of the points that map.
func maxDrift(t wcs.Transform, nx, ny int) (float64, bool) {
	const steps = 8
	worst, found := 0.0, false
	for j := 0; j <= steps; j++ {
		for i := 0; i <= steps; i++ {
			x := float64(nx-1) * float64(i) / steps
			y := float64(ny-1) * float64(j) / steps
			if r, ok := t.Residual(x, y); ok {
				worst, found = math.Max(worst, r), true
			}
		}
	}
	return worst, found
}
