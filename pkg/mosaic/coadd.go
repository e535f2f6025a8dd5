package mosaic

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/minzastro/reproject/pkg/reproject"
	"github.com/minzastro/reproject/pkg/wcs"
)

// An Input is an image in its own coordinate system, before reprojection.
type Input struct {
	Image  reproject.Image
	WCS    wcs.CoordinateSystem
	Weight *float64 // nil means 1
	Name   string
}

func (in Input) Frame() wcs.Frame {
	return wcs.Frame{CS: in.WCS, Nx: in.Image.Nx(), Ny: in.Image.Ny()}
}

// CoaddResult holds the mosaic for every plane of the inputs (they must
// all have the same leading dimensions), and the background fit for
// each plane.
type CoaddResult struct {
	Array       reproject.Image
	Footprint   reproject.Image
	Backgrounds []Background
}

// Coadd reprojects every input onto the `nx` x `ny` grid described by
// dst, and then combines them plane by plane.
func Coadd(ctx context.Context, inputs []Input, dst wcs.CoordinateSystem, nx, ny int, rcfg reproject.Config, mcfg Config) (*CoaddResult, error) {
	if len(inputs) == 0 {
		return nil, errors.Wrap(reproject.ErrShape, "no inputs to coadd")
	}
	if err := mcfg.Finalize(); err != nil {
		return nil, err
	}

	lead := inputs[0].Image.Shape[:len(inputs[0].Image.Shape)-2]
	shapeOut := append(append([]int{}, lead...), ny, nx)

	projected := make([]*reproject.Result, len(inputs))
	for i, in := range inputs {
		tStart := time.Now()
		res, err := reproject.Reproject(ctx, in.Image, in.WCS, dst, shapeOut, rcfg)
		if err != nil {
			return nil, errors.Wrapf(err, "reproject input %d (%s)", i, in.Name)
		}
		projected[i] = res
		if mcfg.Verbosity > 0 {
			log.Printf("Reprojected %s [%s]\n", in.Name, time.Since(tStart))
		}
	}

	out := &CoaddResult{}
	out.Array, _ = reproject.NewImage(shapeOut...)
	out.Footprint, _ = reproject.NewImage(shapeOut...)

	for p := 0; p < out.Array.NumPlanes(); p++ {
		tiles := make([]Tile, len(inputs))
		for i, in := range inputs {
			tiles[i] = Tile{
				Array:     projected[i].Array.Plane(p),
				Footprint: projected[i].Footprint.Plane(p),
				Weight:    in.Weight,
				Name:      in.Name,
			}
		}

		res, err := Combine(ctx, tiles, mcfg)
		if err != nil {
			return nil, errors.Wrapf(err, "combine plane %d", p)
		}

		arr, fp := out.Array.Plane(p), out.Footprint.Plane(p)
		copy(arr.Values(), res.Array.Values())
		copy(fp.Values(), res.Footprint.Values())
		out.Backgrounds = append(out.Backgrounds, res.Background)
	}

	return out, nil
}

// OptimalGrid picks a gnomonic grid covering all the inputs, at the
// finest input resolution (or at `resolution` degrees per pixel, if
// positive).
func OptimalGrid(inputs []Input, resolution float64) (wcs.Gnomonic, int, int, error) {
	frames := make([]wcs.Frame, len(inputs))
	for i, in := range inputs {
		frames[i] = in.Frame()
	}
	return wcs.OptimalGnomonic(frames, resolution)
}
