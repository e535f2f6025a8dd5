// Package mosaic combines a set of tiles, already reprojected onto a
// common grid, into a single image: optionally matching their
// backgrounds first, then merging them pixel by pixel.
package mosaic

import (
	"context"
	"image"
	"log"
	"math"

	"github.com/pkg/errors"

	"github.com/minzastro/reproject/pkg/blocks"
	"github.com/minzastro/reproject/pkg/emath"
	"github.com/minzastro/reproject/pkg/reproject"
)

// A Tile is one input to the mosaic, on the output grid.
type Tile struct {
	Array     emath.FloatGrid
	Footprint emath.FloatGrid
	Weight    *float64 // nil means 1; a zero weight keeps the tile out of the mosaic
	Name      string
}

// TileWeight is shorthand for setting a Tile or Input weight.
func TileWeight(w float64) *float64 { return &w }

func (t Tile) weight() float64 {
	if t.Weight == nil {
		return 1
	}
	return *t.Weight
}

type Result struct {
	Array      emath.FloatGrid
	Footprint  emath.FloatGrid
	Background Background
	Timing     blocks.Timing
}

func checkTiles(tiles []Tile) (int, int, error) {
	if len(tiles) == 0 {
		return 0, 0, errors.Wrap(reproject.ErrShape, "no tiles to combine")
	}
	w, h := tiles[0].Array.Dx(), tiles[0].Array.Dy()
	if w == 0 || h == 0 {
		return 0, 0, errors.Wrapf(reproject.ErrShape, "tile 0 (%s) is empty", tiles[0].Name)
	}

	for i, t := range tiles {
		if t.Array.Dx() != w || t.Array.Dy() != h {
			return 0, 0, errors.Wrapf(reproject.ErrShape, "tile %d (%s) is %dx%d, want %dx%d",
				i, t.Name, t.Array.Dx(), t.Array.Dy(), w, h)
		}
		if t.Footprint.Dx() != w || t.Footprint.Dy() != h {
			return 0, 0, errors.Wrapf(reproject.ErrShape, "tile %d (%s) footprint is %dx%d, want %dx%d",
				i, t.Name, t.Footprint.Dx(), t.Footprint.Dy(), w, h)
		}
		if w := t.weight(); w < 0 || !emath.IsFinite(w) {
			return 0, 0, errors.Wrapf(reproject.ErrConfig, "tile %d (%s) has weight %v", i, t.Name, w)
		}
	}
	return w, h, nil
}

// Combine merges the tiles. A pixel takes part only from tiles whose
// footprint there is nonzero and whose value is finite; if no tile
// qualifies, the output is NaN with zero footprint.
func Combine(ctx context.Context, tiles []Tile, cfg Config) (*Result, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	w, h, err := checkTiles(tiles)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Array:     tiles[0].Array.NewFromThis(),
		Footprint: tiles[0].Footprint.NewFromThis(),
	}

	values := make([]emath.FloatGrid, len(tiles))
	for i, t := range tiles {
		values[i] = t.Array
	}

	if cfg.MatchBackground {
		bg, err := MatchBackgrounds(tiles, cfg)
		if err != nil {
			return nil, err
		}
		res.Background = bg
		for i, t := range tiles {
			values[i] = bg.Apply(i, t)
		}
	}

	plan, err := blocks.NewPlan(w, h, cfg.MaxBlockElements, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(reproject.ErrConfig, "%v", err)
	}

	fn := func(ctx context.Context, n int, r image.Rectangle) error {
		samples := make([]Sample, 0, len(tiles))

		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				samples = samples[:0]
				fp := 0.0

				for i := range tiles {
					f := tiles[i].Footprint.Get(x, y)
					v := values[i].Get(x, y)
					if !(f > 0) || !emath.IsFinite(v) {
						continue
					}
					wt := f * tiles[i].weight()
					if !(wt > 0) {
						continue
					}
					samples = append(samples, Sample{Value: v, Weight: wt, Tile: i})
					if cfg.sumFootprints {
						fp += wt
					} else {
						fp = math.Max(fp, f)
					}
				}

				if len(samples) == 0 {
					res.Array.Set(x, y, math.NaN())
					res.Footprint.Set(x, y, 0)
					continue
				}
				res.Array.Set(x, y, cfg.combiner(samples))
				res.Footprint.Set(x, y, fp)
			}
		}
		return nil
	}

	res.Timing, err = blocks.Run(ctx, plan, cfg.Parallelism, fn)
	if err != nil {
		return res, err
	}

	if cfg.Verbosity > 0 {
		log.Printf("Combined %d tiles with %s: %s\n", len(tiles), cfg.Combine, res.Timing)
		log.Printf(" - mosaic: %s\n", res.Array.Stats())
	}

	return res, nil
}
