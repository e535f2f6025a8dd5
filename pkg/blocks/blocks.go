// Package blocks splits a 2-D output grid into disjoint rectangles, and
// runs a function over each of them, in parallel. Since every block owns
// its own rectangle of the output, callers can write results straight
// into shared output buffers without any locking, and get the same
// answer whatever the block size or number of workers.
package blocks

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/codahale/hdrhistogram"
	"golang.org/x/sync/errgroup"
)

// A Plan is the list of blocks covering a Width x Height grid, in row
// major order.
type Plan struct {
	Width  int
	Height int
	Blocks []image.Rectangle
}

// NewPlan decomposes the grid. If blockW and blockH are both positive,
// the grid is tiled with blocks of that size. Otherwise maxElements
// bounds the number of pixels per block: we use bands of whole rows, or
// runs within a row if a single row is already too big. maxElements <= 0
// means a single block.
func NewPlan(width, height, maxElements, blockW, blockH int) (Plan, error) {
	if width <= 0 || height <= 0 {
		return Plan{}, fmt.Errorf("grid %dx%d has no pixels", width, height)
	}
	if blockW < 0 || blockH < 0 {
		return Plan{}, fmt.Errorf("block size %dx%d is negative", blockW, blockH)
	}

	p := Plan{Width: width, Height: height}

	switch {
	case blockW > 0 && blockH > 0:
		// explicit tiling, nothing to work out

	case maxElements <= 0 || maxElements >= width*height:
		blockW, blockH = width, height

	case maxElements >= width:
		blockW, blockH = width, maxElements/width

	default:
		blockW, blockH = maxElements, 1
	}

	for y := 0; y < height; y += blockH {
		for x := 0; x < width; x += blockW {
			r := image.Rect(x, y, min(x+blockW, width), min(y+blockH, height))
			p.Blocks = append(p.Blocks, r)
		}
	}

	return p, nil
}

func (p Plan) String() string {
	if len(p.Blocks) == 0 {
		return fmt.Sprintf("Plan[%dx%d, no blocks]", p.Width, p.Height)
	}
	return fmt.Sprintf("Plan[%dx%d, %d blocks of up to %dx%d]", p.Width, p.Height, len(p.Blocks),
		p.Blocks[0].Dx(), p.Blocks[0].Dy())
}

// MaxBlockPixels is the size of the biggest block, which is what bounds
// the size of any per-block scratch buffers.
func (p Plan) MaxBlockPixels() int {
	n := 0
	for _, b := range p.Blocks {
		n = max(n, b.Dx()*b.Dy())
	}
	return n
}

// A BlockFunc does the work for one block. `i` is the block's index in
// the plan.
type BlockFunc func(ctx context.Context, i int, r image.Rectangle) error

// Timing summarizes how long the blocks took to process.
type Timing struct {
	Blocks    int
	Completed int
	Workers   int
	Elapsed   time.Duration
	hist      *hdrhistogram.Histogram
}

// Percentile returns the block duration at percentile q (0-100).
func (t Timing) Percentile(q float64) time.Duration {
	if t.hist == nil || t.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(t.hist.ValueAtQuantile(q)) * time.Microsecond
}

func (t Timing) Mean() time.Duration {
	if t.hist == nil || t.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(t.hist.Mean()) * time.Microsecond
}

func (t Timing) String() string {
	return fmt.Sprintf("%d/%d blocks on %d workers in %s (block p50 %s, p99 %s)",
		t.Completed, t.Blocks, t.Workers, t.Elapsed, t.Percentile(50), t.Percentile(99))
}

// The longest block we expect to time; anything slower is clamped.
const maxBlockMicros = int64(time.Hour / time.Microsecond)

// Run calls fn for every block in the plan, using up to `parallelism`
// goroutines (<= 0 means one per CPU). Cancellation of ctx is checked
// before each block starts; blocks already running are left to finish,
// and their output is valid. It returns the first error from fn, or the
// context's error if it was cancelled.
func Run(ctx context.Context, p Plan, parallelism int, fn BlockFunc) (Timing, error) {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	parallelism = min(parallelism, max(len(p.Blocks), 1))

	t := Timing{Blocks: len(p.Blocks), Workers: parallelism}
	durations := make([]time.Duration, len(p.Blocks))
	done := make([]bool, len(p.Blocks))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, r := range p.Blocks {
		i, r := i, r
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			if err := fn(gctx, i, r); err != nil {
				return err
			}
			durations[i] = time.Since(t0)
			done[i] = true
			return nil
		})
	}
	err := g.Wait()
	t.Elapsed = time.Since(start)

	// Record after the fact, so the histogram never sees concurrent writes
	t.hist = hdrhistogram.New(1, maxBlockMicros, 3)
	for i, d := range durations {
		if !done[i] {
			continue
		}
		t.Completed++
		us := int64(d / time.Microsecond)
		if us < 1 {
			us = 1
		}
		if us > maxBlockMicros {
			us = maxBlockMicros
		}
		t.hist.RecordValue(us)
	}

	if err == nil {
		err = ctx.Err()
	}
	return t, err
}
