package reproject

import (
	"fmt"
	"image"
	"math"

	"github.com/minzastro/reproject/pkg/emath"
)

// coverage is the per-block scratch space that a kernel writes into. The
// interpolating kernels set a value and footprint directly; the overlap
// kernels accumulate weighted sums, which finish then normalizes.
type coverage struct {
	r      image.Rectangle
	num    []float64
	weight []float64
}

func newCoverage(r image.Rectangle) *coverage {
	n := r.Dx() * r.Dy()
	return &coverage{r: r, num: make([]float64, n), weight: make([]float64, n)}
}

func (c *coverage) reset() {
	for i := range c.num {
		c.num[i] = 0
		c.weight[i] = 0
	}
}

func (c *coverage) set(k int, v, footprint float64) {
	c.num[k] = v
	c.weight[k] = footprint
}

func (c *coverage) add(k int, num, weight float64) {
	c.num[k] += num
	c.weight[k] += weight
}

// finish writes the block into the output planes. If divide is set, the
// numerator is a weighted sum that gets divided by the total weight.
// Pixels with no weight come out as NaN with zero footprint; the
// footprint is clamped to [0,1].
func (c *coverage) finish(val, fp *emath.FloatGrid, divide bool) {
	k := 0
	for y := c.r.Min.Y; y < c.r.Max.Y; y++ {
		for x := c.r.Min.X; x < c.r.Max.X; x++ {
			v, w := c.num[k], c.weight[k]
			k++

			if !(w > 0) {
				val.Set(x, y, math.NaN())
				fp.Set(x, y, 0)
				continue
			}
			if divide {
				v /= w
			}
			if !emath.IsFinite(v) {
				val.Set(x, y, math.NaN())
				fp.Set(x, y, 0)
				continue
			}
			val.Set(x, y, v)
			fp.Set(x, y, emath.Clamp(w, 0, 1))
		}
	}
}

// CheckFootprint verifies the relationship between an output array and
// its footprint: footprints are in [0,1], and every pixel with a zero
// footprint is NaN. It returns nil if all is well.
func CheckFootprint(array, footprint Image) error {
	if len(array.Data) != len(footprint.Data) {
		return shapeErrorf("array has %d samples, footprint %d", len(array.Data), len(footprint.Data))
	}
	for i, f := range footprint.Data {
		if !(f >= 0 && f <= 1) {
			return fmt.Errorf("footprint[%d]=%v is outside [0,1]", i, f)
		}
		if f == 0 && !math.IsNaN(array.Data[i]) {
			return fmt.Errorf("array[%d]=%v has zero footprint, should be NaN", i, array.Data[i])
		}
		if f > 0 && !emath.IsFinite(array.Data[i]) {
			return fmt.Errorf("array[%d]=%v has footprint %v, should be finite", i, array.Data[i], f)
		}
	}
	return nil
}
