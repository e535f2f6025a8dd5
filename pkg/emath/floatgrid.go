package emath

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a grid of floats, with some operations. NaN is used
// throughout as "no data".
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// FloatGridFromValues wraps an existing row-major buffer; the grid is a
// view, so writes go through to the buffer.
func FloatGridFromValues(w, h int, values []float64) (FloatGrid, error) {
	if w <= 0 || h <= 0 {
		return FloatGrid{}, fmt.Errorf("grid dimensions %dx%d must be positive", w, h)
	}
	if len(values) != w*h {
		return FloatGrid{}, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(values))
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (g1 *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Values() []float64       { return fg.values }
func (fg *FloatGrid) Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (g1 *FloatGrid) Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

func (fg *FloatGrid) Fill(v float64) {
	for i := range fg.values {
		fg.values[i] = v
	}
}

// Finite returns the non-NaN, non-Inf values, in storage order.
func (fg *FloatGrid) Finite() []float64 {
	vals := make([]float64, 0, len(fg.values))
	for _, v := range fg.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	return vals
}

// Sum adds up all the finite values, with compensated summation so that
// flux totals over big grids are stable.
func (fg *FloatGrid) Sum() float64 {
	return floats.SumCompensated(fg.Finite())
}

// Percentiles returns the values at the two given fractions of the
// sorted finite values; used to stretch grids for display.
func (fg *FloatGrid) Percentiles(minPrct, maxPrct float64) (float64, float64) {
	vI := fg.Finite()
	if len(vI) == 0 {
		return 0, 0
	}

	sort.Float64s(vI)

	iMin := int(minPrct * float64(len(vI)))
	iMax := int(maxPrct * float64(len(vI)))
	if iMin < 0 {
		iMin = 0
	}
	if iMax >= len(vI) {
		iMax = len(vI) - 1
	}

	return vI[iMin], vI[iMax]
}

func (fg *FloatGrid) Stats() string {
	min := math.MaxFloat64
	max := -1.0 * min
	nNaN := 0

	for i := 0; i < len(fg.values); i++ {
		v := fg.values[i]
		if math.IsNaN(v) {
			nNaN++
			continue
		}
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}, %d NaN]", fg.Dx(), fg.Dy(), min, max, nNaN)
}

// ToImg saves a simple grayscale, stretched between the 1st and 99th
// percentile, and gamma scaling the gray to look normal for human
// vision. NaNs come out black.
func (fg *FloatGrid) ToImg(title, filename string) error {
	min, max := fg.Percentiles(0.01, 0.99)
	if max <= min {
		max = min + 1
	}

	img := image.NewRGBA64(image.Rectangle{Max: image.Point{fg.Dx(), fg.Dy()}})
	for x := 0; x < fg.Dx(); x++ {
		for y := 0; y < fg.Dy(); y++ {
			lum := fg.Get(x, y)
			if math.IsNaN(lum) {
				img.Set(x, y, color.RGBA64{0, 0, 0, 0xFFFF})
				continue
			}
			gray := GammaExpand_F64(Clamp((lum-min)/(max-min), 0, 1))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 0.3, 0.3)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
