package reproject

import (
	"fmt"
	"math"

	"github.com/minzastro/reproject/pkg/emath"
)

// An Image is an N-dimensional array of samples, N >= 2. The last two
// dimensions are the celestial plane (Shape[N-2] rows of Shape[N-1]
// pixels); anything before that (spectral channels, say) is looped over,
// with each 2-D plane reprojected the same way.
//
// Data is row-major. Mask, if present, marks which samples are valid;
// NaN and Inf samples are always treated as missing.
type Image struct {
	Shape []int
	Data  []float64
	Mask  []bool
}

// Integer is every integer type we'll promote to floating point.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// NewImage allocates an image of the given shape, filled with NaN.
func NewImage(shape ...int) (Image, error) {
	n, err := numElements(shape)
	if err != nil {
		return Image{}, err
	}
	im := Image{Shape: append([]int{}, shape...), Data: make([]float64, n)}
	for i := range im.Data {
		im.Data[i] = math.NaN()
	}
	return im, nil
}

// NewImageFromGrid wraps a 2-D grid, without copying it.
func NewImageFromGrid(g emath.FloatGrid) Image {
	return Image{Shape: []int{g.Dy(), g.Dx()}, Data: g.Values()}
}

func FromFloat64(shape []int, data []float64) (Image, error) {
	im := Image{Shape: append([]int{}, shape...), Data: data}
	return im, im.Validate()
}

func FromFloat32(shape []int, data []float32) (Image, error) {
	f := make([]float64, len(data))
	for i, v := range data {
		f[i] = float64(v)
	}
	return FromFloat64(shape, f)
}

// FromInts promotes integer samples to floating point.
func FromInts[T Integer](shape []int, data []T) (Image, error) {
	f := make([]float64, len(data))
	for i, v := range data {
		f[i] = float64(v)
	}
	return FromFloat64(shape, f)
}

func numElements(shape []int) (int, error) {
	if len(shape) < 2 {
		return 0, shapeErrorf("shape %v needs at least two dimensions", shape)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, shapeErrorf("shape %v has an empty dimension", shape)
		}
		if n > math.MaxInt/d {
			return 0, shapeErrorf("shape %v is too large", shape)
		}
		n *= d
	}
	return n, nil
}

func (im Image) Validate() error {
	n, err := numElements(im.Shape)
	if err != nil {
		return err
	}
	if len(im.Data) != n {
		return shapeErrorf("shape %v needs %d samples, but have %d", im.Shape, n, len(im.Data))
	}
	if im.Mask != nil && len(im.Mask) != n {
		return shapeErrorf("mask has %d entries, but shape %v has %d samples", len(im.Mask), im.Shape, n)
	}
	return nil
}

func (im Image) Nx() int { return im.Shape[len(im.Shape)-1] }
func (im Image) Ny() int { return im.Shape[len(im.Shape)-2] }

// NumPlanes is the number of 2-D planes: the product of the leading
// dimensions.
func (im Image) NumPlanes() int {
	n := 1
	for _, d := range im.Shape[:len(im.Shape)-2] {
		n *= d
	}
	return n
}

// Plane returns a view (not a copy) of the i'th 2-D plane.
func (im Image) Plane(i int) emath.FloatGrid {
	nx, ny := im.Nx(), im.Ny()
	g, err := emath.FloatGridFromValues(nx, ny, im.Data[i*nx*ny:(i+1)*nx*ny])
	if err != nil {
		// Can't happen for a validated image
		panic(err)
	}
	return g
}

func (im Image) String() string {
	masked := ""
	if im.Mask != nil {
		masked = ", masked"
	}
	return fmt.Sprintf("Image%v%s", im.Shape, masked)
}

// plane is a read-only view of one 2-D slice, for the samplers.
type plane struct {
	nx, ny int
	vals   []float64
	mask   []bool
}

func (im Image) plane(i int) plane {
	nx, ny := im.Nx(), im.Ny()
	p := plane{nx: nx, ny: ny, vals: im.Data[i*nx*ny : (i+1)*nx*ny]}
	if im.Mask != nil {
		p.mask = im.Mask[i*nx*ny : (i+1)*nx*ny]
	}
	return p
}

// at returns the sample at (x,y), and whether it is usable.
func (p plane) at(x, y int) (float64, bool) {
	if x < 0 || y < 0 || x >= p.nx || y >= p.ny {
		return 0, false
	}
	i := y*p.nx + x
	if p.mask != nil && !p.mask[i] {
		return 0, false
	}
	v := p.vals[i]
	return v, emath.IsFinite(v)
}
