package tileio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/minzastro/reproject/pkg/emath"
	"github.com/minzastro/reproject/pkg/reproject"
)

// planeImage presents one or three planes of a mosaic as an HDR image.
// A single plane comes out grey. Missing (NaN) pixels come out black.
type planeImage struct {
	planes []emath.FloatGrid
}

// Implement golang's image.Image interface
func (pi planeImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (pi planeImage) Bounds() image.Rectangle { return pi.planes[0].Bounds() }
func (pi planeImage) At(x, y int) color.Color { return pi.HDRAt(x, y) }

// Implement hdr.Image interface
func (pi planeImage) HDRAt(x, y int) hdrcolor.Color {
	v := [3]float64{}
	for i := range v {
		p := pi.planes[min(i, len(pi.planes)-1)]
		if f := p.Get(x, y); emath.IsFinite(f) && f > 0 {
			v[i] = f
		}
	}
	return hdrcolor.RGB{R: v[0], G: v[1], B: v[2]}
}
func (pi planeImage) Size() int { return pi.Bounds().Dx() * pi.Bounds().Dy() }

var _ hdr.Image = planeImage{}

func newPlaneImage(img reproject.Image) (planeImage, error) {
	pi := planeImage{}
	if err := img.Validate(); err != nil {
		return pi, err
	}
	if n := img.NumPlanes(); n != 1 && n != 3 {
		return pi, fmt.Errorf("can't make an HDR image from %d planes", n)
	}
	for i := 0; i < img.NumPlanes(); i++ {
		pi.planes = append(pi.planes, img.Plane(i))
	}
	return pi, nil
}

// WriteHDR writes a mosaic as a Radiance RGBE file. It must have either
// one plane, or three (taken as R,G,B).
func WriteHDR(img reproject.Image, filename string) error {
	pi, err := newPlaneImage(img)
	if err != nil {
		return fmt.Errorf("write '%s': %v", filename, err)
	}

	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, pi)
	}
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}

// CoverageColor maps a footprint to a false colour: black where there's
// no data, then from blue (barely covered) round to red (fully covered).
// Footprints above 1 (from summed footprints) are scaled by `peak`.
func CoverageColor(f, peak float64) color.Color {
	if !(f > 0) {
		return color.Black
	}
	if peak > 1 {
		f /= peak
	}
	f = emath.Clamp(f, 0, 1)
	return colorful.Hsv(240*(1-f), 0.9, 0.4+0.6*f).Clamped()
}

// WriteCoveragePNG renders a footprint map.
func WriteCoveragePNG(fp emath.FloatGrid, filename string) error {
	peak := 0.0
	for _, f := range fp.Values() {
		if emath.IsFinite(f) && f > peak {
			peak = f
		}
	}

	img := image.NewRGBA(fp.Bounds())
	for y := 0; y < fp.Dy(); y++ {
		for x := 0; x < fp.Dx(); x++ {
			img.Set(x, y, CoverageColor(fp.Get(x, y), peak))
		}
	}
	return WritePNG(img, filename)
}
