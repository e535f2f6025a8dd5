package wcs

import (
	"math"

	"github.com/minzastro/reproject/pkg/emath"
)

// Linear is a plate-style coordinate system; world coords are an affine
// function of pixel coords. It's defined everywhere, so the only
// failures are non-finite inputs.
//
// A Linear built from CD keywords describes the sky, so longitudes are
// taken modulo 360 around its reference longitude. One built from a raw
// affine map is a flat plane and is left alone.
type Linear struct {
	PixToWorld emath.Aff3
	worldToPix emath.Aff3

	wrap   bool
	lonRef float64
}

func NewLinear(m emath.Aff3) (Linear, error) {
	inv, err := m.Invert()
	if err != nil {
		return Linear{}, err
	}
	return Linear{PixToWorld: m, worldToPix: inv}, nil
}

// NewLinearFromCD builds the affine map from FITS-style keywords: the
// reference pixel maps to crval, and cd gives degrees per pixel.
func NewLinearFromCD(crpix [2]float64, crval World, cd [4]float64) (Linear, error) {
	m := emath.Identity().Translate(crval.Lon, crval.Lat).
		Mult(emath.Aff3{cd[0], cd[1], 0, cd[2], cd[3], 0}).
		Translate(-crpix[0], -crpix[1])
	l, err := NewLinear(m)
	if err != nil {
		return l, err
	}
	l.wrap, l.lonRef = true, crval.Lon
	return l, nil
}

func (l Linear) PixelToWorld(x, y float64) (World, bool) {
	if !emath.IsFinite(x) || !emath.IsFinite(y) {
		return World{}, false
	}
	lon, lat := l.PixToWorld.Apply(x, y)
	return World{lon, lat}, true
}

func (l Linear) WorldToPixel(w World) (float64, float64, bool) {
	if !emath.IsFinite(w.Lon) || !emath.IsFinite(w.Lat) {
		return 0, 0, false
	}
	lon := w.Lon
	if l.wrap {
		lon = wrapLon(lon, l.lonRef)
	}
	x, y := l.worldToPix.Apply(lon, w.Lat)
	return x, y, true
}

func (l Linear) String() string {
	return "Linear" + l.PixToWorld.String()
}

// wrapLon brings lon into [ref-180, ref+180). Longitudes already in range
// come back bit for bit.
func wrapLon(lon, ref float64) float64 {
	if d := lon - ref; d < -180 || d >= 180 {
		lon -= 360 * math.Floor((d+180)/360)
	}
	return lon
}
