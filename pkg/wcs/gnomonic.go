package wcs

import (
	"fmt"
	"math"

	"github.com/minzastro/reproject/pkg/emath"
)

// Gnomonic is the FITS TAN projection: the sky is projected from the
// center of the sphere onto the plane tangent at CRVAL. The projection
// only covers the hemisphere in front of the tangent point; anything
// else fails WorldToPixel.
type Gnomonic struct {
	CRPix [2]float64 // 0-based reference pixel
	CRVal World      // world coords of the reference pixel
	CD    [4]float64 // row-major, degrees per pixel

	cdInv [4]float64
	rot   emath.Mat3 // rows are the east, north and tangent-point unit vectors
	rotT  emath.Mat3
}

// Points closer than this to the tangent plane's horizon (in units of
// the cosine of the angle to CRVAL) are treated as outside the domain.
const horizonEpsilon = 1e-10

func NewGnomonic(crpix [2]float64, crval World, cd [4]float64) (Gnomonic, error) {
	det := cd[0]*cd[3] - cd[1]*cd[2]
	if det == 0 || !emath.IsFinite(det) {
		return Gnomonic{}, fmt.Errorf("TAN CD matrix %v is singular", cd)
	}
	if math.Abs(crval.Lat) > 90 {
		return Gnomonic{}, fmt.Errorf("TAN reference latitude %f out of range", crval.Lat)
	}

	a := crval.Lon * math.Pi / 180.0
	d := crval.Lat * math.Pi / 180.0
	east := emath.Vec3{-math.Sin(a), math.Cos(a), 0}
	north := emath.Vec3{-math.Sin(d) * math.Cos(a), -math.Sin(d) * math.Sin(a), math.Cos(d)}
	center := emath.SphereVec(crval.Lon, crval.Lat)

	rot := emath.Mat3{
		east[0], east[1], east[2],
		north[0], north[1], north[2],
		center[0], center[1], center[2],
	}

	return Gnomonic{
		CRPix: crpix,
		CRVal: crval,
		CD:    cd,
		cdInv: [4]float64{cd[3] / det, -cd[1] / det, -cd[2] / det, cd[0] / det},
		rot:   rot,
		rotT:  rot.Transpose(),
	}, nil
}

func (g Gnomonic) PixelToWorld(x, y float64) (World, bool) {
	if !emath.IsFinite(x) || !emath.IsFinite(y) {
		return World{}, false
	}
	dx, dy := x-g.CRPix[0], y-g.CRPix[1]
	xi := (g.CD[0]*dx + g.CD[1]*dy) * math.Pi / 180.0
	eta := (g.CD[2]*dx + g.CD[3]*dy) * math.Pi / 180.0

	s := g.rotT.Apply(emath.Vec3{xi, eta, 1})
	lon, lat := s.SphereLonLat()
	return World{lon, lat}, true
}

func (g Gnomonic) WorldToPixel(w World) (float64, float64, bool) {
	if !emath.IsFinite(w.Lon) || !emath.IsFinite(w.Lat) || math.Abs(w.Lat) > 90 {
		return 0, 0, false
	}
	local := g.rot.Apply(emath.SphereVec(w.Lon, w.Lat))
	if local[2] <= horizonEpsilon {
		return 0, 0, false
	}
	xi := local[0] / local[2] * 180.0 / math.Pi
	eta := local[1] / local[2] * 180.0 / math.Pi

	x := g.cdInv[0]*xi + g.cdInv[1]*eta + g.CRPix[0]
	y := g.cdInv[2]*xi + g.cdInv[3]*eta + g.CRPix[1]
	return x, y, true
}

func (g Gnomonic) String() string {
	return fmt.Sprintf("TAN[crpix=(%.2f,%.2f) crval=%s cd=%v]", g.CRPix[0], g.CRPix[1], g.CRVal, g.CD)
}
