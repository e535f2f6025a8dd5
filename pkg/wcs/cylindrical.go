package wcs

import (
	"fmt"
	"math"
	"strings"

	"github.com/owlpinetech/flatsphere"

	"github.com/minzastro/reproject/pkg/emath"
)

// Cylindrical covers the FITS cylindrical projections, CAR (plate
// carree) and MER (Mercator), with the projection's equator on the
// celestial equator. The sphere<->plane step is done by flatsphere, in
// radians on the unit sphere; CRVAL picks the central meridian and the
// latitude that lands on CRPIX.
type Cylindrical struct {
	Code  string // "car" or "mer"
	CRPix [2]float64
	CRVal World
	CD    [4]float64

	proj  flatsphere.Projection
	y0    float64 // projected CRVAL latitude, in radians
	cdInv [4]float64
}

const deg2rad = math.Pi / 180.0

func NewCylindrical(code string, crpix [2]float64, crval World, cd [4]float64) (Cylindrical, error) {
	det := cd[0]*cd[3] - cd[1]*cd[2]
	if det == 0 || !emath.IsFinite(det) {
		return Cylindrical{}, fmt.Errorf("%s CD matrix %v is singular", strings.ToUpper(code), cd)
	}
	if math.Abs(crval.Lat) >= 90 {
		return Cylindrical{}, fmt.Errorf("%s reference latitude %f out of range", strings.ToUpper(code), crval.Lat)
	}

	var proj flatsphere.Projection
	switch strings.ToLower(code) {
	case "car":
		proj = flatsphere.NewEquirectangular(0)
	case "mer":
		proj = flatsphere.NewMercator()
	default:
		return Cylindrical{}, fmt.Errorf("no cylindrical projection named '%s'", code)
	}

	_, y0 := proj.Project(crval.Lat*deg2rad, 0)

	return Cylindrical{
		Code:  strings.ToLower(code),
		CRPix: crpix,
		CRVal: crval,
		CD:    cd,
		proj:  proj,
		y0:    y0,
		cdInv: [4]float64{cd[3] / det, -cd[1] / det, -cd[2] / det, cd[0] / det},
	}, nil
}

func (c Cylindrical) PixelToWorld(x, y float64) (World, bool) {
	if !emath.IsFinite(x) || !emath.IsFinite(y) {
		return World{}, false
	}
	dx, dy := x-c.CRPix[0], y-c.CRPix[1]
	xi := c.CD[0]*dx + c.CD[1]*dy
	eta := c.CD[2]*dx + c.CD[3]*dy
	if math.Abs(xi) > 180 {
		return World{}, false
	}

	lat, lon := c.proj.Inverse(xi*deg2rad, eta*deg2rad+c.y0)
	lat, lon = lat/deg2rad, lon/deg2rad
	if !emath.IsFinite(lat) || !emath.IsFinite(lon) || math.Abs(lat) > 90 {
		return World{}, false
	}
	return World{wrapLon(lon+c.CRVal.Lon, 180), lat}, true
}

func (c Cylindrical) WorldToPixel(w World) (float64, float64, bool) {
	if !emath.IsFinite(w.Lon) || !emath.IsFinite(w.Lat) || math.Abs(w.Lat) > 90 {
		return 0, 0, false
	}
	if c.Code == "mer" && math.Abs(w.Lat) == 90 {
		return 0, 0, false // the poles are at infinity
	}
	dlon := wrapLon(w.Lon-c.CRVal.Lon, 0)
	px, py := c.proj.Project(w.Lat*deg2rad, dlon*deg2rad)
	if !emath.IsFinite(px) || !emath.IsFinite(py) {
		return 0, 0, false
	}
	xi := px / deg2rad
	eta := (py - c.y0) / deg2rad

	x := c.cdInv[0]*xi + c.cdInv[1]*eta + c.CRPix[0]
	y := c.cdInv[2]*xi + c.cdInv[3]*eta + c.CRPix[1]
	return x, y, true
}

func (c Cylindrical) String() string {
	return fmt.Sprintf("%s[crpix=(%.2f,%.2f) crval=%s cd=%v]", strings.ToUpper(c.Code), c.CRPix[0], c.CRPix[1], c.CRVal, c.CD)
}
