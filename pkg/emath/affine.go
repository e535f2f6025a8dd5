package emath

// Some basic affine transformations, used by the linear coordinate
// systems and by the sky rotations in the projections.

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f64" // Will be "image/math/f64" at some point, hopefully make this file redundant
)

// Use a local type so we can hang methods off it
type Aff3 f64.Aff3

// Cut-n-pasted from image@0.7.0/draw/scale:matMul
func (p Aff3) Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0, 0, 1, 0}
}

func (m1 Aff3) Translate(tx, ty float64) Aff3 {
	return m1.Mult(Aff3{1, 0, tx, 0, 1, ty})
}

func (m1 Aff3) Scale(sx, sy float64) Aff3 {
	return m1.Mult(Aff3{sx, 0, 0, 0, sy, 0})
}

func (m1 Aff3) Rotate(thetaDeg float64) Aff3 {
	cosTheta := math.Cos(thetaDeg * math.Pi / 180.0)
	sinTheta := math.Sin(thetaDeg * math.Pi / 180.0)
	return m1.Mult(Aff3{cosTheta, -1 * sinTheta, 0, sinTheta, cosTheta, 0})
}

func RotateAbout(thetaDeg, x, y float64) Aff3 {
	// Remember they compose back to front - rightmost operations performed first
	return Identity().Translate(x, y).Rotate(thetaDeg).Translate(-1*x, -1*y)
}

// Apply maps the point (x,y) through the transform.
func (m Aff3) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// Det is the determinant of the linear part; its magnitude is the area
// scale factor of the transform.
func (m Aff3) Det() float64 {
	return m[0]*m[4] - m[1]*m[3]
}

// Invert returns the inverse transform. It fails if the linear part is
// singular (or close enough that the inverse would be garbage).
func (m Aff3) Invert() (Aff3, error) {
	det := m.Det()
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Aff3{}, fmt.Errorf("affine transform %v is not invertible (det=%g)", [6]float64(m), det)
	}

	a, b := m[4]/det, -m[1]/det
	c, d := -m[3]/det, m[0]/det
	return Aff3{
		a, b, -(a*m[2] + b*m[5]),
		c, d, -(c*m[2] + d*m[5]),
	}, nil
}

func (m Aff3) String() string {
	return fmt.Sprintf("[%10f, %10f, %10f; %10f, %10f, %10f]", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Actual 3x3 matrixes, used for rotations on the unit sphere
type Vec3 f64.Vec3
type Mat3 f64.Mat3

func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		(m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2]),
		(m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2]),
		(m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2]),
	}
}

// Transpose of a rotation matrix is its inverse
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

func (m Mat3) String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*0+0], m[3*0+1], m[3*0+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*1+0], m[3*1+1], m[3*1+2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3*2+0], m[3*2+1], m[3*2+2])
	return str
}
func (v Vec3) String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

// Unit vector on the sphere for a (lon,lat) pair, in degrees
func SphereVec(lonDeg, latDeg float64) Vec3 {
	lon := lonDeg * math.Pi / 180.0
	lat := latDeg * math.Pi / 180.0
	return Vec3{math.Cos(lat) * math.Cos(lon), math.Cos(lat) * math.Sin(lon), math.Sin(lat)}
}

// SphereLonLat is the inverse of SphereVec; the vector need not be
// normalized. Longitude comes back in [0,360).
func (v Vec3) SphereLonLat() (float64, float64) {
	r := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	lon := math.Atan2(v[1], v[0]) * 180.0 / math.Pi
	if lon < 0 {
		lon += 360.0
	}
	lat := math.Asin(v[2]/r) * 180.0 / math.Pi
	return lon, lat
}
