package wcs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/minzastro/reproject/pkg/emath"
)

func mustGnomonic(t *testing.T, crpix [2]float64, crval World, scale float64) Gnomonic {
	t.Helper()
	g, err := NewGnomonic(crpix, crval, [4]float64{-scale, 0, 0, scale})
	require.NoError(t, err)
	return g
}

func TestGnomonicReferencePixel(t *testing.T) {
	g := mustGnomonic(t, [2]float64{50, 60}, World{83.8, -5.4}, 0.001)

	w, ok := g.PixelToWorld(50, 60)
	require.True(t, ok)
	assert.InDelta(t, 83.8, w.Lon, 1e-10)
	assert.InDelta(t, -5.4, w.Lat, 1e-10)

	x, y, ok := g.WorldToPixel(World{83.8, -5.4})
	require.True(t, ok)
	assert.InDelta(t, 50.0, x, 1e-8)
	assert.InDelta(t, 60.0, y, 1e-8)
}

func TestGnomonicOrientation(t *testing.T) {
	g := mustGnomonic(t, [2]float64{0, 0}, World{10, 0}, 0.01)

	// CD1_1 < 0, so moving right in x goes west (lower longitude)
	w, ok := g.PixelToWorld(10, 0)
	require.True(t, ok)
	assert.Less(t, w.Lon, 10.0)
	assert.InDelta(t, 0.0, w.Lat, 1e-10)

	// and moving up in y goes north
	w, ok = g.PixelToWorld(0, 10)
	require.True(t, ok)
	assert.Greater(t, w.Lat, 0.0)
}

func TestGnomonicRoundTrip(t *testing.T) {
	g := mustGnomonic(t, [2]float64{255.5, 255.5}, World{200, 60}, 0.01)

	for _, pt := range [][2]float64{{0, 0}, {511, 0}, {100.25, 400.75}, {-300, 900}} {
		w, ok := g.PixelToWorld(pt[0], pt[1])
		require.True(t, ok)
		x, y, ok := g.WorldToPixel(w)
		require.True(t, ok)
		assert.InDelta(t, pt[0], x, 1e-7)
		assert.InDelta(t, pt[1], y, 1e-7)
	}
}

func TestGnomonicRejectsFarHemisphere(t *testing.T) {
	g := mustGnomonic(t, [2]float64{0, 0}, World{0, 0}, 0.01)

	_, _, ok := g.WorldToPixel(World{180, 0})
	assert.False(t, ok, "antipode is behind the tangent plane")
	_, _, ok = g.WorldToPixel(World{90, 0})
	assert.False(t, ok, "horizon is not projectable")
	_, _, ok = g.WorldToPixel(World{math.NaN(), 0})
	assert.False(t, ok)
	_, _, ok = g.WorldToPixel(World{0, 95})
	assert.False(t, ok)
}

func TestGnomonicBadParameters(t *testing.T) {
	_, err := NewGnomonic([2]float64{0, 0}, World{0, 0}, [4]float64{0, 0, 0, 0})
	assert.Error(t, err)
	_, err = NewGnomonic([2]float64{0, 0}, World{0, 91}, [4]float64{1, 0, 0, 1})
	assert.Error(t, err)
}

func TestLinear(t *testing.T) {
	l, err := NewLinearFromCD([2]float64{10, 20}, World{100, 30}, [4]float64{0.5, 0, 0, 0.25})
	require.NoError(t, err)

	w, ok := l.PixelToWorld(12, 24)
	require.True(t, ok)
	assert.InDelta(t, 101.0, w.Lon, 1e-12)
	assert.InDelta(t, 31.0, w.Lat, 1e-12)

	x, y, ok := l.WorldToPixel(w)
	require.True(t, ok)
	assert.InDelta(t, 12.0, x, 1e-12)
	assert.InDelta(t, 24.0, y, 1e-12)

	_, ok = l.PixelToWorld(math.Inf(1), 0)
	assert.False(t, ok)

	_, err = NewLinear(emath.Aff3{0, 0, 0, 0, 0, 0})
	assert.Error(t, err)
}

func TestTransformIdentityIsExact(t *testing.T) {
	g := mustGnomonic(t, [2]float64{31.5, 31.5}, World{150, 2}, 0.0007)
	tr, err := NewTransform(g, g, DefaultTolerance)
	require.NoError(t, err)

	for y := 0; y < 64; y += 7 {
		for x := 0; x < 64; x += 5 {
			sx, sy, ok := tr.TargetToSource(float64(x), float64(y))
			require.True(t, ok)
			assert.Equal(t, float64(x), sx)
			assert.Equal(t, float64(y), sy)
		}
	}
}

func TestTransformBetweenSystems(t *testing.T) {
	src := mustGnomonic(t, [2]float64{50, 50}, World{10, 20}, 0.01)
	dst := mustGnomonic(t, [2]float64{100, 100}, World{10, 20}, 0.005)
	tr, err := NewTransform(src, dst, DefaultTolerance)
	require.NoError(t, err)

	// Same tangent point, twice the resolution: offsets double
	x, y, ok := tr.SourceToTarget(60, 45)
	require.True(t, ok)
	assert.InDelta(t, 120.0, x, 1e-6)
	assert.InDelta(t, 90.0, y, 1e-6)

	sx, sy, ok := tr.TargetToSource(x, y)
	require.True(t, ok)
	assert.InDelta(t, 60.0, sx, 1e-6)
	assert.InDelta(t, 45.0, sy, 1e-6)

	r, ok := tr.Residual(12.3, 45.6)
	require.True(t, ok)
	assert.Less(t, r, 1e-6)
}

func TestTransformFailsOutsideDomain(t *testing.T) {
	src := mustGnomonic(t, [2]float64{0, 0}, World{0, 0}, 0.01)
	dst := mustGnomonic(t, [2]float64{0, 0}, World{180, 0}, 0.01)
	tr, err := NewTransform(src, dst, DefaultTolerance)
	require.NoError(t, err)

	_, _, ok := tr.TargetToSource(0, 0)
	assert.False(t, ok, "opposite tangent points can't see each other")

	_, err = NewTransform(nil, dst, 0)
	assert.Error(t, err)
}

// warped is a coordinate system whose inverse is deliberately sloppy.
type warped struct{ Linear }

func (w warped) WorldToPixel(wc World) (float64, float64, bool) {
	x, y, ok := w.Linear.WorldToPixel(wc)
	return x + 0.5, y, ok
}

func TestTransformToleranceRejectsDrift(t *testing.T) {
	l, err := NewLinear(emath.Identity())
	require.NoError(t, err)
	sloppy := warped{l}

	strict, err := NewTransform(sloppy, l, DefaultTolerance)
	require.NoError(t, err)
	_, _, ok := strict.SourceToTarget(3, 3)
	assert.False(t, ok)

	relaxed, err := NewTransform(sloppy, l, 1.0)
	require.NoError(t, err)
	_, _, ok = relaxed.SourceToTarget(3, 3)
	assert.True(t, ok)

	unchecked, err := NewTransform(sloppy, l, 0)
	require.NoError(t, err)
	_, _, ok = unchecked.SourceToTarget(3, 3)
	assert.True(t, ok)
}

func TestPixelArea(t *testing.T) {
	g := mustGnomonic(t, [2]float64{0, 0}, World{45, 30}, 0.01)
	area, ok := PixelArea(g, 0, 0)
	require.True(t, ok)
	assert.InDelta(t, 1e-4, area, 1e-8)

	l, err := NewLinearFromCD([2]float64{0, 0}, World{0, 0}, [4]float64{0.001, 0, 0, 0.001})
	require.NoError(t, err)
	area, ok = PixelArea(l, 0, 0)
	require.True(t, ok)
	assert.InDelta(t, 1e-6, area, 1e-10)
}

func TestSpecBuild(t *testing.T) {
	doc := `
projection: tan
crpix: [10, 20]
crval: [83.8, -5.4]
cd: [-0.001, 0, 0, 0.001]
`
	var s Spec
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))

	cs, err := s.Build()
	require.NoError(t, err)
	g, ok := cs.(Gnomonic)
	require.True(t, ok)
	assert.Equal(t, [2]float64{10, 20}, g.CRPix)

	s.Projection = "linear"
	cs, err = s.Build()
	require.NoError(t, err)
	assert.IsType(t, Linear{}, cs)

	s.Projection = "zenithal-equal-area"
	_, err = s.Build()
	assert.Error(t, err)

	assert.Equal(t, "tan", SpecFromGnomonic(g).Projection)
}

func TestOptimalGnomonicCoversFrames(t *testing.T) {
	a := mustGnomonic(t, [2]float64{49.5, 49.5}, World{150.0, 2.0}, 0.001)
	b := mustGnomonic(t, [2]float64{49.5, 49.5}, World{150.05, 2.03}, 0.001)
	frames := []Frame{{CS: a, Nx: 100, Ny: 100}, {CS: b, Nx: 100, Ny: 100}}

	g, nx, ny, err := OptimalGnomonic(frames, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, -g.CD[0], 1e-6)

	// ~0.05 deg of RA offset + 0.1 deg frame: about 150 pixels wide
	assert.InDelta(t, 150, nx, 3)
	assert.InDelta(t, 130, ny, 3)

	for _, f := range frames {
		for _, w := range f.Corners() {
			x, y, ok := g.WorldToPixel(w)
			require.True(t, ok)
			assert.GreaterOrEqual(t, x, -0.5-1e-6)
			assert.GreaterOrEqual(t, y, -0.5-1e-6)
			assert.LessOrEqual(t, x, float64(nx)-0.5+1e-6)
			assert.LessOrEqual(t, y, float64(ny)-0.5+1e-6)
		}
	}

	_, _, _, err = OptimalGnomonic(nil, 0)
	assert.Error(t, err)
}

func TestLinearAcrossLongitudeZero(t *testing.T) {
	cd := [4]float64{-0.001, 0, 0, 0.001}
	plate, err := NewLinearFromCD([2]float64{9.5, 9.5}, World{0, 0}, cd)
	require.NoError(t, err)
	tan, err := NewGnomonic([2]float64{9.5, 9.5}, World{0, 0}, cd)
	require.NoError(t, err)

	// West of lon 0, TAN hands back longitudes just under 360
	w, ok := tan.PixelToWorld(15, 9.5)
	require.True(t, ok)
	assert.Greater(t, w.Lon, 359.0)
	x, y, ok := plate.WorldToPixel(w)
	require.True(t, ok)
	assert.InDelta(t, 15, x, 1e-6)
	assert.InDelta(t, 9.5, y, 1e-6)

	tr, err := NewTransform(plate, tan, DefaultTolerance)
	require.NoError(t, err)
	for ty := 0; ty < 20; ty++ {
		for tx := 0; tx < 20; tx++ {
			sx, sy, ok := tr.TargetToSource(float64(tx), float64(ty))
			require.True(t, ok, "pixel (%d,%d)", tx, ty)
			assert.InDelta(t, float64(tx), sx, 0.01)
			assert.InDelta(t, float64(ty), sy, 0.01)
		}
	}

	// Longitudes already in range are untouched
	x, _, _ = plate.WorldToPixel(World{-0.0055, 0})
	want, _ := plate.worldToPix.Apply(-0.0055, 0)
	assert.Equal(t, want, x)

	// A raw affine plane has no notion of longitude
	flat, err := NewLinear(emath.Identity())
	require.NoError(t, err)
	x, _, _ = flat.WorldToPixel(World{359, 0})
	assert.Equal(t, 359.0, x)
}

func TestCylindricalRoundTrip(t *testing.T) {
	for _, code := range []string{"car", "mer"} {
		c, err := NewCylindrical(code, [2]float64{179.5, 89.5}, World{0, 10}, [4]float64{-0.5, 0, 0, 0.5})
		require.NoError(t, err, code)

		w, ok := c.PixelToWorld(179.5, 89.5)
		require.True(t, ok, code)
		assert.InDelta(t, 0, math.Min(w.Lon, 360-w.Lon), 1e-9, code)
		assert.InDelta(t, 10, w.Lat, 1e-9, code)

		for _, p := range [][2]float64{{0, 0}, {100, 40}, {250.25, 120.5}, {359, 150}} {
			w, ok := c.PixelToWorld(p[0], p[1])
			require.True(t, ok, "%s %v", code, p)
			assert.GreaterOrEqual(t, w.Lon, 0.0)
			assert.Less(t, w.Lon, 360.0)
			x, y, ok := c.WorldToPixel(w)
			require.True(t, ok, "%s %v", code, p)
			assert.InDelta(t, p[0], x, 1e-6, "%s %v", code, p)
			assert.InDelta(t, p[1], y, 1e-6, "%s %v", code, p)
		}
	}
}

func TestCylindricalGeometry(t *testing.T) {
	cd := [4]float64{-0.1, 0, 0, 0.1}
	car, err := NewCylindrical("car", [2]float64{0, 0}, World{0, 0}, cd)
	require.NoError(t, err)

	// Plate carree is linear in both axes, and RA runs to the left
	w, ok := car.PixelToWorld(-20, 30)
	require.True(t, ok)
	assert.InDelta(t, 2, w.Lon, 1e-9)
	assert.InDelta(t, 3, w.Lat, 1e-9)

	// West of the central meridian wraps round to just under 360
	w, ok = car.PixelToWorld(20, 0)
	require.True(t, ok)
	assert.InDelta(t, 358, w.Lon, 1e-9)

	// Mercator stretches latitude away from the equator
	mer, err := NewCylindrical("mer", [2]float64{0, 0}, World{0, 0}, cd)
	require.NoError(t, err)
	w, ok = mer.PixelToWorld(0, 300)
	require.True(t, ok)
	assert.Less(t, w.Lat, 30.0)
	assert.Greater(t, w.Lat, 25.0)
	_, _, ok = mer.WorldToPixel(World{0, 90})
	assert.False(t, ok, "the pole is at infinity")

	_, err = NewCylindrical("sin", [2]float64{0, 0}, World{0, 0}, cd)
	assert.Error(t, err)
	_, err = NewCylindrical("car", [2]float64{0, 0}, World{0, 0}, [4]float64{1, 2, 2, 4})
	assert.Error(t, err)

	cs, err := Spec{Projection: "MER", CD: cd}.Build()
	require.NoError(t, err)
	assert.IsType(t, Cylindrical{}, cs)
}

// nowhere maps no pixel onto the sky.
type nowhere struct{ Linear }

func (nowhere) PixelToWorld(x, y float64) (World, bool) { return World{}, false }

func TestOptimalGnomonicNeedsCorners(t *testing.T) {
	a := mustGnomonic(t, [2]float64{49.5, 49.5}, World{150.0, 2.0}, 0.001)
	_, _, _, err := OptimalGnomonic([]Frame{{CS: a, Nx: 100, Ny: 100}, {CS: nowhere{}, Nx: 10, Ny: 10}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 1")
}
