package emath

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAff3InvertRoundTrip(t *testing.T) {
	m := Identity().Translate(12.5, -3).Rotate(27).Scale(0.25, 0.5)

	inv, err := m.Invert()
	require.NoError(t, err)

	for _, pt := range [][2]float64{{0, 0}, {10, 20}, {-4.5, 7.25}} {
		x, y := m.Apply(pt[0], pt[1])
		bx, by := inv.Apply(x, y)
		assert.InDelta(t, pt[0], bx, 1e-12)
		assert.InDelta(t, pt[1], by, 1e-12)
	}

	assert.InDelta(t, 0.125, math.Abs(m.Det()), 1e-12, "rotation keeps area, scale does not")
}

func TestAff3InvertSingular(t *testing.T) {
	_, err := Aff3{1, 2, 0, 2, 4, 0}.Invert()
	assert.Error(t, err)
}

func TestRotateAboutKeepsCenter(t *testing.T) {
	m := RotateAbout(90, 5, 5)
	x, y := m.Apply(5, 5)
	assert.InDelta(t, 5.0, x, 1e-12)
	assert.InDelta(t, 5.0, y, 1e-12)

	x, y = m.Apply(6, 5)
	assert.InDelta(t, 5.0, x, 1e-12)
	assert.InDelta(t, 6.0, y, 1e-12)
}

func TestSphereVecRoundTrip(t *testing.T) {
	for _, ll := range [][2]float64{{0, 0}, {45, 30}, {359.5, -89}, {180, 10}} {
		lon, lat := SphereVec(ll[0], ll[1]).SphereLonLat()
		assert.InDelta(t, ll[0], lon, 1e-9)
		assert.InDelta(t, ll[1], lat, 1e-9)
	}
}

func TestMat3TransposeInvertsRotation(t *testing.T) {
	c, s := math.Cos(0.3), math.Sin(0.3)
	r := Mat3{c, -s, 0, s, c, 0, 0, 0, 1}
	v := Vec3{0.2, -0.7, 0.5}
	back := r.Transpose().Apply(r.Apply(v))
	for i := range v {
		assert.InDelta(t, v[i], back[i], 1e-12)
	}
}

func TestFloatGridFromValues(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5, 6}
	g, err := FloatGridFromValues(3, 2, vals)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Dx())
	assert.Equal(t, 2, g.Dy())
	assert.Equal(t, 6.0, g.Get(2, 1))

	g.Set(0, 1, 40)
	assert.Equal(t, 40.0, vals[3], "grid is a view onto the buffer")

	_, err = FloatGridFromValues(4, 2, vals)
	assert.Error(t, err)
	_, err = FloatGridFromValues(0, 2, nil)
	assert.Error(t, err)
}

func TestFloatGridSumSkipsNaN(t *testing.T) {
	g := NewFloatGrid(2, 2)
	g.Set(0, 0, 1.5)
	g.Set(1, 0, math.NaN())
	g.Set(0, 1, 2.5)
	g.Set(1, 1, math.Inf(1))

	assert.Equal(t, 4.0, g.Sum())
	assert.Len(t, g.Finite(), 3)
	assert.Contains(t, g.Stats(), "1 NaN")
}

func TestFloatGridPercentiles(t *testing.T) {
	g := NewFloatGrid(10, 10)
	for i := range g.Values() {
		g.Values()[i] = float64(i)
	}
	lo, hi := g.Percentiles(0.1, 0.9)
	assert.Equal(t, 10.0, lo)
	assert.Equal(t, 90.0, hi)

	empty := NewFloatGrid(1, 1)
	empty.Fill(math.NaN())
	lo, hi = empty.Percentiles(0, 1)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
}

func TestFloatGridToImg(t *testing.T) {
	g := NewFloatGrid(16, 8)
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			g.Set(x, y, float64(x*y))
		}
	}
	g.Set(0, 0, math.NaN())

	fn := filepath.Join(t.TempDir(), "grid.png")
	require.NoError(t, g.ToImg("test", fn))
	assert.FileExists(t, fn)
}

func TestSnapToInt(t *testing.T) {
	assert.Equal(t, 5.0, SnapToInt(4.9999999999, 1e-9))
	assert.Equal(t, 4.9, SnapToInt(4.9, 1e-9))
	assert.Equal(t, -2.0, SnapToInt(-2.0000000001, 1e-9))
}
