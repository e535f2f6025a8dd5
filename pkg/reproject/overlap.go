package reproject

import (
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/minzastro/reproject/pkg/emath"
	"github.com/minzastro/reproject/pkg/wcs"
)

// An overlap is the area shared by one source pixel's projected quad
// and one output pixel, in output pixel units.
type overlap struct {
	src  int     // index into the source plane
	dst  int     // index into the block's coverage
	area float64 // overlap area
	frac float64 // overlap area as a fraction of the whole quad
}

// Extra source pixels to consider around the sampled border of a block.
const sourceMargin = 2

// sourceRange returns the source pixels that might overlap the output
// block, by mapping the block's border (pixel edges, not centers) back
// into the source image. If some of the border can't be mapped, the
// whole lattice of pixel corners inside the block is mapped instead,
// and the range covers whichever of those landed. The range never grows
// past what the block itself can see of the source.
func sourceRange(t wcs.Transform, r image.Rectangle, nx, ny int) image.Rectangle {
	x0, y0 := float64(r.Min.X)-0.5, float64(r.Min.Y)-0.5
	x1, y1 := float64(r.Max.X)-0.5, float64(r.Max.Y)-0.5

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	add := func(x, y float64) bool {
		sx, sy, ok := t.TargetToSource(x, y)
		if !ok {
			return false
		}
		minX, maxX = math.Min(minX, sx), math.Max(maxX, sx)
		minY, maxY = math.Min(minY, sy), math.Max(maxY, sy)
		return true
	}

	complete := true
	for i := 0; i <= r.Dx(); i++ {
		x := x0 + float64(i)
		complete = add(x, y0) && complete
		complete = add(x, y1) && complete
	}
	for j := 1; j < r.Dy(); j++ {
		y := y0 + float64(j)
		complete = add(x0, y) && complete
		complete = add(x1, y) && complete
	}

	if !complete {
		for j := 1; j < r.Dy(); j++ {
			for i := 1; i < r.Dx(); i++ {
				add(x0+float64(i), y0+float64(j))
			}
		}
	}
	if math.IsInf(minX, 1) {
		return image.Rectangle{}
	}

	// Clamp before converting, as points near a projection's horizon
	// can land absurdly far away
	fx, fy := float64(nx), float64(ny)
	sr := image.Rect(
		int(math.Floor(emath.Clamp(minX, -1, fx)+0.5))-sourceMargin,
		int(math.Floor(emath.Clamp(minY, -1, fy)+0.5))-sourceMargin,
		int(math.Floor(emath.Clamp(maxX, -1, fx)+0.5))+sourceMargin+1,
		int(math.Floor(emath.Clamp(maxY, -1, fy)+0.5))+sourceMargin+1,
	)
	return sr.Intersect(image.Rect(0, 0, nx, ny))
}

type corner struct {
	p  orb.Point
	ok bool
}

// projectCorners maps the pixel edge grid of the source range into the
// output image. Corner (i,j) is the top-left corner of source pixel
// (sr.Min.X+i, sr.Min.Y+j).
func projectCorners(t wcs.Transform, sr image.Rectangle) ([]corner, int) {
	w := sr.Dx() + 1
	corners := make([]corner, w*(sr.Dy()+1))
	for j := 0; j <= sr.Dy(); j++ {
		for i := 0; i <= sr.Dx(); i++ {
			x := float64(sr.Min.X+i) - 0.5
			y := float64(sr.Min.Y+j) - 0.5
			ox, oy, ok := t.SourceToTarget(x, y)
			corners[j*w+i] = corner{orb.Point{ox, oy}, ok}
		}
	}
	return corners, w
}

// dropCorners maps the four corners of a drizzle drop, the source pixel
// shrunk about its center by `size`.
func dropCorners(t wcs.Transform, x, y int, size float64) ([4]orb.Point, bool) {
	h := size / 2
	offsets := [4][2]float64{{-h, -h}, {h, -h}, {h, h}, {-h, h}}
	pts := [4]orb.Point{}
	for i, o := range offsets {
		ox, oy, ok := t.SourceToTarget(float64(x)+o[0], float64(y)+o[1])
		if !ok {
			return pts, false
		}
		pts[i] = orb.Point{ox, oy}
	}
	return pts, true
}

func quadRing(pts [4]orb.Point) orb.Ring {
	return orb.Ring{pts[0], pts[1], pts[2], pts[3], pts[0]}
}

// findOverlaps works out, for one output block, every (source pixel,
// output pixel) pair whose areas intersect. The geometry doesn't depend
// on the pixel values, so this is done once per block and then reused
// for every plane.
//
// Overlaps come out in source raster order, which fixes the order in
// which sums get accumulated for any given output pixel, no matter how
// the output was split into blocks.
func findOverlaps(t wcs.Transform, alg Algorithm, dropSize float64, r image.Rectangle, nx, ny int) []overlap {
	sr := sourceRange(t, r, nx, ny)
	if sr.Empty() {
		return nil
	}

	var corners []corner
	var cw int
	if alg == Exact {
		corners, cw = projectCorners(t, sr)
	}

	out := []overlap{}

	for sy := sr.Min.Y; sy < sr.Max.Y; sy++ {
		for sx := sr.Min.X; sx < sr.Max.X; sx++ {
			var pts [4]orb.Point

			if alg == Exact {
				i, j := sx-sr.Min.X, sy-sr.Min.Y
				c := [4]corner{corners[j*cw+i], corners[j*cw+i+1], corners[(j+1)*cw+i+1], corners[(j+1)*cw+i]}
				if !c[0].ok || !c[1].ok || !c[2].ok || !c[3].ok {
					continue
				}
				pts = [4]orb.Point{c[0].p, c[1].p, c[2].p, c[3].p}
			} else {
				var ok bool
				if pts, ok = dropCorners(t, sx, sy, dropSize); !ok {
					continue
				}
			}

			quadArea := math.Abs(planar.Area(orb.Polygon{quadRing(pts)}))
			if !(quadArea > 0) || math.IsInf(quadArea, 0) {
				continue
			}

			qb := quadRing(pts).Bound()
			ob := image.Rect(
				int(math.Floor(qb.Min[0]+0.5)),
				int(math.Floor(qb.Min[1]+0.5)),
				int(math.Floor(qb.Max[0]+0.5))+1,
				int(math.Floor(qb.Max[1]+0.5))+1,
			).Intersect(r)
			if ob.Empty() {
				continue
			}

			srcIdx := sy*nx + sx
			single := ob.Dx() == 1 && ob.Dy() == 1 && insidePixel(qb, ob.Min.X, ob.Min.Y)

			for oy := ob.Min.Y; oy < ob.Max.Y; oy++ {
				for ox := ob.Min.X; ox < ob.Max.X; ox++ {
					var a float64
					if single {
						a = quadArea
					} else {
						a = clippedArea(pts, ox, oy)
					}
					if a <= 0 {
						continue
					}
					dst := (oy-r.Min.Y)*r.Dx() + (ox - r.Min.X)
					out = append(out, overlap{src: srcIdx, dst: dst, area: a, frac: a / quadArea})
				}
			}
		}
	}

	return out
}

func pixelBound(ox, oy int) orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(ox) - 0.5, float64(oy) - 0.5},
		Max: orb.Point{float64(ox) + 0.5, float64(oy) + 0.5},
	}
}

func insidePixel(b orb.Bound, ox, oy int) bool {
	pb := pixelBound(ox, oy)
	return b.Min[0] >= pb.Min[0] && b.Max[0] <= pb.Max[0] && b.Min[1] >= pb.Min[1] && b.Max[1] <= pb.Max[1]
}

// clippedArea is the area of the quad inside output pixel (ox,oy).
func clippedArea(pts [4]orb.Point, ox, oy int) float64 {
	// clip works in place, so it gets a fresh ring every time
	clipped := clip.Polygon(pixelBound(ox, oy), orb.Polygon{quadRing(pts)})
	if len(clipped) == 0 {
		return 0
	}
	return math.Abs(planar.Area(clipped))
}

// fillOverlap accumulates one plane's worth of overlaps into the block.
// Surface brightness mode gives S/W, the area weighted mean of the
// source pixels; flux mode spreads each source pixel's value over the
// output in proportion to the overlap, so totals are preserved.
func fillOverlap(overlaps []overlap, src plane, conserveFlux bool, cov *coverage) {
	cov.reset()
	for _, o := range overlaps {
		v := src.vals[o.src]
		if (src.mask != nil && !src.mask[o.src]) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if conserveFlux {
			cov.add(o.dst, v*o.frac, o.area)
		} else {
			cov.add(o.dst, v*o.area, o.area)
		}
	}
}
