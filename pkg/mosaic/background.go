package mosaic

import (
	"fmt"
	"log"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/minzastro/reproject/pkg/emath"
)

// Background is the fitted per-tile background model. Additive
// corrections are subtracted from each tile (so a tile's corrected
// value is v - Offsets[i]); multiplicative ones divide (v / Scales[i]).
type Background struct {
	Offsets  []float64
	Scales   []float64
	Excluded []Pair // overlapping pairs that we couldn't use
	Groups   int    // connected components of the overlap graph
}

// A Pair is an edge in the overlap graph: tiles I and J (I < J) overlap
// by N pixels, and the mean difference between them there is D (in log
// space for the multiplicative model).
type Pair struct {
	I, J   int
	N      int
	D      float64
	Reason string
}

func (p Pair) String() string {
	s := fmt.Sprintf("tiles %d,%d overlap %dpx, diff %.4g", p.I, p.J, p.N, p.D)
	if p.Reason != "" {
		s += " [" + p.Reason + "]"
	}
	return s
}

// An overlapGraph is an arena of tiles, indexed by position in the input
// slice, with the edges between them.
type overlapGraph struct {
	n     int
	edges []Pair
}

// compareTiles works out the overlap statistic between a pair of tiles,
// using only pixels both of them cover.
func compareTiles(a, b Tile, multiplicative bool) (Pair, bool) {
	av, bv := a.Array.Values(), b.Array.Values()
	af, bf := a.Footprint.Values(), b.Footprint.Values()

	diffs := []float64{}
	as, bs := []float64{}, []float64{}
	for k := range av {
		if !(af[k] > 0) || !(bf[k] > 0) || !emath.IsFinite(av[k]) || !emath.IsFinite(bv[k]) {
			continue
		}
		diffs = append(diffs, av[k]-bv[k])
		as = append(as, av[k])
		bs = append(bs, bv[k])
	}

	p := Pair{N: len(diffs)}
	if p.N == 0 {
		return p, false
	}

	if !multiplicative {
		p.D = stat.Mean(diffs, nil)
		return p, true
	}

	ma, mb := stat.Mean(as, nil), stat.Mean(bs, nil)
	if !(ma > 0) || !(mb > 0) {
		p.Reason = "non-positive mean"
		return p, true
	}
	p.D = math.Log(ma / mb)
	return p, true
}

func buildOverlapGraph(tiles []Tile, cfg Config) (overlapGraph, []Pair) {
	g := overlapGraph{n: len(tiles)}
	excluded := []Pair{}

	for i := 0; i < len(tiles); i++ {
		for j := i + 1; j < len(tiles); j++ {
			p, overlaps := compareTiles(tiles[i], tiles[j], cfg.multiplicative)
			if !overlaps {
				continue
			}
			p.I, p.J = i, j

			if p.Reason == "" && p.N < cfg.MinOverlap {
				p.Reason = fmt.Sprintf("overlap below %dpx", cfg.MinOverlap)
			}
			if p.Reason != "" {
				log.Printf("background matching: ignoring %s\n", p)
				excluded = append(excluded, p)
				continue
			}
			g.edges = append(g.edges, p)
		}
	}

	return g, excluded
}

// components labels each tile with the connected component it's in.
func (g overlapGraph) components() ([]int, int) {
	parent := make([]int, g.n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for _, e := range g.edges {
		parent[find(e.I)] = find(e.J)
	}

	labels := make([]int, g.n)
	ids := map[int]int{}
	for i := range labels {
		root := find(i)
		if _, exists := ids[root]; !exists {
			ids[root] = len(ids)
		}
		labels[i] = ids[root]
	}
	return labels, len(ids)
}

// solve finds the per-tile corrections b that best satisfy
// b[I] - b[J] = D for every edge, in the least squares sense. Each edge
// is weighted by the square root of its overlap. The differences only
// fix b up to a constant per connected component, so each component
// gets one extra row: either the reference tile is pinned to zero, or
// the component's corrections sum to zero.
func (g overlapGraph) solve(reference int) ([]float64, int, error) {
	labels, nGroups := g.components()

	rows := len(g.edges) + nGroups
	A := mat.NewDense(rows, g.n, nil)
	rhs := mat.NewVecDense(rows, nil)

	for r, e := range g.edges {
		w := math.Sqrt(float64(e.N))
		A.Set(r, e.I, w)
		A.Set(r, e.J, -w)
		rhs.SetVec(r, w*e.D)
	}

	for group := 0; group < nGroups; group++ {
		r := len(g.edges) + group
		if reference >= 0 && reference < g.n && labels[reference] == group {
			A.Set(r, reference, 1)
			continue
		}
		for i, l := range labels {
			if l == group {
				A.Set(r, i, 1)
			}
		}
	}

	var b mat.VecDense
	if err := b.SolveVec(A, rhs); err != nil {
		return nil, nGroups, errors.Wrap(err, "background least squares")
	}

	out := make([]float64, g.n)
	for i := range out {
		out[i] = b.AtVec(i)
	}
	return out, nGroups, nil
}

// MatchBackgrounds fits the background model to the tiles.
func MatchBackgrounds(tiles []Tile, cfg Config) (Background, error) {
	if err := cfg.Finalize(); err != nil {
		return Background{}, err
	}

	g, excluded := buildOverlapGraph(tiles, cfg)
	b, groups, err := g.solve(cfg.BackgroundReference)
	if err != nil {
		return Background{}, err
	}

	bg := Background{Excluded: excluded, Groups: groups}
	bg.Offsets = make([]float64, len(tiles))
	bg.Scales = make([]float64, len(tiles))
	for i := range tiles {
		bg.Offsets[i], bg.Scales[i] = 0, 1
		if cfg.multiplicative {
			bg.Scales[i] = math.Exp(b[i])
		} else {
			bg.Offsets[i] = b[i]
		}
	}

	if cfg.Verbosity > 0 {
		log.Printf("Background matching: %d tiles, %d overlaps, %d excluded, %d groups\n",
			len(tiles), len(g.edges), len(excluded), groups)
		for i := range tiles {
			log.Printf(" - tile %d %-20q offset %10.4g, scale %8.4g\n", i, tiles[i].Name, bg.Offsets[i], bg.Scales[i])
		}
	}

	return bg, nil
}

// Apply returns a corrected copy of the tile's array.
func (bg Background) Apply(i int, t Tile) emath.FloatGrid {
	out := t.Array.Copy()
	vals := out.Values()
	for k, v := range vals {
		vals[k] = (v - bg.Offsets[i]) / bg.Scales[i]
	}
	return *out
}
