package popbuffer

import (
	"fmt"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
	"github.com/Faultbox/popbuffer/pkg/quantize"
)

// Dropped marks a cell that is degenerate at every level.
const Dropped = -1

// Buckets holds the cells assigned to each level, index 0 coarsest.
type Buckets [][]Cell

// Assigner decides which level each cell first appears in.
type Assigner interface {
	// Name identifies the strategy in configuration and logs.
	Name() string
	// Classify returns, for every cell, its bucket index in [0, maxLevel)
	// or Dropped.
	Classify(cells []Cell, positions []pmath.Vec3, bounds pmath.Bounds, maxLevel int) []int
}

// Assign classifies cells with a and groups them into maxLevel buckets,
// keeping the input order within each bucket.
func Assign(a Assigner, cells []Cell, positions []pmath.Vec3, bounds pmath.Bounds, maxLevel int) Buckets {
	buckets := make(Buckets, maxLevel)
	if len(positions) == 0 {
		return buckets
	}
	for i, level := range a.Classify(cells, positions, bounds, maxLevel) {
		if level == Dropped {
			continue
		}
		buckets[level] = append(buckets[level], cells[i])
	}
	return buckets
}

// Lookup returns the assigner registered under name.
func Lookup(name string) (Assigner, error) {
	switch name {
	case "", PrefixAssigner{}.Name():
		return PrefixAssigner{}, nil
	case RescanAssigner{}.Name():
		return RescanAssigner{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAssigner, name)
	}
}

// PrefixAssigner quantizes once at maxLevel bits and reads each cell's level
// off the common bit prefix of its corners. This is the default strategy.
type PrefixAssigner struct{}

// Name returns "prefix".
func (PrefixAssigner) Name() string { return "prefix" }

// Classify implements Assigner.
func (PrefixAssigner) Classify(cells []Cell, positions []pmath.Vec3, bounds pmath.Bounds, maxLevel int) []int {
	levels := make([]int, len(cells))
	grid := quantize.QuantizeGrid(positions, quantize.Uniform(uint(maxLevel)), bounds)

	for i, c := range cells {
		bucket := maxLevel - TriangleDivergence(corners(grid, c), maxLevel)
		if bucket < 0 || bucket >= maxLevel {
			levels[i] = Dropped
			continue
		}
		levels[i] = bucket
	}
	return levels
}

// Divergence returns how many right shifts it takes for a and b to become
// equal, capped at maxLevel.
func Divergence(a, b int64, maxLevel int) int {
	level := 0
	for level < maxLevel && a != b {
		a >>= 1
		b >>= 1
		level++
	}
	return level
}

// EdgeDivergence is the largest per-axis divergence between p and q.
func EdgeDivergence(p, q quantize.Point, maxLevel int) int {
	return max(
		Divergence(p[0], q[0], maxLevel),
		Divergence(p[1], q[1], maxLevel),
		Divergence(p[2], q[2], maxLevel),
	)
}

// TriangleDivergence is the smallest edge divergence of tri: the triangle
// survives only while its shortest edge does.
func TriangleDivergence(tri [3]quantize.Point, maxLevel int) int {
	return min(
		EdgeDivergence(tri[0], tri[1], maxLevel),
		EdgeDivergence(tri[1], tri[2], maxLevel),
		EdgeDivergence(tri[0], tri[2], maxLevel),
	)
}

// RescanAssigner requantizes the mesh at every depth from maxLevel down to
// 1 and places each cell at the coarsest depth where it is still
// non-degenerate. It does not always agree with PrefixAssigner; see Compare.
type RescanAssigner struct{}

// Name returns "rescan".
func (RescanAssigner) Name() string { return "rescan" }

// Classify implements Assigner.
func (RescanAssigner) Classify(cells []Cell, positions []pmath.Vec3, bounds pmath.Bounds, maxLevel int) []int {
	depths := make([]int, len(cells))
	for i := range depths {
		depths[i] = Dropped
	}

	scratch := make([]pmath.Vec3, len(positions))
	for depth := maxLevel; depth > 0; depth-- {
		quantize.QuantizeInto(scratch, positions, quantize.Uniform(uint(depth)), bounds)
		grid := quantize.Grid(scratch)

		for i, c := range cells {
			if !IsDegenerate(corners(grid, c)) {
				depths[i] = depth
			}
		}
	}

	for i, d := range depths {
		if d != Dropped {
			depths[i] = d - 1
		}
	}
	return depths
}
