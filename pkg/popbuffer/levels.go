package popbuffer

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
)

const unassigned = -1

// BuildLevels turns buckets into levels. Each vertex is emitted once, in the
// first level that references it, and gets the next index of a counter that
// runs across all levels.
func BuildLevels(buckets Buckets, positions []pmath.Vec3) []Level {
	remap := newRemap(len(positions))
	next := 0
	levels := make([]Level, len(buckets))

	for i, cells := range buckets {
		level := Level{
			Cells:     make([]Cell, len(cells)),
			Positions: []pmath.Vec3{},
		}

		for j, cell := range cells {
			var out Cell
			for k, index := range cell {
				if remap[index] == unassigned {
					level.Positions = append(level.Positions, positions[index])
					remap[index] = next
					next++
				}
				out[k] = remap[index]
			}
			level.Cells[j] = out
		}

		levels[i] = level
	}

	return levels
}

// BuildLevelsParallel produces the same levels as BuildLevels, splitting the
// work across levels. Vertex ownership and index offsets come from a
// sequential prefix pass, so indices match the sequential builder exactly.
// workers <= 0 uses GOMAXPROCS.
func BuildLevelsParallel(buckets Buckets, positions []pmath.Vec3, workers int) []Level {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// First occurrences within each level, in traversal order.
	local := make([][]int, len(buckets))
	forEachLevel(len(buckets), workers, func(i int) {
		seen := make(map[int]struct{})
		for _, cell := range buckets[i] {
			for _, index := range cell {
				if _, ok := seen[index]; !ok {
					seen[index] = struct{}{}
					local[i] = append(local[i], index)
				}
			}
		}
	})

	// A vertex belongs to the first level that sees it.
	owner := newRemap(len(positions))
	offsets := make([]int, len(buckets))
	next := 0
	for i, order := range local {
		offsets[i] = next
		for _, index := range order {
			if owner[index] == unassigned {
				owner[index] = i
				next++
			}
		}
	}

	// Owned vertices are disjoint between levels, so remap writes never race.
	remap := newRemap(len(positions))
	levels := make([]Level, len(buckets))
	forEachLevel(len(buckets), workers, func(i int) {
		level := Level{Positions: []pmath.Vec3{}}
		idx := offsets[i]
		for _, index := range local[i] {
			if owner[index] == i {
				level.Positions = append(level.Positions, positions[index])
				remap[index] = idx
				idx++
			}
		}
		levels[i] = level
	})

	forEachLevel(len(buckets), workers, func(i int) {
		out := make([]Cell, len(buckets[i]))
		for j, cell := range buckets[i] {
			out[j] = Cell{remap[cell[0]], remap[cell[1]], remap[cell[2]]}
		}
		levels[i].Cells = out
	})

	return levels
}

func forEachLevel(n, workers int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func newRemap(n int) []int {
	remap := make([]int, n)
	for i := range remap {
		remap[i] = unassigned
	}
	return remap
}
