package popbuffer

import pmath "github.com/Faultbox/popbuffer/pkg/math"

// Mismatch is one cell the two strategies place differently.
type Mismatch struct {
	Cell int
	A, B int // bucket index or Dropped
}

// Comparison reports how two assigners disagree on the same mesh.
type Comparison struct {
	A, B       string
	Cells      int
	DroppedA   int
	DroppedB   int
	Mismatches []Mismatch
}

// Agree reports whether both strategies classified every cell the same way.
func (c Comparison) Agree() bool {
	return len(c.Mismatches) == 0
}

// Compare classifies the mesh with both assigners and lists every cell
// they place in different buckets.
func Compare(a, b Assigner, cells []Cell, positions []pmath.Vec3, maxLevel int) Comparison {
	cmp := Comparison{A: a.Name(), B: b.Name(), Cells: len(cells)}

	bounds, ok := pmath.ComputeBounds(positions)
	if !ok {
		return cmp
	}

	la := a.Classify(cells, positions, bounds, maxLevel)
	lb := b.Classify(cells, positions, bounds, maxLevel)
	for i := range cells {
		if la[i] == Dropped {
			cmp.DroppedA++
		}
		if lb[i] == Dropped {
			cmp.DroppedB++
		}
		if la[i] != lb[i] {
			cmp.Mismatches = append(cmp.Mismatches, Mismatch{Cell: i, A: la[i], B: lb[i]})
		}
	}
	return cmp
}
