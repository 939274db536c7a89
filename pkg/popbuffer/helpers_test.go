package popbuffer

import (
	"math/rand"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
)

// gridMesh is laid out on [0, 8] so that quantizing at 3 bits maps
// p -> trunc(7p/8) without rounding error:
//
//	0:(0,0,0)->(0,0,0)  1:(2,0,0)->(1,0,0)  2:(0,5,0)->(0,4,0)
//	3:(5,0,0)->(4,0,0)  4:(8,8,8)->(7,7,7)  5:(0,0,0)->(0,0,0)
func gridMesh() Mesh {
	return Mesh{
		Positions: []pmath.Vec3{
			{0, 0, 0},
			{2, 0, 0},
			{0, 5, 0},
			{5, 0, 0},
			{8, 8, 8},
			{0, 0, 0},
		},
		Cells: []Cell{
			{0, 1, 2}, // shortest edge diverges after 1 shift: finest bucket
			{0, 3, 2}, // every edge needs 3 shifts: coarsest bucket
			{0, 5, 4}, // corners 0 and 5 coincide: dropped
			{1, 3, 4}, // coarsest bucket
		},
	}
}

// randomMesh builds a reproducible mesh with some shared and some
// coincident vertices.
func randomMesh(seed int64, vertices, cells int) Mesh {
	rng := rand.New(rand.NewSource(seed))

	m := Mesh{Positions: make([]pmath.Vec3, vertices), Cells: make([]Cell, cells)}
	for i := range m.Positions {
		if i > 0 && rng.Intn(10) == 0 {
			m.Positions[i] = m.Positions[rng.Intn(i)]
			continue
		}
		m.Positions[i] = pmath.Vec3{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	}
	for i := range m.Cells {
		m.Cells[i] = Cell{rng.Intn(vertices), rng.Intn(vertices), rng.Intn(vertices)}
	}
	return m
}
