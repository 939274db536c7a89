// Package popbuffer encodes triangle meshes into progressive buffers.
//
// A PopBuffer holds the mesh bounds and a list of levels, coarsest first.
// Decoding any prefix of the levels gives a complete mesh at the precision
// of that prefix: each level carries the triangles that first become
// non-degenerate at its bit depth, and the vertices those triangles are the
// first to reference.
package popbuffer

import (
	"errors"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
)

// Errors returned by the encoder and the progressive stream.
var (
	ErrUnknownAssigner  = errors.New("unknown bucket assigner")
	ErrForwardReference = errors.New("cell references a vertex not yet introduced")
	ErrStreamFull       = errors.New("stream already holds every level")
)

// Cell is a triangle: three indices into a position list.
type Cell [3]int

// Level is one refinement step. Cells index the positions of this level and
// every level before it.
type Level struct {
	Cells     []Cell       `json:"cells"`
	Positions []pmath.Vec3 `json:"positions"`
}

// PopBuffer is the encoded progressive mesh. Bounds is nil when the source
// mesh had no positions.
type PopBuffer struct {
	Bounds *pmath.Bounds `json:"bounds"`
	Levels []Level       `json:"levels"`
}

// Mesh is a flat indexed triangle mesh.
type Mesh struct {
	Cells     []Cell       `json:"cells"`
	Positions []pmath.Vec3 `json:"positions"`
}

// CellCount returns the number of cells across all levels.
func (pb *PopBuffer) CellCount() int {
	n := 0
	for _, l := range pb.Levels {
		n += len(l.Cells)
	}
	return n
}

// PositionCount returns the number of positions across all levels.
func (pb *PopBuffer) PositionCount() int {
	n := 0
	for _, l := range pb.Levels {
		n += len(l.Positions)
	}
	return n
}
