package popbuffer

import (
	pmath "github.com/Faultbox/popbuffer/pkg/math"
	"github.com/Faultbox/popbuffer/pkg/quantize"
)

// Decode reassembles every level of pb into a flat mesh.
//
// Positions are requantized with one bit per level against pb.Bounds and
// mapped back into pb.Bounds, so the result carries the precision of the
// levels received rather than the precision of the stored floats.
func Decode(pb *PopBuffer) Mesh {
	return DecodePrefix(pb, len(pb.Levels))
}

// DecodePrefix decodes only the first n levels, at n bits. This is what a
// progressive consumer holding n levels renders. n is clamped to the
// number of levels.
func DecodePrefix(pb *PopBuffer, n int) Mesh {
	n = max(0, min(n, len(pb.Levels)))

	mesh := Mesh{Cells: []Cell{}, Positions: []pmath.Vec3{}}
	for _, level := range pb.Levels[:n] {
		mesh.Cells = append(mesh.Cells, level.Cells...)
		mesh.Positions = append(mesh.Positions, level.Positions...)
	}

	if len(mesh.Cells) == 0 || len(mesh.Positions) == 0 || pb.Bounds == nil {
		return mesh
	}

	bits := quantize.Uniform(uint(min(n, quantize.MaxBits)))
	quantize.QuantizeInto(mesh.Positions, mesh.Positions, bits, *pb.Bounds)
	quantize.RescaleInto(mesh.Positions, mesh.Positions, *pb.Bounds, bits.GridBounds())

	return mesh
}
