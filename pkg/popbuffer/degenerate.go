package popbuffer

import "github.com/Faultbox/popbuffer/pkg/quantize"

// IsDegenerate reports whether any two corners of a quantized triangle
// coincide.
func IsDegenerate(tri [3]quantize.Point) bool {
	return tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0]
}

// DegenerateAt is IsDegenerate on a grid shift bits coarser than the one
// tri was quantized on. Once a triangle collapses at some shift it stays
// collapsed at every larger shift.
func DegenerateAt(tri [3]quantize.Point, shift int) bool {
	return IsDegenerate([3]quantize.Point{tri[0].Shift(shift), tri[1].Shift(shift), tri[2].Shift(shift)})
}

func corners(grid []quantize.Point, c Cell) [3]quantize.Point {
	return [3]quantize.Point{grid[c[0]], grid[c[1]], grid[c[2]]}
}
