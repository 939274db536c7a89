package quantize

import pmath "github.com/Faultbox/popbuffer/pkg/math"

// Point is a position on the integer grid.
type Point [3]int64

// Shift returns p with every coordinate shifted right by n bits, i.e. the
// same point on a grid n bits coarser.
func (p Point) Shift(n int) Point {
	return Point{p[0] >> n, p[1] >> n, p[2] >> n}
}

// Grid converts truncated positions to integer grid points.
func Grid(quantized []pmath.Vec3) []Point {
	if len(quantized) == 0 {
		return nil
	}
	out := make([]Point, len(quantized))
	for i, q := range quantized {
		out[i] = Point{int64(truncate(q[0])), int64(truncate(q[1])), int64(truncate(q[2]))}
	}
	return out
}

// QuantizeGrid is Quantize followed by Grid.
func QuantizeGrid(positions []pmath.Vec3, bits Bits, source pmath.Bounds) []Point {
	return Grid(Quantize(positions, bits, source))
}
