// Package quantize maps mesh positions between arbitrary coordinate bounds
// and an integer quantization grid.
//
// Quantization truncates toward zero rather than rounding to nearest. Level
// assignment depends on that bias, so it is part of the contract.
package quantize

import (
	"errors"
	"fmt"
	"math"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
)

// MaxBits is the deepest supported grid. Grid coordinates must fit a signed
// 32-bit integer.
const MaxBits = 30

// ErrBitDepth is returned for bit depths outside [1, MaxBits].
var ErrBitDepth = errors.New("bit depth out of range")

// Bits holds one bit depth per axis.
type Bits [3]uint

// Uniform returns Bits with the same depth on every axis.
func Uniform(bits uint) Bits {
	return Bits{bits, bits, bits}
}

// Validate checks every axis is within [1, MaxBits].
func (b Bits) Validate() error {
	for d, bits := range b {
		if bits < 1 || bits > MaxBits {
			return fmt.Errorf("%w: axis %d has %d bits", ErrBitDepth, d, bits)
		}
	}
	return nil
}

// GridBounds returns the target window [0, 2^bits-1] per axis.
func (b Bits) GridBounds() pmath.Bounds {
	var g pmath.Bounds
	for d, bits := range b {
		g.Max[d] = float64(uint64(1)<<bits - 1)
	}
	return g
}

// Rescale maps positions from source onto target, returning a new slice.
// An axis where source has zero span produces NaN or Inf on that axis; the
// result is undefined for degenerate axes and is not clamped.
func Rescale(positions []pmath.Vec3, target, source pmath.Bounds) []pmath.Vec3 {
	if len(positions) == 0 {
		return nil
	}
	out := make([]pmath.Vec3, len(positions))
	RescaleInto(out, positions, target, source)
	return out
}

// RescaleInto is Rescale writing into dst, which must be at least
// len(positions) long. dst may alias positions.
func RescaleInto(dst, positions []pmath.Vec3, target, source pmath.Bounds) {
	srcSpan := source.Span()
	tgtSpan := target.Span()

	for i, p := range positions {
		var r pmath.Vec3
		for d := 0; d < 3; d++ {
			r[d] = (p[d]-source.Min[d])/srcSpan[d]*tgtSpan[d] + target.Min[d]
		}
		dst[i] = r
	}
}

// Quantize rescales positions from source onto the grid defined by bits and
// truncates each coordinate toward zero.
func Quantize(positions []pmath.Vec3, bits Bits, source pmath.Bounds) []pmath.Vec3 {
	if len(positions) == 0 {
		return nil
	}
	out := make([]pmath.Vec3, len(positions))
	QuantizeInto(out, positions, bits, source)
	return out
}

// QuantizeInto is Quantize writing into dst.
func QuantizeInto(dst, positions []pmath.Vec3, bits Bits, source pmath.Bounds) {
	RescaleInto(dst, positions, bits.GridBounds(), source)
	Truncate(dst[:len(positions)])
}

// Truncate truncates every coordinate toward zero in place. NaN and
// infinities become 0, matching an integer conversion, so a zero-span axis
// lands on grid cell 0.
func Truncate(positions []pmath.Vec3) {
	for i := range positions {
		for d := 0; d < 3; d++ {
			positions[i][d] = truncate(positions[i][d])
		}
	}
}

func truncate(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Trunc(v)
}
