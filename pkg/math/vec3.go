// Package math provides the vector and bounding-volume types shared by the
// pop buffer encoder and its readers.
package math

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a mesh position. It serialises as a plain [x, y, z] array.
type Vec3 [3]float64

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v[0] - other[0], v[1] - other[1], v[2] - other[2]}
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// R3 converts v to a gonum vector.
func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// TriangleArea returns the area of the triangle abc.
// Collapsed triangles have zero area.
func TriangleArea(a, b, c Vec3) float64 {
	return r3.Norm(r3.Cross(b.Sub(a).R3(), c.Sub(a).R3())) / 2
}
