package math

import (
	"encoding/json"
	"fmt"
	"math"
)

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min Vec3
	Max Vec3
}

// ComputeBounds returns the componentwise envelope of positions.
// ok is false for an empty input; that is the "no bounds" result, not an error.
func ComputeBounds(positions []Vec3) (b Bounds, ok bool) {
	if len(positions) == 0 {
		return Bounds{}, false
	}

	for d := 0; d < 3; d++ {
		b.Min[d] = math.Inf(1)
		b.Max[d] = math.Inf(-1)
	}

	for _, p := range positions {
		for d := 0; d < 3; d++ {
			if p[d] > b.Max[d] {
				b.Max[d] = p[d]
			}
			if p[d] < b.Min[d] {
				b.Min[d] = p[d]
			}
		}
	}

	return b, true
}

// Span returns Max - Min per axis.
func (b Bounds) Span() Vec3 {
	return b.Max.Sub(b.Min)
}

// DegenerateAxes returns the axes with zero span. Rescaling out of such a
// box divides by zero on those axes.
func (b Bounds) DegenerateAxes() []int {
	var axes []int
	span := b.Span()
	for d := 0; d < 3; d++ {
		if span[d] == 0 {
			axes = append(axes, d)
		}
	}
	return axes
}

// MarshalJSON encodes b as [min, max].
func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Vec3{b.Min, b.Max})
}

// UnmarshalJSON decodes the [min, max] form.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	var pair []Vec3
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("bounds: expected [min, max], got %d vectors", len(pair))
	}
	b.Min, b.Max = pair[0], pair[1]
	return nil
}
