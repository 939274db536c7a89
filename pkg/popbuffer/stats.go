package popbuffer

import pmath "github.com/Faultbox/popbuffer/pkg/math"

// LevelStats describes one level and the prefix ending at it.
type LevelStats struct {
	Level       int
	Cells       int
	NewVertices int
	Vertices    int     // cumulative
	Area        float64 // surface area of the decoded prefix
}

// Stats summarises a pop buffer.
type Stats struct {
	Bounds      *pmath.Bounds
	Levels      []LevelStats
	Cells       int
	Vertices    int
	EmptyLevels int
	// DegenerateAxes lists the axes along which Bounds has zero span.
	DegenerateAxes []int
}

// Summarize decodes every prefix of pb and records its size and area.
func Summarize(pb *PopBuffer) Stats {
	st := Stats{Bounds: pb.Bounds, Levels: make([]LevelStats, len(pb.Levels))}
	if pb.Bounds != nil {
		st.DegenerateAxes = pb.Bounds.DegenerateAxes()
	}

	for i, level := range pb.Levels {
		st.Cells += len(level.Cells)
		st.Vertices += len(level.Positions)
		if len(level.Cells) == 0 {
			st.EmptyLevels++
		}

		prefix := DecodePrefix(pb, i+1)
		st.Levels[i] = LevelStats{
			Level:       i,
			Cells:       len(level.Cells),
			NewVertices: len(level.Positions),
			Vertices:    st.Vertices,
			Area:        SurfaceArea(prefix),
		}
	}

	return st
}

// SurfaceArea sums the triangle areas of m.
func SurfaceArea(m Mesh) float64 {
	var area float64
	for _, c := range m.Cells {
		area += pmath.TriangleArea(m.Positions[c[0]], m.Positions[c[1]], m.Positions[c[2]])
	}
	return area
}
