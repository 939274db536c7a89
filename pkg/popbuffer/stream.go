package popbuffer

import (
	"fmt"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
)

// Stream accumulates levels as they arrive and decodes the prefix held so
// far. It is not safe for concurrent use.
type Stream struct {
	bounds   *pmath.Bounds
	levels   []Level
	vertices int
	total    int
}

// NewStream starts a stream for a buffer with the given bounds. total is the
// number of levels the producer will send, or 0 when unknown.
func NewStream(bounds *pmath.Bounds, total int) *Stream {
	return &Stream{bounds: bounds, total: total}
}

// Push appends the next level. Cells may only reference vertices introduced
// by this or an earlier level.
func (s *Stream) Push(level Level) error {
	if s.total > 0 && len(s.levels) == s.total {
		return ErrStreamFull
	}

	limit := s.vertices + len(level.Positions)
	for j, cell := range level.Cells {
		for _, index := range cell {
			if index < 0 || index >= limit {
				return fmt.Errorf("%w: level %d cell %d index %d (have %d vertices)",
					ErrForwardReference, len(s.levels), j, index, limit)
			}
		}
	}

	s.levels = append(s.levels, level)
	s.vertices = limit
	return nil
}

// Len returns the number of levels received.
func (s *Stream) Len() int {
	return len(s.levels)
}

// Vertices returns the number of positions received.
func (s *Stream) Vertices() int {
	return s.vertices
}

// Complete reports whether every announced level has arrived.
func (s *Stream) Complete() bool {
	return s.total > 0 && len(s.levels) == s.total
}

// Mesh decodes the levels received so far.
func (s *Stream) Mesh() Mesh {
	return Decode(s.buffer())
}

func (s *Stream) buffer() *PopBuffer {
	return &PopBuffer{Bounds: s.bounds, Levels: s.levels}
}

// Validate checks that no level references a vertex introduced by a later
// level.
func (pb *PopBuffer) Validate() error {
	s := NewStream(pb.Bounds, 0)
	for _, level := range pb.Levels {
		if err := s.Push(level); err != nil {
			return err
		}
	}
	return nil
}
