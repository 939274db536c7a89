package popbuffer

import (
	"fmt"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
	"github.com/Faultbox/popbuffer/pkg/quantize"
)

// Option configures an Encoder.
type Option func(*Encoder)

// WithAssigner selects the bucket assignment strategy.
func WithAssigner(a Assigner) Option {
	return func(e *Encoder) {
		if a != nil {
			e.assigner = a
		}
	}
}

// WithWorkers builds levels concurrently with up to n workers. 0 and 1 keep
// the sequential builder; a negative n uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Encoder) {
		e.workers = n
	}
}

// Encoder builds pop buffers. It holds configuration only and is safe for
// concurrent use.
type Encoder struct {
	assigner Assigner
	workers  int
}

// NewEncoder returns an Encoder using PrefixAssigner and the sequential level
// builder unless overridden.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{assigner: PrefixAssigner{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assigner returns the configured strategy.
func (e *Encoder) Assigner() Assigner {
	return e.assigner
}

// Encode builds a pop buffer with maxLevel levels. Cells that collapse even
// at maxLevel bits are left out. An empty position list gives nil Bounds
// and empty levels.
//
// Cell indices must be valid for positions.
func (e *Encoder) Encode(mesh Mesh, maxLevel int) (*PopBuffer, error) {
	if maxLevel < 1 || maxLevel > quantize.MaxBits {
		return nil, fmt.Errorf("%w: max level %d", quantize.ErrBitDepth, maxLevel)
	}

	pb := &PopBuffer{}
	bounds, ok := pmath.ComputeBounds(mesh.Positions)
	if ok {
		pb.Bounds = &bounds
	}

	buckets := Assign(e.assigner, mesh.Cells, mesh.Positions, bounds, maxLevel)
	if e.workers == 0 || e.workers == 1 {
		pb.Levels = BuildLevels(buckets, mesh.Positions)
	} else {
		pb.Levels = BuildLevelsParallel(buckets, mesh.Positions, e.workers)
	}

	return pb, nil
}

// Encode builds a pop buffer with the default encoder.
func Encode(cells []Cell, positions []pmath.Vec3, maxLevel int) (*PopBuffer, error) {
	return NewEncoder().Encode(Mesh{Cells: cells, Positions: positions}, maxLevel)
}
