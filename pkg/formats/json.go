package formats

import (
	"encoding/json"
	"fmt"
	"io"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
	"github.com/Faultbox/popbuffer/pkg/popbuffer"
	"github.com/Faultbox/popbuffer/pkg/quantize"
)

type rawLevel struct {
	Cells     [][]int     `json:"cells"`
	Positions [][]float64 `json:"positions"`
}

type rawPopBuffer struct {
	Bounds *pmath.Bounds `json:"bounds"`
	Levels []rawLevel    `json:"levels"`
}

// WriteJSON encodes pb in the JSON wire form.
func WriteJSON(w io.Writer, pb *popbuffer.PopBuffer) error {
	return json.NewEncoder(w).Encode(pb)
}

// ReadJSON decodes the JSON wire form and rejects buffers whose cells
// reference vertices from later levels.
func ReadJSON(r io.Reader) (*popbuffer.PopBuffer, error) {
	var raw rawPopBuffer
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding pop buffer: %w", err)
	}
	if len(raw.Levels) > quantize.MaxBits {
		return nil, fmt.Errorf("%w: %d levels", ErrLevelCount, len(raw.Levels))
	}

	pb := &popbuffer.PopBuffer{Bounds: raw.Bounds, Levels: make([]popbuffer.Level, len(raw.Levels))}
	for i, l := range raw.Levels {
		cells, err := toCells(l.Cells)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		positions, err := toPositions(l.Positions)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		pb.Levels[i] = popbuffer.Level{Cells: cells, Positions: positions}
	}

	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return pb, nil
}
