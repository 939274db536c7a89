package formats

import (
	"encoding/json"
	"fmt"
	"io"

	pmath "github.com/Faultbox/popbuffer/pkg/math"
	"github.com/Faultbox/popbuffer/pkg/popbuffer"
)

// rawMesh mirrors the JSON mesh layout with unchecked arity.
type rawMesh struct {
	Cells     [][]int     `json:"cells"`
	Positions [][]float64 `json:"positions"`
}

// ReadMesh decodes a JSON mesh ({"cells": [[i,j,k]...], "positions":
// [[x,y,z]...]}) and checks every cell and index.
func ReadMesh(r io.Reader) (*popbuffer.Mesh, error) {
	var raw rawMesh
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding mesh: %w", err)
	}

	positions, err := toPositions(raw.Positions)
	if err != nil {
		return nil, err
	}
	cells, err := toCells(raw.Cells)
	if err != nil {
		return nil, err
	}

	mesh := &popbuffer.Mesh{Cells: cells, Positions: positions}
	if err := ValidateMesh(mesh); err != nil {
		return nil, err
	}
	return mesh, nil
}

// WriteMesh encodes m as JSON.
func WriteMesh(w io.Writer, m *popbuffer.Mesh) error {
	return json.NewEncoder(w).Encode(m)
}

// ValidateMesh checks that every cell index points into the position list.
// The encoder assumes this holds.
func ValidateMesh(m *popbuffer.Mesh) error {
	for i, c := range m.Cells {
		for _, idx := range c {
			if idx < 0 || idx >= len(m.Positions) {
				return fmt.Errorf("%w: cell %d index %d (%d positions)", ErrIndexOutOfRange, i, idx, len(m.Positions))
			}
		}
	}
	return nil
}

func toCells(raw [][]int) ([]popbuffer.Cell, error) {
	cells := make([]popbuffer.Cell, len(raw))
	for i, c := range raw {
		if len(c) != 3 {
			return nil, fmt.Errorf("%w: cell %d has %d", ErrCellArity, i, len(c))
		}
		cells[i] = popbuffer.Cell{c[0], c[1], c[2]}
	}
	return cells, nil
}

func toPositions(raw [][]float64) ([]pmath.Vec3, error) {
	positions := make([]pmath.Vec3, len(raw))
	for i, p := range raw {
		if len(p) != 3 {
			return nil, fmt.Errorf("%w: position %d has %d", ErrPositionArity, i, len(p))
		}
		positions[i] = pmath.Vec3{p[0], p[1], p[2]}
	}
	return positions, nil
}
