/*
This file contains the local state store: the double-buffered slab a worker
owns exclusively. Rows 1..localRows hold owned data; row 0 and row
localRows+1 are the ghost rows mirroring the neighbours' boundary rows.
*/
package heatmesh

import (
	"errors"
	"fmt"
)

// ErrChunkSize indicates a seed chunk whose shape does not match the slab.
var ErrChunkSize = errors.New("heatmesh: seed chunk does not match slab dimensions")

// Slab holds the two (localRows+2) x cols buffers of one worker. prev holds
// the last completed iteration's state and is what the stencil reads; cur is
// what the stencil writes. The role swap is completed cell by cell inside
// the convergence reduction.
type Slab struct {
	localRows int
	cols      int
	cur       [][]float64
	prev      [][]float64
}

// NewSlab allocates a zeroed slab sized from the partition. The ghost rows
// start at zero; they stay zero forever on the two global edges, which is
// exactly the boundary condition of the stencil.
func NewSlab(localRows, cols int) *Slab {
	return &Slab{
		localRows: localRows,
		cols:      cols,
		cur:       newGrid(localRows+2, cols),
		prev:      newGrid(localRows+2, cols),
	}
}

func newGrid(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	grid := make([][]float64, rows)
	for i := range grid {
		grid[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return grid
}

// Seed copies a worker's chunk of the global grid into the owned rows of
// prev and then mirrors prev into cur so both buffers start identical.
func (s *Slab) Seed(chunk [][]float64) error {
	if len(chunk) != s.localRows {
		return fmt.Errorf("%w: got %d rows, want %d", ErrChunkSize, len(chunk), s.localRows)
	}
	for i, row := range chunk {
		if len(row) != s.cols {
			return fmt.Errorf("%w: row %d has %d cols, want %d", ErrChunkSize, i, len(row), s.cols)
		}
		copy(s.prev[i+1], row)
	}
	for i := range s.cur {
		copy(s.cur[i], s.prev[i])
	}
	return nil
}

// OwnedRows returns a deep copy of the owned rows of cur, ghost rows
// excluded. The copy is what travels in a snapshot gather, so later stencil
// writes cannot race with its encoding.
func (s *Slab) OwnedRows() [][]float64 {
	rows := make([][]float64, s.localRows)
	for i := 0; i < s.localRows; i++ {
		rows[i] = append([]float64(nil), s.cur[i+1]...)
	}
	return rows
}

// Row exposes one row of cur for tests and rendering.
func (s *Slab) Row(i int) []float64 { return s.cur[i] }

// PrevRow exposes one row of prev for tests.
func (s *Slab) PrevRow(i int) []float64 { return s.prev[i] }
