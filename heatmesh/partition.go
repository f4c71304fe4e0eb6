/*
This file contains the static 1-D slab decomposition of the global grid.
Every worker computes the same partition from the shared configuration, so
no communication is needed to agree on it.
*/
package heatmesh

import (
	"errors"
	"fmt"
)

// NoWorker is the neighbour sentinel of the two end slabs.
const NoWorker = -1

// Partition errors are configuration errors: fatal, reported before the
// timed region begins.
var (
	// ErrUnevenRows indicates the global row count is not divisible by the
	// worker count.
	ErrUnevenRows = errors.New("heatmesh: rows not evenly divisible by workers")
	// ErrBadPartition indicates unusable grid dimensions or worker count.
	ErrBadPartition = errors.New("heatmesh: invalid partition")
)

// Partition maps the global Rows x Cols grid onto Workers equal-height row
// slabs. Immutable for the lifetime of a run.
type Partition struct {
	Rows      int
	Cols      int
	Workers   int
	LocalRows int
}

// Topology names a worker's up and down neighbours, or NoWorker at the two
// ends of the chain.
type Topology struct {
	Up   int
	Down int
}

// NewPartition validates the decomposition and computes the rows per worker.
func NewPartition(rows, cols, workers int) (Partition, error) {
	if rows < 1 || cols < 2 || workers < 1 {
		return Partition{}, fmt.Errorf("%w: %d rows x %d cols across %d workers",
			ErrBadPartition, rows, cols, workers)
	}
	if rows%workers != 0 {
		return Partition{}, fmt.Errorf("%w: %d rows across %d workers",
			ErrUnevenRows, rows, workers)
	}
	return Partition{Rows: rows, Cols: cols, Workers: workers, LocalRows: rows / workers}, nil
}

// TopologyFor derives a rank's neighbours. Rank 0 has no up neighbour and
// rank Workers-1 has no down neighbour.
func (p Partition) TopologyFor(rank int) Topology {
	t := Topology{Up: rank - 1, Down: rank + 1}
	if rank == 0 {
		t.Up = NoWorker
	}
	if rank == p.Workers-1 {
		t.Down = NoWorker
	}
	return t
}

// RowOffset is the global index of a rank's first owned row.
func (p Partition) RowOffset(rank int) int {
	return rank * p.LocalRows
}
