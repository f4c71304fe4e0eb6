/*
This file contains the stencil kernel and the local convergence reduction.

Every owned cell of cur is recomputed from prev: interior cells take the
5-point Jacobi average of their four neighbours, the two edge columns take
the 3-point average of the three neighbours they have. A cell already at the
maximum temperature is a heat source and is never overwritten. Sources are
identified by exact equality with the configured constant, so a drifting
cell that lands exactly on it freezes too; that is a known, accepted
approximation.

The three column ranges only read prev, so they are launched concurrently
under distinct kernel tags. The reduction waits on all three before it
computes deltas.
*/
package heatmesh

import "math"

// Kernel tags of the three independent stencil phases.
const (
	tagLeftColumn  = 1
	tagInterior    = 2
	tagRightColumn = 3
)

// applyStencil launches the three column-range kernels asynchronously.
// Callers must not read cur until the tags have been waited on.
func (s *Solver) applyStencil() {
	cur, prev := s.slab.cur, s.slab.prev
	last := s.part.LocalRows
	right := s.part.Cols - 1
	maxT := s.cfg.MaxTemperature

	s.exec.Launch(tagLeftColumn, func() {
		for i := 1; i <= last; i++ {
			if cur[i][0] != maxT {
				cur[i][0] = (prev[i-1][0] + prev[i+1][0] + prev[i][1]) / 3.0
			}
		}
	})

	s.exec.Launch(tagInterior, func() {
		s.exec.ForRows(1, last+1, func(i int) {
			row := cur[i]
			up, down, mid := prev[i-1], prev[i+1], prev[i]
			for j := 1; j < right; j++ {
				if row[j] != maxT {
					row[j] = 0.25 * (up[j] + down[j] + mid[j-1] + mid[j+1])
				}
			}
		})
	})

	s.exec.Launch(tagRightColumn, func() {
		for i := 1; i <= last; i++ {
			if cur[i][right] != maxT {
				cur[i][right] = (prev[i-1][right] + prev[i+1][right] + prev[i][right-1]) / 3.0
			}
		}
	})
}

// reduceDelta waits for the three stencil phases, then computes the local
// maximum absolute cell change while copying cur into prev, completing the
// buffer role swap cell by cell. Each cell's swap is self-contained, so the
// rows are processed in parallel.
func (s *Solver) reduceDelta() float64 {
	s.exec.Wait(tagLeftColumn, tagInterior, tagRightColumn)
	cur, prev := s.slab.cur, s.slab.prev
	cols := s.part.Cols
	return s.exec.MaxRows(1, s.part.LocalRows+1, func(i int) float64 {
		var max float64
		crow, prow := cur[i], prev[i]
		for j := 0; j < cols; j++ {
			if d := math.Abs(crow[j] - prow[j]); d > max {
				max = d
			}
			prow[j] = crow[j]
		}
		return max
	})
}
