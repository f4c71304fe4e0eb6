/*
This file contains the run controller: the INIT -> LOOPING -> DRAINING ->
DONE state machine that owns the iteration loop, the wall-clock budget and
the termination broadcast.

Termination is wall-clock based: the coordinator alone reads the clock and
broadcasts the elapsed time every iteration, so all workers observe an
identical termination instant and execute the same number of iterations. The
computed global delta does not terminate the run unless a convergence
threshold is explicitly configured.
*/
package heatmesh

import (
	"fmt"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/slabgrid/heatmesh/render"
)

// RunState is the loop state threaded through the controller. It is owned
// and mutated by Run only.
type RunState struct {
	Iteration   int
	Elapsed     float64
	GlobalDelta float64
}

// Result summarises a finished run.
type Result struct {
	Iterations int
	Elapsed    float64
}

// Run executes the solve. On the coordinator, grid is the initial global
// grid produced by the dataset loader; on every other worker it must be nil.
// Run returns once the wall-clock budget has expired (or, if a convergence
// threshold is configured, once the grid has converged) and all outstanding
// asynchronous operations have drained.
func (s *Solver) Run(grid *mat.Dense) (Result, error) {
	// INIT: distribute the initial grid, then hold everyone at the barrier
	// so no worker starts the timed region before all have their data.
	if err := s.distribute(grid); err != nil {
		return Result{}, err
	}
	s.Barrier()
	s.start = time.Now()

	st := RunState{}
	var lastReduce, lastGather *Request

	// LOOPING: ghost rows are refreshed at the top of every iteration, the
	// first included. The seeded buffers already carry their boundary rows,
	// and the global edge ghosts legitimately stay zero.
	for {
		s.exchangeHalos()
		s.applyStencil()
		local := s.reduceDelta()

		lastReduce = s.IAllreduceMax(local)

		if st.Iteration%s.cfg.SnapshotInterval == 0 {
			if s.rank == CoordinatorRank {
				st.GlobalDelta = lastReduce.Wait()
				fmt.Fprintf(s.out, "Iteration %d: %.18f\n", st.Iteration, st.GlobalDelta)
			}
			lastGather = s.IGather()
			if s.rank == CoordinatorRank && s.cfg.SnapshotDir != "" {
				lastGather.Wait()
				path := filepath.Join(s.cfg.SnapshotDir, fmt.Sprintf("%d.ppm", st.Iteration))
				if err := render.SavePPM(path, s.snapshot, s.cfg.MaxTemperature); err != nil {
					s.LogError("snapshot render: %v", err)
				}
			}
		}

		if s.cfg.ConvergenceThreshold > 0 {
			st.GlobalDelta = lastReduce.Wait()
		}

		st.Elapsed = s.bcastElapsed(time.Since(s.start).Seconds())
		st.Iteration++

		if st.Elapsed >= s.cfg.MaxRuntime {
			break
		}
		if s.cfg.ConvergenceThreshold > 0 && st.GlobalDelta < s.cfg.ConvergenceThreshold {
			break
		}
	}

	// DRAINING: no dangling operation may survive loop exit. The final
	// barrier keeps any worker from tearing its transport down while a
	// neighbour still has frames in flight.
	if lastReduce != nil {
		st.GlobalDelta = lastReduce.Wait()
	}
	if lastGather != nil {
		lastGather.Wait()
	}
	s.Barrier()

	// DONE.
	if s.rank == CoordinatorRank {
		fmt.Fprintf(s.out, "The program took %.2f seconds in total and executed %d iterations.\n",
			st.Elapsed, st.Iteration)
	}
	return Result{Iterations: st.Iteration, Elapsed: st.Elapsed}, nil
}

// distribute seeds every worker's slab from the coordinator's global grid.
// Chunks travel as point-to-point messages; the coordinator seeds its own
// slab directly.
func (s *Solver) distribute(grid *mat.Dense) error {
	if s.rank != CoordinatorRank {
		if grid != nil {
			return fmt.Errorf("%w: rank %d must not supply a grid", ErrBadGrid, s.rank)
		}
		return s.slab.Seed(<-s.seedCh)
	}

	if grid == nil {
		return fmt.Errorf("%w: coordinator needs an initial grid", ErrBadGrid)
	}
	r, c := grid.Dims()
	if r != s.cfg.Rows || c != s.cfg.Columns {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrBadGrid, r, c, s.cfg.Rows, s.cfg.Columns)
	}

	for rank := 0; rank < s.cfg.Workers; rank++ {
		chunk := make([][]float64, s.part.LocalRows)
		offset := s.part.RowOffset(rank)
		for i := range chunk {
			chunk[i] = append([]float64(nil), grid.RawRowView(offset+i)...)
		}
		if rank == s.rank {
			if err := s.slab.Seed(chunk); err != nil {
				return err
			}
			continue
		}
		s.send(rank, SEED, seedMsg{Rows: chunk})
	}
	return nil
}
