/*
This file contains the snapshot gather: every SnapshotInterval iterations
the coordinator assembles all owned rows, ghost rows excluded, into one
global buffer for reporting. The gather is initiated right after the stencil
produces the new state and runs concurrently with the following iterations;
the coordinator waits on it only when the snapshot is actually consumed.
*/
package heatmesh

import "gonum.org/v1/gonum/mat"

// IGather starts a gather of every worker's owned rows to the coordinator's
// snapshot buffer and returns immediately. The rows are copied at initiation
// so later stencil writes cannot leak into the snapshot.
func (s *Solver) IGather() *Request {
	o := &pendingOp{kind: opGather, rows: s.slab.OwnedRows(), req: &Request{done: make(chan struct{})}}
	s.ops <- o
	return o.req
}

// runGather moves one worker's rows to the coordinator, or, on the
// coordinator, assembles all chunks in rank order. The snapshot buffer is
// overwritten in place every interval; no history is kept.
func (s *Solver) runGather(o *pendingOp) {
	if s.rank != CoordinatorRank {
		s.send(CoordinatorRank, SNAP, snapMsg{Rows: o.rows})
		return
	}
	s.placeChunk(s.rank, o.rows)
	for i := 1; i < s.cfg.Workers; i++ {
		chunk := <-s.snapCh
		s.placeChunk(chunk.src, chunk.rows)
	}
}

func (s *Solver) placeChunk(src int, rows [][]float64) {
	offset := s.part.RowOffset(src)
	for i, row := range rows {
		s.snapshot.SetRow(offset+i, row)
	}
}

// Snapshot exposes the coordinator's snapshot buffer. Only meaningful on the
// coordinator, after the corresponding gather request has been waited on.
func (s *Solver) Snapshot() *mat.Dense { return s.snapshot }
