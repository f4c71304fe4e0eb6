/*
This file contains the halo exchange refreshing the ghost rows before every
stencil application. The fixed ordering (send up, receive from down, send
down, receive from up) keeps the chain of workers deadlock-free: the two
end workers have one-sided no-ops, so the send/receive pairs of adjacent
workers always interlock and never form a cycle. Sends complete
asynchronously through the transport; both receives are awaited here, before
the stencil reads the ghost rows.
*/
package heatmesh

// exchangeHalos donates this worker's boundary rows to its neighbours' ghost
// rows and refreshes its own ghost rows in return.
//
// Boundary rows are read from cur, which equals prev between iterations (the
// role swap completed during the previous reduction), and received rows land
// in prev, which is the buffer the next stencil application reads.
func (s *Solver) exchangeHalos() {
	last := s.part.LocalRows
	if s.topo.Up != NoWorker {
		s.send(s.topo.Up, HALO, haloMsg{Row: s.slab.cur[1]})
	}
	if s.topo.Down != NoWorker {
		row := <-s.haloDownCh
		if len(row) != s.part.Cols {
			s.Abort("halo row width mismatch")
		}
		copy(s.slab.prev[last+1], row)
	}
	if s.topo.Down != NoWorker {
		s.send(s.topo.Down, HALO, haloMsg{Row: s.slab.cur[last]})
	}
	if s.topo.Up != NoWorker {
		row := <-s.haloUpCh
		if len(row) != s.part.Cols {
			s.Abort("halo row width mismatch")
		}
		copy(s.slab.prev[0], row)
	}
}
