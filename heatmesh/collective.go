/*
This file contains the collective operations every worker participates in
each iteration: the startup barrier, the elapsed-time broadcast, the
non-blocking all-reduce of the maximum temperature change and the
non-blocking snapshot gather.

The non-blocking operations return a Request future. Requests are executed
by a single engine goroutine per worker, strictly in issue order; since all
workers run the same iteration sequence, the n-th reduction of one worker is
guaranteed to meet the n-th reduction of every other, without tagging.
*/
package heatmesh

// Request is the handle of an in-flight asynchronous collective. It mirrors
// a non-blocking communication request: issue it, keep computing, and wait
// only at the point the result is consumed.
type Request struct {
	done chan struct{}
	val  float64
}

// Wait blocks until the operation completes and returns its value (the
// global maximum delta for reductions, zero for gathers). Safe to call any
// number of times.
func (r *Request) Wait() float64 {
	<-r.done
	return r.val
}

const (
	opReduce = iota
	opGather
)

type pendingOp struct {
	kind  int
	local float64     // reduction input
	rows  [][]float64 // gather input, already deep-copied
	req   *Request
}

// engine executes enqueued collective operations one at a time.
func (s *Solver) engine() {
	for o := range s.ops {
		switch o.kind {
		case opReduce:
			s.runReduce(o)
		case opGather:
			s.runGather(o)
		}
		close(o.req.done)
	}
	close(s.engineDone)
}

// IAllreduceMax starts a global maximum reduction of this worker's local
// delta and returns immediately. Every worker's Wait observes the identical
// global value for a given iteration.
func (s *Solver) IAllreduceMax(local float64) *Request {
	o := &pendingOp{kind: opReduce, local: local, req: &Request{done: make(chan struct{})}}
	s.ops <- o
	return o.req
}

// runReduce performs the boomerang max reduction: workers send their local
// delta to the coordinator, the coordinator folds them and fans the global
// maximum back out.
func (s *Solver) runReduce(o *pendingOp) {
	if s.rank != CoordinatorRank {
		s.send(CoordinatorRank, DELTA, deltaMsg{Delta: o.local})
		o.req.val = <-s.reduceCh
		return
	}
	global := o.local
	for i := 1; i < s.cfg.Workers; i++ {
		if d := <-s.deltaCh; d > global {
			global = d
		}
	}
	for r := 1; r < s.cfg.Workers; r++ {
		s.send(r, REDUCE, reduceMsg{Delta: global})
	}
	o.req.val = global
}

// Barrier blocks until every worker has arrived. The coordinator collects
// one arrival per worker (its own included, via the transport's self route)
// and releases the group.
func (s *Solver) Barrier() {
	s.LogDebug("Barrier..Start")
	s.send(CoordinatorRank, BARRREQ, barrierMsg{})
	if s.rank == CoordinatorRank {
		for i := 0; i < s.cfg.Workers; i++ {
			<-s.barrReqCh
		}
		for r := 0; r < s.cfg.Workers; r++ {
			s.send(r, BARRRSP, barrierMsg{})
		}
	}
	<-s.barrRspCh
	s.LogDebug("Barrier..Done")
}

// bcastElapsed distributes the coordinator's elapsed wall-clock reading so
// every worker applies the identical termination test. Only the value passed
// by the coordinator is meaningful; the other workers return what they
// receive.
func (s *Solver) bcastElapsed(elapsed float64) float64 {
	if s.rank == CoordinatorRank {
		for r := 1; r < s.cfg.Workers; r++ {
			s.send(r, CLOCK, clockMsg{Elapsed: elapsed})
		}
		return elapsed
	}
	return <-s.clockCh
}
