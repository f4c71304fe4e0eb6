package heatmesh

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllreduceMaxAgreesEverywhere(t *testing.T) {
	group := newLoopbackGroup(t, testConfig(6, 4, 3))
	locals := []float64{0.5, 4.25, 1.75}

	var mu sync.Mutex
	got := make([]float64, len(group))
	runGroup(t, group, func(s *Solver) {
		v := s.IAllreduceMax(locals[s.Rank()]).Wait()
		mu.Lock()
		got[s.Rank()] = v
		mu.Unlock()
	})

	for rank, v := range got {
		assert.Equal(t, 4.25, v, "rank %d", rank)
	}
}

// Back-to-back reductions must pair up by issue order on every worker, so
// the first round's values never bleed into the second.
func TestAllreduceMaxKeepsRoundsOrdered(t *testing.T) {
	group := newLoopbackGroup(t, testConfig(6, 4, 3))
	roundA := []float64{1, 9, 2}
	roundB := []float64{5, 3, 4}

	var mu sync.Mutex
	gotA := make([]float64, len(group))
	gotB := make([]float64, len(group))
	runGroup(t, group, func(s *Solver) {
		ra := s.IAllreduceMax(roundA[s.Rank()])
		rb := s.IAllreduceMax(roundB[s.Rank()])
		a, b := ra.Wait(), rb.Wait()
		mu.Lock()
		gotA[s.Rank()], gotB[s.Rank()] = a, b
		mu.Unlock()
	})

	for rank := range group {
		assert.Equal(t, 9.0, gotA[rank], "round A, rank %d", rank)
		assert.Equal(t, 5.0, gotB[rank], "round B, rank %d", rank)
	}
}

func TestRequestWaitIsIdempotent(t *testing.T) {
	group := newLoopbackGroup(t, testConfig(2, 2, 1))
	req := group[0].IAllreduceMax(2.5)
	assert.Equal(t, 2.5, req.Wait())
	assert.Equal(t, 2.5, req.Wait())
}

func TestBarrierReleasesWholeGroup(t *testing.T) {
	group := newLoopbackGroup(t, testConfig(6, 4, 3))
	runGroup(t, group, func(s *Solver) {
		s.Barrier()
		s.Barrier()
	})
}

func TestBcastElapsed(t *testing.T) {
	group := newLoopbackGroup(t, testConfig(6, 4, 3))

	var mu sync.Mutex
	got := make([]float64, len(group))
	runGroup(t, group, func(s *Solver) {
		// Workers pass their own reading; only the coordinator's survives.
		v := s.bcastElapsed(float64(s.Rank()) + 1.5)
		mu.Lock()
		got[s.Rank()] = v
		mu.Unlock()
	})

	for rank, v := range got {
		assert.Equal(t, 1.5, v, "rank %d", rank)
	}
}
