package heatmesh

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slabgrid/heatmesh/configs"
	"github.com/slabgrid/heatmesh/tipc"
)

// testConfig is a small valid configuration that tests adjust per case.
func testConfig(rows, cols, workers int) configs.Config {
	return configs.Config{
		Rows:             rows,
		Columns:          cols,
		Workers:          workers,
		MaxTemperature:   50.0,
		MaxRuntime:       60.0,
		SnapshotInterval: 50,
	}
}

// newLoopbackGroup wires cfg.Workers solvers over an in-process fabric and
// starts their dispatchers. Failures route to the test instead of killing
// the process.
func newLoopbackGroup(t *testing.T, cfg configs.Config) []*Solver {
	t.Helper()
	fabric := tipc.NewFabric(cfg.Workers)
	group := make([]*Solver, cfg.Workers)
	for rank := 0; rank < cfg.Workers; rank++ {
		tx, rx := fabric.Endpoint(rank)
		s, err := NewSolver(rank, cfg, tx, rx)
		require.NoError(t, err)
		s.SetFailFunc(func(f string, a ...interface{}) { t.Errorf(f, a...) })
		s.Startup()
		group[rank] = s
	}
	t.Cleanup(func() {
		for _, s := range group {
			s.Exit()
		}
		fabric.Close()
	})
	return group
}

// runGroup runs fn once per solver concurrently and fails the test if the
// group has not finished within the deadline, which is how a messaging
// deadlock shows up.
func runGroup(t *testing.T, group []*Solver, fn func(s *Solver)) {
	t.Helper()
	var wg sync.WaitGroup
	for _, s := range group {
		wg.Add(1)
		go func(s *Solver) {
			defer wg.Done()
			fn(s)
		}(s)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker group deadlocked")
	}
}
