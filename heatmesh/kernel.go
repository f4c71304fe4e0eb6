/*
This file contains the data-parallel kernel executor. Independent phases are
launched under integer tags and dependent phases wait on the specific tags
they consume, so the stencil's three column ranges can run concurrently and
the convergence reduction can block on exactly those three completions.
*/
package heatmesh

import (
	"runtime"
	"sync"
)

// Executor runs tagged kernels on a bounded number of parallel lanes.
type Executor struct {
	lanes int
	mu    sync.Mutex
	tags  map[int]chan struct{}
}

// NewExecutor creates an executor with the given lane count; zero or
// negative means one lane per available CPU.
func NewExecutor(lanes int) *Executor {
	if lanes < 1 {
		lanes = runtime.GOMAXPROCS(0)
	}
	return &Executor{lanes: lanes, tags: make(map[int]chan struct{})}
}

// Launch starts fn asynchronously under tag. Relaunching a tag before
// waiting on it replaces the previous completion, so a tag must be waited on
// between launches.
func (e *Executor) Launch(tag int, fn func()) {
	done := make(chan struct{})
	e.mu.Lock()
	e.tags[tag] = done
	e.mu.Unlock()
	go func() {
		fn()
		close(done)
	}()
}

// Wait blocks until every named tag's latest launch has completed. Tags
// never launched are ignored.
func (e *Executor) Wait(tags ...int) {
	for _, tag := range tags {
		e.mu.Lock()
		done := e.tags[tag]
		e.mu.Unlock()
		if done != nil {
			<-done
		}
	}
}

// ForRows applies fn to every row index in [lo, hi), splitting the range
// across the lanes, and blocks until all of them are done.
func (e *Executor) ForRows(lo, hi int, fn func(i int)) {
	lanes := e.lanes
	if hi-lo < lanes {
		lanes = hi - lo
	}
	if lanes <= 1 {
		for i := lo; i < hi; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (hi - lo + lanes - 1) / lanes
	for start := lo; start < hi; start += chunk {
		end := start + chunk
		if end > hi {
			end = hi
		}
		wg.Add(1)
		go func(a, b int) {
			defer wg.Done()
			for i := a; i < b; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// MaxRows applies fn to every row index in [lo, hi) in parallel and returns
// the maximum of the per-row results. Row order does not matter because each
// row's work is self-contained.
func (e *Executor) MaxRows(lo, hi int, fn func(i int) float64) float64 {
	lanes := e.lanes
	if hi-lo < lanes {
		lanes = hi - lo
	}
	if lanes <= 1 {
		var max float64
		for i := lo; i < hi; i++ {
			if d := fn(i); d > max {
				max = d
			}
		}
		return max
	}
	partial := make([]float64, lanes)
	var wg sync.WaitGroup
	chunk := (hi - lo + lanes - 1) / lanes
	lane := 0
	for start := lo; start < hi; start += chunk {
		end := start + chunk
		if end > hi {
			end = hi
		}
		wg.Add(1)
		go func(lane, a, b int) {
			defer wg.Done()
			for i := a; i < b; i++ {
				if d := fn(i); d > partial[lane] {
					partial[lane] = d
				}
			}
		}(lane, start, end)
		lane++
	}
	wg.Wait()
	var max float64
	for _, d := range partial {
		if d > max {
			max = d
		}
	}
	return max
}
