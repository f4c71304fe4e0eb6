package heatmesh

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutorLaunchAndWait(t *testing.T) {
	e := NewExecutor(2)
	var flag int32
	e.Launch(7, func() { atomic.StoreInt32(&flag, 1) })
	e.Wait(7)
	assert.Equal(t, int32(1), atomic.LoadInt32(&flag))
}

func TestExecutorWaitIgnoresUnknownTags(t *testing.T) {
	e := NewExecutor(2)
	e.Wait(1, 2, 3) // must not block
}

func TestExecutorForRowsCoversRange(t *testing.T) {
	e := NewExecutor(3)
	hits := make([]int32, 10)
	e.ForRows(2, 9, func(i int) { atomic.AddInt32(&hits[i], 1) })
	for i, h := range hits {
		want := int32(0)
		if i >= 2 && i < 9 {
			want = 1
		}
		assert.Equal(t, want, h, "row %d", i)
	}
}

func TestExecutorMaxRows(t *testing.T) {
	vals := []float64{0.5, 3.25, 1.0, 2.75, 0.0, 3.0}
	for _, lanes := range []int{1, 2, 4} {
		e := NewExecutor(lanes)
		got := e.MaxRows(0, len(vals), func(i int) float64 { return vals[i] })
		assert.Equal(t, 3.25, got, "lanes=%d", lanes)
	}
}
