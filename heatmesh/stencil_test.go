package heatmesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSingleWorker builds a solver that never touches the transport, for
// exercising the kernel in isolation.
func newSingleWorker(t *testing.T, rows, cols int) *Solver {
	t.Helper()
	s, err := NewSolver(0, testConfig(rows, cols, 1), nil, nil)
	require.NoError(t, err)
	s.SetFailFunc(func(f string, a ...interface{}) { t.Errorf(f, a...) })
	return s
}

func (s *Solver) step() float64 {
	s.applyStencil()
	return s.reduceDelta()
}

func TestStencilOneIteration(t *testing.T) {
	s := newSingleWorker(t, 4, 4)
	require.NoError(t, s.slab.Seed([][]float64{
		{50, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}))

	delta := s.step()

	// The heat source survives untouched.
	assert.Equal(t, 50.0, s.slab.Row(1)[0])
	// Its right neighbour averages four neighbours, one of them the source.
	assert.Equal(t, 12.5, s.slab.Row(1)[1])
	// The cell below sits on the left edge and averages three neighbours.
	assert.InDelta(t, 50.0/3.0, s.slab.Row(2)[0], 1e-12)
	// Everything two cells away stays cold after a single step.
	assert.Equal(t, 0.0, s.slab.Row(2)[1])
	assert.Equal(t, 0.0, s.slab.Row(1)[2])

	// The largest change this iteration happened on the left edge.
	assert.InDelta(t, 50.0/3.0, delta, 1e-12)
}

func TestStencilRightEdgeRule(t *testing.T) {
	s := newSingleWorker(t, 4, 4)
	require.NoError(t, s.slab.Seed([][]float64{
		{0, 0, 0, 50},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}))

	s.step()

	assert.Equal(t, 50.0, s.slab.Row(1)[3])
	assert.InDelta(t, 50.0/3.0, s.slab.Row(2)[3], 1e-12)
	assert.Equal(t, 12.5, s.slab.Row(1)[2])
}

func TestStencilColdGridIsAFixedPoint(t *testing.T) {
	s := newSingleWorker(t, 4, 4)
	require.NoError(t, s.slab.Seed(make2D(4, 4, 0)))

	assert.Equal(t, 0.0, s.step())
	for i := 1; i <= 4; i++ {
		assert.Equal(t, []float64{0, 0, 0, 0}, s.slab.Row(i))
	}
}

func TestStencilAllSourcesNeverChange(t *testing.T) {
	s := newSingleWorker(t, 4, 4)
	require.NoError(t, s.slab.Seed(make2D(4, 4, 50.0)))

	assert.Equal(t, 0.0, s.step())
	for i := 1; i <= 4; i++ {
		assert.Equal(t, []float64{50, 50, 50, 50}, s.slab.Row(i))
	}
}

// reduceDelta completes the buffer swap, so a second step must read the
// first step's output, not the seed.
func TestStencilBufferSwapBetweenIterations(t *testing.T) {
	s := newSingleWorker(t, 4, 4)
	require.NoError(t, s.slab.Seed([][]float64{
		{50, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}))

	s.step()
	s.step()

	// (2,1) now sees the first step's edge value above and interior value
	// to the left: 0.25 * (12.5 + 0 + 50/3 + 0).
	assert.InDelta(t, 0.25*(12.5+50.0/3.0), s.slab.Row(2)[1], 1e-12)
}

func make2D(rows, cols int, v float64) [][]float64 {
	grid := make([][]float64, rows)
	for i := range grid {
		grid[i] = make([]float64, cols)
		for j := range grid[i] {
			grid[i][j] = v
		}
	}
	return grid
}
