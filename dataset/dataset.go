/*
Package dataset constructs, stores and verifies the initial temperature
grids a run is seeded from. The on-disk format is a small binary header
holding the row and column counts as 32-bit unsigned little-endian
integers, followed by the cells as row-major little-endian float64s.
*/
package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrOverheated indicates a cell beyond the maximum temperature.
	ErrOverheated = errors.New("dataset: cell temperature beyond maximum")
	// ErrBadPattern indicates an unknown generation pattern name.
	ErrBadPattern = errors.New("dataset: unknown pattern")
	// ErrTruncated indicates a dataset file shorter than its header claims.
	ErrTruncated = errors.New("dataset: file truncated")
	// ErrBadDimensions indicates a header declaring a grid the solver
	// cannot use.
	ErrBadDimensions = errors.New("dataset: unusable grid dimensions")
)

// maxCells bounds how large a grid a header may declare before Read treats
// the file as corrupt rather than attempting the allocation.
const maxCells = 1 << 30

// Pattern selects the heat-source placement of a generated dataset.
type Pattern string

const (
	// Cross fixes a centred square block of heat sources, leaving the
	// corners cold.
	Cross Pattern = "cross"
	// Stripes fixes every hundredth column as a heat-source line.
	Stripes Pattern = "stripes"
)

// Generate builds an initial grid: heat sources hold exactly maxTemp and
// every other cell starts at zero.
func Generate(rows, cols int, maxTemp float64, pattern Pattern) (*mat.Dense, error) {
	grid := mat.NewDense(rows, cols, nil)
	switch pattern {
	case Cross:
		midR, midC := rows/2, cols/2
		thickness := rows / 2
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if i >= midR-thickness/2 && i <= midR+thickness/2 &&
					j >= midC-thickness/2 && j <= midC+thickness/2 {
					grid.Set(i, j, maxTemp)
				}
			}
		}
	case Stripes:
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j += 100 {
				grid.Set(i, j, maxTemp)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	return grid, nil
}

// Verify checks that no cell exceeds maxTemp. The solver can only lower
// temperatures between sources, so a violation means corrupt input.
func Verify(grid *mat.Dense, maxTemp float64) error {
	rows, cols := grid.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if grid.At(i, j) > maxTemp {
				return fmt.Errorf("%w: cell [%d,%d] holds %f, maximum is %f",
					ErrOverheated, i, j, grid.At(i, j), maxTemp)
			}
		}
	}
	return nil
}

// Write stores the grid at path in the binary dataset format.
func Write(path string, grid *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	rows, cols := grid.Dims()
	if err := binary.Write(w, binary.LittleEndian, uint32(rows)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(cols)); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(grid.At(i, j)))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// Read loads a grid from the binary dataset format at path.
func Read(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if rows < 1 || cols < 2 || uint64(rows)*uint64(cols) > maxCells {
		return nil, fmt.Errorf("%w: header declares %dx%d", ErrBadDimensions, rows, cols)
	}

	cells := make([]float64, int(rows)*int(cols))
	buf := make([]byte, 8)
	for i := range cells {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrTruncated, i, err)
		}
		cells[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	}
	return mat.NewDense(int(rows), int(cols), cells), nil
}
