/*
Package render turns gathered temperature snapshots into PPM images for
visual inspection of a run's progress. Hot cells trend red, cold cells blue.
*/
package render

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// WritePPM writes a binary (P6) PPM image of the grid. Each cell's red
// channel scales with its temperature relative to maxTemp and the blue
// channel with the remainder; green stays zero.
func WritePPM(w io.Writer, grid *mat.Dense, maxTemp float64) error {
	rows, cols := grid.Dims()
	if _, err := fmt.Fprintf(w, "P6 %d %d 255 ", cols, rows); err != nil {
		return err
	}
	pixel := make([]byte, 3)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			ratio := grid.At(i, j) / maxTemp
			if ratio < 0 {
				ratio = 0
			}
			if ratio > 1 {
				ratio = 1
			}
			pixel[0] = byte(ratio * 255.0)
			pixel[1] = 0
			pixel[2] = byte((1.0 - ratio) * 255.0)
			if _, err := w.Write(pixel); err != nil {
				return err
			}
		}
	}
	return nil
}

// SavePPM renders the grid into a file at path.
func SavePPM(path string, grid *mat.Dense, maxTemp float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	if err := WritePPM(bw, grid, maxTemp); err != nil {
		return err
	}
	return bw.Flush()
}
