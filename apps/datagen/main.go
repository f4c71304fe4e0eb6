// Command datagen writes an initial-temperature dataset in the binary
// format the solver reads with the -data flag.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/slabgrid/heatmesh/dataset"
)

func main() {
	rows := flag.Int("rows", 512, "grid rows")
	cols := flag.Int("cols", 512, "grid columns")
	maxTemp := flag.Float64("maxtemp", 50.0, "heat-source temperature")
	pattern := flag.String("pattern", string(dataset.Cross), "source pattern: cross or stripes")
	out := flag.String("out", "grid.dat", "output path")
	flag.Parse()

	grid, err := dataset.Generate(*rows, *cols, *maxTemp, dataset.Pattern(*pattern))
	if err != nil {
		log.Fatalf("datagen: %v", err)
	}
	if err := dataset.Write(*out, grid); err != nil {
		log.Fatalf("datagen: %v", err)
	}
	fmt.Printf("wrote %dx%d grid to %s\n", *rows, *cols, *out)
}
