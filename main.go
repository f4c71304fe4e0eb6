/*
Command heatmesh runs the distributed heat-diffusion solve.

Single-host runs spawn every worker as a goroutine over the in-process
loopback fabric. Multi-host runs deploy one worker per configured host over
SSH; each remote worker re-executes this binary with its rank and joins the
TCP mesh.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/slabgrid/heatmesh/configs"
	"github.com/slabgrid/heatmesh/dataset"
	"github.com/slabgrid/heatmesh/heatmesh"
	"github.com/slabgrid/heatmesh/ipc"
	"github.com/slabgrid/heatmesh/tipc"
)

func main() {
	cfgPath := flag.String("config", "", "path to the run configuration JSON; defaults apply when empty")
	dataPath := flag.String("data", "", "path to a binary dataset; a cross pattern is generated when empty")
	rank := flag.Int("rank", 0, "this worker's rank; nonzero only on deployed workers")
	flag.Parse()

	cfg := configs.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = configs.Read(*cfgPath); err != nil {
			log.Fatalf("heatmesh: config: %v", err)
		}
	} else if err := cfg.Validate(); err != nil {
		log.Fatalf("heatmesh: config: %v", err)
	}

	if cfg.Debug > 0 {
		go heatmesh.DumpLog()
	}

	if len(cfg.Hosts) == 0 {
		runLocal(cfg, *dataPath)
		return
	}
	runMesh(cfg, *dataPath, *rank, *cfgPath)
}

// loadGrid produces the coordinator's initial global grid.
func loadGrid(cfg configs.Config, dataPath string) *mat.Dense {
	if cfg.SnapshotDir != "" {
		if err := os.MkdirAll(cfg.SnapshotDir, 0755); err != nil {
			log.Fatalf("heatmesh: snapshot dir: %v", err)
		}
	}
	var grid *mat.Dense
	var err error
	if dataPath != "" {
		grid, err = dataset.Read(dataPath)
	} else {
		grid, err = dataset.Generate(cfg.Rows, cfg.Columns, cfg.MaxTemperature, dataset.Cross)
	}
	if err != nil {
		log.Fatalf("heatmesh: dataset: %v", err)
	}
	if err := dataset.Verify(grid, cfg.MaxTemperature); err != nil {
		log.Fatalf("heatmesh: dataset: %v", err)
	}
	return grid
}

// runLocal runs all workers as goroutines of this process.
func runLocal(cfg configs.Config, dataPath string) {
	grid := loadGrid(cfg, dataPath)
	fabric := tipc.NewFabric(cfg.Workers)
	done := make(chan int, cfg.Workers)

	for rank := 0; rank < cfg.Workers; rank++ {
		tx, rx := fabric.Endpoint(rank)
		solver, err := heatmesh.NewSolver(rank, cfg, tx, rx)
		if err != nil {
			log.Fatalf("heatmesh: rank %d: %v", rank, err)
		}
		var g *mat.Dense
		if rank == heatmesh.CoordinatorRank {
			g = grid
		}
		go func(rank int, s *heatmesh.Solver, g *mat.Dense) {
			s.Startup()
			if _, err := s.Run(g); err != nil {
				log.Fatalf("heatmesh: rank %d: %v", rank, err)
			}
			s.Exit()
			done <- rank
		}(rank, solver, g)
	}

	for i := 0; i < cfg.Workers; i++ {
		<-done
	}
}

// runMesh joins (and, on the coordinator, first deploys) the TCP worker mesh.
func runMesh(cfg configs.Config, dataPath string, rank int, cfgPath string) {
	if len(cfg.Hosts) != cfg.Workers {
		log.Fatalf("heatmesh: config lists %d hosts for %d workers", len(cfg.Hosts), cfg.Workers)
	}

	if rank == heatmesh.CoordinatorRank {
		bin, err := os.Executable()
		if err != nil {
			log.Fatalf("heatmesh: locate own binary: %v", err)
		}
		if err := ipc.StartWorkers(cfg.Hosts, bin, cfgPath); err != nil {
			log.Fatalf("heatmesh: deploy: %v", err)
		}
	}

	addrs := make([]string, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		addrs[i] = h.Address
	}
	mesh, tx, rx, err := ipc.NewMesh(rank, addrs, cfg.BasePort)
	if err != nil {
		log.Fatalf("heatmesh: rank %d: %v", rank, err)
	}
	defer mesh.Close()

	solver, err := heatmesh.NewSolver(rank, cfg, tx, rx)
	if err != nil {
		log.Fatalf("heatmesh: rank %d: %v", rank, err)
	}
	var grid *mat.Dense
	if rank == heatmesh.CoordinatorRank {
		grid = loadGrid(cfg, dataPath)
	}

	solver.Startup()
	res, err := solver.Run(grid)
	if err != nil {
		log.Fatalf("heatmesh: rank %d: %v", rank, err)
	}
	// The final barrier has released; peers may start hanging up now.
	mesh.Quiesce()
	solver.Exit()
	if rank != heatmesh.CoordinatorRank {
		fmt.Printf("rank %d finished after %d iterations\n", rank, res.Iterations)
	}
}
