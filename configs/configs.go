/*
Package configs holds the run configuration for a heatmesh simulation.

This file contains the structs and functions used to read, write and
validate the configuration JSON shared by the coordinator and the workers.
*/
package configs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Configuration errors reported before the timed region begins.
var (
	// ErrUnevenRows indicates that the global row count is not evenly
	// divisible by the worker count.
	ErrUnevenRows = errors.New("configs: rows must be evenly divisible by workers")
	// ErrBadDimensions indicates a grid too small to apply the stencil.
	ErrBadDimensions = errors.New("configs: grid must have at least 1 row and 2 columns")
	// ErrBadWorkers indicates an unusable worker count.
	ErrBadWorkers = errors.New("configs: workers must be between 1 and 255")
	// ErrBadBudget indicates a non-positive wall-clock budget.
	ErrBadBudget = errors.New("configs: max runtime must be positive")
	// ErrBadInterval indicates a non-positive snapshot interval.
	ErrBadInterval = errors.New("configs: snapshot interval must be at least 1")
	// ErrBadMaxTemperature indicates a non-positive heat-source sentinel.
	ErrBadMaxTemperature = errors.New("configs: max temperature must be positive")
)

// WorkerHost describes one remote machine a worker is deployed to.
// Username and Password are only consulted by the SSH deployment path.
type WorkerHost struct {
	Address  string
	Port     string
	Username string
	Password string
}

// Config is the full set of options recognised by the solver. It is shared
// verbatim by every worker so that all of them derive identical partitioning
// and termination behaviour.
type Config struct {
	// Rows and Columns are the global grid dimensions.
	Rows    int
	Columns int

	// Workers is the number of cooperating worker processes. Rows must be
	// evenly divisible by Workers.
	Workers int

	// MaxTemperature is the heat-source sentinel value. A cell holding
	// exactly this value is a heat source and is never updated.
	MaxTemperature float64

	// MaxRuntime is the wall-clock budget in seconds. The coordinator owns
	// the clock and broadcasts the elapsed time every iteration.
	MaxRuntime float64

	// SnapshotInterval is the number of iterations between full-grid gathers
	// to the coordinator.
	SnapshotInterval int

	// ConvergenceThreshold enables convergence-based early exit when set to
	// a value greater than zero. The default of zero preserves the
	// wall-clock-only termination of the reference behaviour.
	ConvergenceThreshold float64

	// SnapshotDir, when non-empty, is where the coordinator renders a PPM
	// image of each gathered snapshot.
	SnapshotDir string

	// BasePort is the first TCP port of the worker mesh; worker k listens
	// on BasePort+k.
	BasePort int

	// Hosts lists the machines workers run on, one entry per rank.
	// Empty for single-host runs over the loopback fabric.
	Hosts []WorkerHost

	// Debug is the log verbosity: 0=off, 1=error, 2=info, 3=message trace,
	// 4=debug.
	Debug int

	// VectorLog, when non-empty, enables GoVector vector-clock logging of
	// every wire message under this process-name prefix.
	VectorLog string
}

// Default returns the configuration of the sample-size reference run.
func Default() Config {
	return Config{
		Rows:             512,
		Columns:          512,
		Workers:          4,
		MaxTemperature:   50.0,
		MaxRuntime:       60.0,
		SnapshotInterval: 50,
		BasePort:         6464,
	}
}

// Validate reports the first configuration error found, or nil.
func (c Config) Validate() error {
	if c.Workers < 1 || c.Workers > 255 {
		return fmt.Errorf("%w: got %d", ErrBadWorkers, c.Workers)
	}
	if c.Rows < 1 || c.Columns < 2 {
		return fmt.Errorf("%w: got %dx%d", ErrBadDimensions, c.Rows, c.Columns)
	}
	if c.Rows%c.Workers != 0 {
		return fmt.Errorf("%w: %d rows across %d workers", ErrUnevenRows, c.Rows, c.Workers)
	}
	if c.MaxRuntime <= 0 {
		return fmt.Errorf("%w: got %f", ErrBadBudget, c.MaxRuntime)
	}
	if c.SnapshotInterval < 1 {
		return fmt.Errorf("%w: got %d", ErrBadInterval, c.SnapshotInterval)
	}
	if c.MaxTemperature <= 0 {
		return fmt.Errorf("%w: got %f", ErrBadMaxTemperature, c.MaxTemperature)
	}
	return nil
}

// LocalRows is the number of owned rows per worker. Call Validate first.
func (c Config) LocalRows() int {
	return c.Rows / c.Workers
}

// Read loads and validates a configuration from a JSON file.
func Read(path string) (Config, error) {
	c := Config{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Write stores the configuration as JSON so it can be shipped to workers.
func Write(path string, c Config) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}
