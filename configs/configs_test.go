package configs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 128, cfg.LocalRows())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrBadWorkers},
		{"too many workers", func(c *Config) { c.Workers = 256 }, ErrBadWorkers},
		{"zero rows", func(c *Config) { c.Rows = 0 }, ErrBadDimensions},
		{"one column", func(c *Config) { c.Columns = 1 }, ErrBadDimensions},
		{"uneven rows", func(c *Config) { c.Rows = 510 }, ErrUnevenRows},
		{"zero budget", func(c *Config) { c.MaxRuntime = 0 }, ErrBadBudget},
		{"negative budget", func(c *Config) { c.MaxRuntime = -1 }, ErrBadBudget},
		{"zero interval", func(c *Config) { c.SnapshotInterval = 0 }, ErrBadInterval},
		{"zero max temperature", func(c *Config) { c.MaxTemperature = 0 }, ErrBadMaxTemperature},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), c.want)
		})
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")

	cfg := Default()
	cfg.Workers = 8
	cfg.Rows = 256
	cfg.ConvergenceThreshold = 1e-4
	cfg.Hosts = []WorkerHost{{Address: "10.0.0.1", Port: "22", Username: "ops"}}
	require.NoError(t, Write(path, cfg))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestReadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")

	cfg := Default()
	cfg.Workers = 3 // 512 rows do not divide by 3
	require.NoError(t, Write(path, cfg))

	_, err := Read(path)
	assert.ErrorIs(t, err, ErrUnevenRows)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
