package sched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesAndClamps(t *testing.T) {
	path := writeConfig(t, `
probe_ms: 20
relax_ms: -4
min_speed: 2.5
csv_path: trace.csv
sim:
  width: 50
  min_speed: 300
  max_speed: 100
  seed: 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, cfg.ProbeInterval())
	assert.Equal(t, 10*time.Millisecond, cfg.RelaxInterval())
	assert.Equal(t, time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, 2.5, cfg.MinSpeed)
	assert.Equal(t, "trace.csv", cfg.CSVPath)
	assert.Equal(t, 50, cfg.Sim.Width)
	assert.Equal(t, 400, cfg.Sim.Height)
	assert.Equal(t, 300.0, cfg.Sim.MaxSpeed)
	assert.Equal(t, uint64(42), cfg.Sim.Seed)
}

func TestLoad_ZeroRateMeansUnlimited(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sim:\n  rate: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Sim.Rate)

	cfg, err = Load(writeConfig(t, "sim:\n  rate: -3\n  burst: 2\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Sim.Rate)
	assert.Equal(t, 2, cfg.Sim.Burst)

	cfg, err = Load(writeConfig(t, "probe_ms: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sim.Rate, cfg.Sim.Rate, "unset keeps the default")
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, "probe_ms: [1, 2\n")
	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
