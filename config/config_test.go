package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 20.0, cfg.Monitor.CPUTempVarianceC)
	assert.Equal(t, 15.0, cfg.Monitor.GPUTempVarianceC)
	assert.Equal(t, 10.0, cfg.Monitor.MemoryUsageVariancePct)
	assert.Equal(t, uint64(10000), cfg.Monitor.StorageIODeltaSectors)
	assert.Equal(t, 3, cfg.Monitor.NetworkMaxFailures)
	assert.Equal(t, 0.95, cfg.Monitor.GPIOStabilityRatio)
	assert.Equal(t, 50, cfg.Monitor.PowerMaxBatteryDrainPct)
	assert.Equal(t, 20.0, cfg.Monitor.BoardTempVarianceC)
}

func TestLoad(t *testing.T) {
	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hwverify.yaml")
		content := `
monitor:
  cpu_temp_variance_c: 5
  network_max_failures: 1
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 5.0, cfg.Monitor.CPUTempVarianceC)
		assert.Equal(t, 1, cfg.Monitor.NetworkMaxFailures)
		// Everything the file does not name stays at its default.
		assert.Equal(t, 15.0, cfg.Monitor.GPUTempVarianceC)
		assert.Equal(t, 0.95, cfg.Monitor.GPIOStabilityRatio)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("monitor: ["), 0o644))

		_, err := Load(path)
		require.Error(t, err)
	})
}
