package periph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/types"
)

func TestGPUShortTest(t *testing.T) {
	env := &probe.Fake{
		Files: map[string]string{
			"/proc/meminfo": "MemTotal: 2027820 kB\nCmaTotal: 327680 kB\n",
		},
		Dirs: []string{"/dev/dri/card0"},
		Commands: map[string]string{
			"glxinfo -B":           "name of display: :0\nOpenGL version string: 3.1 Mesa 23.0\n",
			"vulkaninfo --summary": "Devices:\n\tapiVersion = 1.3.238\n",
		},
	}
	gpu := NewGPU(env, config.Default(), testLogger())
	require.True(t, gpu.Available())
	assert.Equal(t, "/dev/dri/card0", gpu.Info().DeviceNode)

	report := gpu.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Equal(t, "GPU", report.Peripheral)
	assert.Contains(t, report.Details, "DRM Node: PASS")
	assert.Contains(t, report.Details, "OpenGL: PASS (3.1 Mesa 23.0)")
	assert.Contains(t, report.Details, "Vulkan: PASS (1.3.238)")
	assert.Contains(t, report.Details, "GPU Memory: PASS (327680 kB CMA)")
}

func TestGPUShortTestRepeatable(t *testing.T) {
	env := &probe.Fake{
		Files: map[string]string{
			"/proc/meminfo": "MemTotal: 2027820 kB\nCmaTotal: 327680 kB\n",
		},
		Dirs: []string{"/dev/dri/card0"},
		Commands: map[string]string{
			"glxinfo -B":           "name of display: :0\nOpenGL version string: 3.1 Mesa 23.0\n",
			"vulkaninfo --summary": "Devices:\n\tapiVersion = 1.3.238\n",
		},
	}
	gpu := NewGPU(env, config.Default(), testLogger())
	before := gpu.Info()

	first := gpu.ShortTest(context.Background())
	second := gpu.ShortTest(context.Background())
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Details, second.Details)
	// The construction-time snapshot stays untouched across runs.
	assert.Equal(t, before, gpu.Info())
}

func TestGPUHeadlessToolsAbsentAreNotFailures(t *testing.T) {
	env := &probe.Fake{Dirs: []string{"/dev/dri/card0"}}
	gpu := NewGPU(env, config.Default(), testLogger())

	report := gpu.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Contains(t, report.Details, "OpenGL: N/A")
	assert.Contains(t, report.Details, "Vulkan: N/A")
	assert.Contains(t, report.Details, "GPU Memory: N/A")
}

func TestGPUUnavailable(t *testing.T) {
	gpu := NewGPU(&probe.Fake{}, config.Default(), testLogger())
	assert.False(t, gpu.Available())

	report := gpu.ShortTest(context.Background())
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Equal(t, "GPU not available", report.Details)
}
