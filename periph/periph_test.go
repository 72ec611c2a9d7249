package periph

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(&probe.Fake{}, config.Default(), testLogger())

	assert.Equal(t, []string{
		"camera", "cpu", "display", "form_factor", "gpio", "gpu",
		"memory", "networking", "power", "storage", "usb",
	}, r.Keys())

	displayNames := map[string]string{
		"cpu":         "CPU",
		"gpio":        "GPIO",
		"camera":      "Camera",
		"gpu":         "GPU",
		"memory":      "Memory",
		"storage":     "Storage",
		"display":     "Display",
		"usb":         "USB",
		"networking":  "Networking",
		"power":       "Power",
		"form_factor": "Form Factor",
	}
	for key, name := range displayNames {
		created, err := r.Create(key)
		require.NoError(t, err)
		assert.Equal(t, name, created.Name())
	}
}

func TestReadScaled(t *testing.T) {
	env := &probe.Fake{Files: map[string]string{
		"/t/milli": "45500",
		"/t/plain": "46.5",
		"/t/junk":  "hot",
	}}

	v, ok := readScaled(env, "/t/milli")
	require.True(t, ok)
	assert.InDelta(t, 45.5, v, 0.001)

	v, ok = readScaled(env, "/t/plain")
	require.True(t, ok)
	assert.InDelta(t, 46.5, v, 0.001)

	_, ok = readScaled(env, "/t/junk")
	assert.False(t, ok)

	_, ok = readScaled(env, "/t/missing")
	assert.False(t, ok)
}

func TestReadTemperatureSkipsImplausible(t *testing.T) {
	env := &probe.Fake{Files: map[string]string{
		"/zone0": "250000",
		"/zone1": "52000",
	}}

	temp, ok := readTemperature(env, []string{"/zone0", "/zone1"})
	require.True(t, ok)
	assert.InDelta(t, 52.0, temp, 0.001)

	_, ok = readTemperature(env, []string{"/zone0"})
	assert.False(t, ok)
}
