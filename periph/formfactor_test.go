package periph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/types"
)

func fakeBoard() *probe.Fake {
	return &probe.Fake{
		Files: map[string]string{
			"/proc/device-tree/model":               "NXP FRDM-IMX93 board",
			"/proc/device-tree/serial-number":       "1C2F4D8E0A6B",
			"/sys/class/thermal/thermal_zone0/temp": "48000",
		},
		Dirs: []string{
			"/proc/device-tree",
			"/sys/class/gpio",
			"/dev/i2c-1",
			"/sys/class/net/eth0",
		},
	}
}

func TestFormFactorShortTest(t *testing.T) {
	ff := NewFormFactor(fakeBoard(), config.Default(), testLogger())
	require.True(t, ff.Available())
	assert.Equal(t, "Form Factor", ff.Name())
	assert.Equal(t, "NXP FRDM-IMX93 board", ff.Info().Model)

	report := ff.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Equal(t, "Form Factor", report.Peripheral)
	assert.Contains(t, report.Details, "Module Type: NXP FRDM-IMX93 board")
	assert.Contains(t, report.Details, "Serial Number: 1C2F4D8E0A6B")
	assert.Contains(t, report.Details, "Board Info: PASS")
	assert.Contains(t, report.Details, "GPIO Pins: PASS")
	assert.Contains(t, report.Details, "Interfaces: PASS (3/7 present)")
	assert.Contains(t, report.Details, "Temperature: PASS (48.0 C)")
}

func TestFormFactorNoIdentityFails(t *testing.T) {
	env := &probe.Fake{Dirs: []string{"/sys/class/gpio"}}
	ff := NewFormFactor(env, config.Default(), testLogger())
	require.True(t, ff.Available())

	report := ff.ShortTest(context.Background())
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "Board Info: FAIL")
	assert.Contains(t, report.Details, "Temperature: N/A")
}

func TestFormFactorUnavailable(t *testing.T) {
	ff := NewFormFactor(&probe.Fake{}, config.Default(), testLogger())
	assert.False(t, ff.Available())

	report := ff.ShortTest(context.Background())
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Equal(t, "Form factor testing not available", report.Details)
	assert.Zero(t, report.Duration)
}

func TestFormFactorMonitorDetectsInterfaceChange(t *testing.T) {
	env := fakeBoard()
	ff := NewFormFactor(env, config.Default(), testLogger())

	// I2C bus disappears after the initial snapshot.
	env.Dirs = []string{"/proc/device-tree", "/sys/class/gpio", "/sys/class/net/eth0"}

	report := ff.MonitorTest(context.Background(), 0)
	assert.Equal(t, types.NotSupported, report.Result)

	report = ff.MonitorTest(context.Background(), 50*time.Millisecond)
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "interface presence or temperature changed")
}

func TestFormFactorMonitorUsesConfiguredTempVariance(t *testing.T) {
	cfg := config.Default()
	// A negative bound makes the very first reading count as a swing.
	cfg.Monitor.BoardTempVarianceC = -1
	ff := NewFormFactor(fakeBoard(), cfg, testLogger())

	report := ff.MonitorTest(context.Background(), 50*time.Millisecond)
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "interface presence or temperature changed")
}
