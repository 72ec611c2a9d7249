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

func fakePowerBoard() *probe.Fake {
	return &probe.Fake{
		Files: map[string]string{
			"/sys/class/power_supply/ac/type":         "Mains",
			"/sys/class/power_supply/ac/online":       "1",
			"/sys/class/power_supply/bat0/type":       "Battery",
			"/sys/class/power_supply/bat0/capacity":   "87",
			"/sys/class/power_supply/ac/voltage_now":  "5000000",
			"/sys/power/state":                        "freeze mem",
		},
		Dirs: []string{
			"/sys/class/power_supply/ac",
			"/sys/class/power_supply/bat0",
		},
	}
}

func TestPowerShortTest(t *testing.T) {
	power := NewPower(fakePowerBoard(), config.Default(), testLogger())
	require.True(t, power.Available())

	report := power.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Equal(t, "Power", report.Peripheral)
	assert.Contains(t, report.Details, "Found 2 power supply(ies)")
	assert.Contains(t, report.Details, "- ac: Mains (online)")
	assert.Contains(t, report.Details, "Power Source: PASS (ac)")
	assert.Contains(t, report.Details, "Power Monitoring: PASS (ac)")
	assert.Contains(t, report.Details, "Battery: PASS (87%)")
	assert.Contains(t, report.Details, "Power Management: PASS")
}

func TestPowerBatteryOnlySource(t *testing.T) {
	env := &probe.Fake{
		Files: map[string]string{
			"/sys/class/power_supply/bat0/type":     "Battery",
			"/sys/class/power_supply/bat0/capacity": "42",
		},
		Dirs: []string{"/sys/class/power_supply/bat0"},
	}
	power := NewPower(env, config.Default(), testLogger())

	report := power.ShortTest(context.Background())
	assert.Contains(t, report.Details, "Power Source: PASS (bat0)")
	assert.Contains(t, report.Details, "Battery: PASS (42%)")
}

func TestPowerNoSupplyClassIsNotFailure(t *testing.T) {
	env := &probe.Fake{Dirs: []string{
		"/sys/class/thermal/thermal_zone0",
		"/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor",
	}}
	power := NewPower(env, config.Default(), testLogger())
	require.True(t, power.Available())

	report := power.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Contains(t, report.Details, "Power Source: N/A")
	assert.Contains(t, report.Details, "Battery: N/A")
}

func TestPowerUnavailable(t *testing.T) {
	power := NewPower(&probe.Fake{}, config.Default(), testLogger())
	assert.False(t, power.Available())

	report := power.ShortTest(context.Background())
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Equal(t, "Power not available", report.Details)
}
