package periph

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/types"
)

func fakeGPIOBoard() *probe.Fake {
	return &probe.Fake{
		Dirs: []string{
			"/sys/class/gpio",
			"/sys/class/gpio/gpio0",
			"/sys/class/gpio/gpio1",
			"/sys/class/gpio/gpio2",
			"/sys/class/pwm/pwmchip0",
			"/dev/i2c-1",
			"/dev/spidev0.0",
			"/dev/ttyS0",
		},
	}
}

func TestGPIOShortTest(t *testing.T) {
	env := fakeGPIOBoard()
	gpio := NewGPIO(env, config.Default(), testLogger())
	require.True(t, gpio.Available())

	report := gpio.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Equal(t, "GPIO", report.Peripheral)
	assert.Contains(t, report.Details, "Digital I/O: PASS")
	assert.Contains(t, report.Details, "PWM: PASS")
	assert.Contains(t, report.Details, "I2C: PASS")
	assert.Contains(t, report.Details, "SPI: PASS")
	assert.Contains(t, report.Details, "UART: PASS")

	// Every exported pin must be released again.
	exports, unexports := 0, 0
	for _, w := range env.Writes {
		switch w.Path {
		case "/sys/class/gpio/export":
			exports++
		case "/sys/class/gpio/unexport":
			unexports++
		}
	}
	assert.Equal(t, exports, unexports)
}

func TestGPIOShortTestRepeatable(t *testing.T) {
	gpio := NewGPIO(fakeGPIOBoard(), config.Default(), testLogger())

	first := gpio.ShortTest(context.Background())
	second := gpio.ShortTest(context.Background())
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Details, second.Details)
}

func TestGPIOBusesAbsentAreNotFailures(t *testing.T) {
	env := &probe.Fake{
		Dirs: []string{
			"/sys/class/gpio",
			"/sys/class/gpio/gpio0",
			"/sys/class/gpio/gpio1",
			"/sys/class/gpio/gpio2",
		},
	}
	gpio := NewGPIO(env, config.Default(), testLogger())

	report := gpio.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Contains(t, report.Details, "PWM: N/A")
	assert.Contains(t, report.Details, "I2C: N/A")
	assert.Contains(t, report.Details, "SPI: N/A")
	assert.Contains(t, report.Details, "UART: N/A")
}

func TestGPIODigitalIOFailureReleasesPin(t *testing.T) {
	env := fakeGPIOBoard()
	env.WriteErrs = map[string]error{
		"/sys/class/gpio/gpio0/direction": errors.New("permission denied"),
	}
	gpio := NewGPIO(env, config.Default(), testLogger())

	report := gpio.ShortTest(context.Background())
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "Digital I/O: FAIL (direction gpio0)")

	last := env.Writes[len(env.Writes)-1]
	assert.Equal(t, "/sys/class/gpio/unexport", last.Path)
	assert.Equal(t, "0", last.Data)
}

func TestGPIOUnavailable(t *testing.T) {
	gpio := NewGPIO(&probe.Fake{}, config.Default(), testLogger())
	assert.False(t, gpio.Available())

	report := gpio.ShortTest(context.Background())
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Equal(t, "GPIO sysfs interface not available", report.Details)
}

func TestGPIOMonitorStable(t *testing.T) {
	env := fakeGPIOBoard()
	env.Files = map[string]string{"/sys/class/gpio/gpio2/value": "0"}
	gpio := NewGPIO(env, config.Default(), testLogger())

	report := gpio.MonitorTest(context.Background(), 250*time.Millisecond)
	assert.Equal(t, types.Success, report.Result)
	assert.Contains(t, report.Details, "GPIO monitoring completed for 0 seconds")

	last := env.Writes[len(env.Writes)-1]
	assert.Equal(t, "/sys/class/gpio/unexport", last.Path)
}

func TestGPIOMonitorUnstableReads(t *testing.T) {
	// No value file: every read fails, stability ratio is zero.
	gpio := NewGPIO(fakeGPIOBoard(), config.Default(), testLogger())

	report := gpio.MonitorTest(context.Background(), 250*time.Millisecond)
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "reads stable")
}
