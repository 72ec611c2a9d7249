package periph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/tester"
	"github.com/soccentric/hwverify/types"
)

const gpioSysfs = "/sys/class/gpio"

// digitalTestPins are low-numbered bank pins safe to toggle on the
// board headers without disturbing boot-critical lines.
var digitalTestPins = []int{0, 1, 2}

// monitorPin is sampled during the stability monitor.
const monitorPin = 2

// GPIO verifies the digital I/O banks and the serial buses muxed onto
// them: PWM, I2C, SPI and UART.
type GPIO struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
}

func NewGPIO(env probe.Env, cfg config.Config, log *slog.Logger) *GPIO {
	return &GPIO{
		env:       env,
		cfg:       cfg,
		log:       log,
		available: env.Exists(gpioSysfs),
	}
}

func (g *GPIO) Name() string    { return "GPIO" }
func (g *GPIO) Available() bool { return g.available }

func (g *GPIO) ShortTest(ctx context.Context) types.TestReport {
	if !g.available {
		return tester.Unavailable(g.Name(), "GPIO sysfs interface not available")
	}
	start := time.Now()

	var details strings.Builder
	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "Digital I/O", Run: g.checkDigitalIO},
		{Label: "PWM", Run: g.checkPWM},
		{Label: "I2C", Run: g.checkI2C},
		{Label: "SPI", Run: g.checkSPI},
		{Label: "UART", Run: g.checkUART},
	})

	return tester.NewReport(g.Name(), result, details.String(), time.Since(start))
}

// MonitorTest exports a test pin as input and samples it every 100ms.
// Individual read errors are tolerated; the window fails when fewer
// than the configured ratio of reads succeed.
func (g *GPIO) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !g.available {
		return tester.Unavailable(g.Name(), "GPIO sysfs interface not available")
	}
	start := time.Now()

	details := fmt.Sprintf("GPIO monitoring completed for %d seconds", int(duration.Seconds()))

	if !g.exportPin(monitorPin) || !g.setDirection(monitorPin, "in") {
		g.unexportPin(monitorPin)
		return tester.NewReport(g.Name(), types.Failure,
			details+"\nfailed to acquire monitor pin", time.Since(start))
	}
	defer g.unexportPin(monitorPin)

	stable := 0
	total := 0
	tester.Poll(ctx, duration, 100*time.Millisecond, func(ctx context.Context) bool {
		total++
		if _, ok := g.readPin(monitorPin); ok {
			stable++
		}
		return true
	})

	var result types.TestResult
	switch {
	case total == 0:
		result = types.NotSupported
		details += "\nno samples collected"
	case float64(stable)/float64(total) >= g.cfg.Monitor.GPIOStabilityRatio:
		result = types.Success
		details += fmt.Sprintf("\n%d/%d reads stable", stable, total)
	default:
		result = types.Failure
		details += fmt.Sprintf("\nonly %d/%d reads stable", stable, total)
	}

	return tester.NewReport(g.Name(), result, details, time.Since(start))
}

// checkDigitalIO walks each test pin through the full sysfs lifecycle:
// export, drive high then low as an output, read back as an input,
// unexport. The pin is released on every failure path so a failed run
// never leaks an export.
func (g *GPIO) checkDigitalIO(ctx context.Context) tester.Outcome {
	for _, pin := range digitalTestPins {
		if !g.exportPin(pin) {
			return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("export gpio%d", pin)}
		}
		if outcome, ok := g.exercisePin(pin); !ok {
			g.unexportPin(pin)
			return outcome
		}
		g.unexportPin(pin)
	}
	return tester.Outcome{Result: types.Success,
		Info: fmt.Sprintf("%d pin(s) exercised", len(digitalTestPins))}
}

func (g *GPIO) exercisePin(pin int) (tester.Outcome, bool) {
	fail := func(stage string) (tester.Outcome, bool) {
		return tester.Outcome{Result: types.Failure,
			Info: fmt.Sprintf("%s gpio%d", stage, pin)}, false
	}
	if !g.setDirection(pin, "out") {
		return fail("direction")
	}
	if !g.writePin(pin, 1) {
		return fail("write")
	}
	time.Sleep(10 * time.Millisecond)
	if !g.writePin(pin, 0) {
		return fail("write")
	}
	if !g.setDirection(pin, "in") {
		return fail("direction")
	}
	if _, ok := g.readPin(pin); !ok {
		return fail("read")
	}
	return tester.Outcome{Result: types.Success}, true
}

func (g *GPIO) checkPWM(ctx context.Context) tester.Outcome {
	if !g.env.Exists("/sys/class/pwm/pwmchip0") {
		return tester.Outcome{Result: types.NotSupported, Info: "no PWM chip"}
	}
	return tester.Outcome{Result: types.Success, Info: "pwmchip0"}
}

func (g *GPIO) checkI2C(ctx context.Context) tester.Outcome {
	if devices := g.env.Glob("/dev/i2c-*"); len(devices) > 0 {
		return tester.Outcome{Result: types.Success,
			Info: fmt.Sprintf("%d bus(es)", len(devices))}
	}
	return tester.Outcome{Result: types.NotSupported, Info: "no I2C device nodes"}
}

func (g *GPIO) checkSPI(ctx context.Context) tester.Outcome {
	if devices := g.env.Glob("/dev/spidev*"); len(devices) > 0 {
		return tester.Outcome{Result: types.Success,
			Info: fmt.Sprintf("%d device(s)", len(devices))}
	}
	return tester.Outcome{Result: types.NotSupported, Info: "no SPI device nodes"}
}

func (g *GPIO) checkUART(ctx context.Context) tester.Outcome {
	for _, pattern := range []string{"/dev/ttyAMA*", "/dev/ttyS*", "/dev/ttyLP*"} {
		if devices := g.env.Glob(pattern); len(devices) > 0 {
			return tester.Outcome{Result: types.Success, Info: devices[0]}
		}
	}
	return tester.Outcome{Result: types.NotSupported, Info: "no UART device nodes"}
}

// exportPin requests the pin from the kernel and waits for sysfs to
// materialize its directory.
func (g *GPIO) exportPin(pin int) bool {
	if err := g.env.WriteFile(gpioSysfs+"/export", strconv.Itoa(pin)); err != nil {
		return false
	}
	time.Sleep(100 * time.Millisecond)
	return g.env.Exists(fmt.Sprintf("%s/gpio%d", gpioSysfs, pin))
}

func (g *GPIO) unexportPin(pin int) {
	if err := g.env.WriteFile(gpioSysfs+"/unexport", strconv.Itoa(pin)); err != nil {
		g.log.Debug("unexport failed", "pin", pin, "err", err)
	}
}

func (g *GPIO) setDirection(pin int, direction string) bool {
	return g.env.WriteFile(fmt.Sprintf("%s/gpio%d/direction", gpioSysfs, pin), direction) == nil
}

func (g *GPIO) writePin(pin, value int) bool {
	return g.env.WriteFile(fmt.Sprintf("%s/gpio%d/value", gpioSysfs, pin), strconv.Itoa(value)) == nil
}

func (g *GPIO) readPin(pin int) (int, bool) {
	raw, err := g.env.ReadFile(fmt.Sprintf("%s/gpio%d/value", gpioSysfs, pin))
	if err != nil {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
