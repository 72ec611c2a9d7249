// Package periph implements the peripheral testers for an embedded
// Linux board: construction-time discovery over an injected probe
// environment, a short sub-probe battery, and a polled monitor test
// per peripheral.
package periph

import (
	"log/slog"
	"strconv"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/registry"
	"github.com/soccentric/hwverify/tester"
)

// DefaultRegistry wires every supported peripheral under its canonical
// key. Keys are CLI-facing; display names come from each tester.
func DefaultRegistry(env probe.Env, cfg config.Config, log *slog.Logger) *registry.Registry {
	r := registry.New(log)
	r.Register("cpu", func() tester.PeripheralTester { return NewCPU(env, cfg, log) })
	r.Register("gpio", func() tester.PeripheralTester { return NewGPIO(env, cfg, log) })
	r.Register("camera", func() tester.PeripheralTester { return NewCamera(env, cfg, log) })
	r.Register("gpu", func() tester.PeripheralTester { return NewGPU(env, cfg, log) })
	r.Register("memory", func() tester.PeripheralTester { return NewMemory(env, cfg, log) })
	r.Register("storage", func() tester.PeripheralTester { return NewStorage(env, cfg, log) })
	r.Register("display", func() tester.PeripheralTester { return NewDisplay(env, cfg, log) })
	r.Register("usb", func() tester.PeripheralTester { return NewUSB(env, cfg, log) })
	r.Register("networking", func() tester.PeripheralTester { return NewNetworking(env, cfg, log) })
	r.Register("power", func() tester.PeripheralTester { return NewPower(env, cfg, log) })
	r.Register("form_factor", func() tester.PeripheralTester { return NewFormFactor(env, cfg, log) })
	return r
}

// readScaled reads a sysfs attribute as a float. Values above 1000 are
// taken as millidegrees/millivolts and scaled down, the common kernel
// convention.
func readScaled(env probe.Env, path string) (float64, bool) {
	raw, err := env.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if v > 1000 {
		v /= 1000.0
	}
	return v, true
}

// readTemperature tries the candidate thermal paths in order and
// returns the first plausible reading. The path list is platform data,
// not policy; any reading outside the silicon's rated range is junk
// from a stale sensor node and gets skipped.
func readTemperature(env probe.Env, paths []string) (float64, bool) {
	for _, path := range paths {
		if t, ok := readScaled(env, path); ok && t >= -40.0 && t <= 125.0 {
			return t, true
		}
	}
	return 0, false
}
