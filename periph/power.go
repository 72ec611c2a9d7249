package periph

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/tester"
	"github.com/soccentric/hwverify/types"
)

// PowerSupply is one entry under /sys/class/power_supply.
type PowerSupply struct {
	Name     string
	Type     string
	Online   bool
	Capacity int
}

// Power verifies power supplies, voltage/current telemetry and battery
// state. Boards on bench power typically expose no supply class at all;
// the tester then reports through the regulator and thermal fallbacks.
type Power struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	supplies  []PowerSupply
}

func NewPower(env probe.Env, cfg config.Config, log *slog.Logger) *Power {
	p := &Power{env: env, cfg: cfg, log: log}
	p.supplies = p.enumerate()
	p.available = len(p.supplies) > 0 ||
		len(env.Glob("/sys/class/regulator/regulator.*")) > 0 ||
		len(env.Glob("/sys/class/thermal/thermal_zone*")) > 0
	return p
}

func (p *Power) Name() string    { return "Power" }
func (p *Power) Available() bool { return p.available }

func (p *Power) ShortTest(ctx context.Context) types.TestReport {
	if !p.available {
		return tester.Unavailable(p.Name(), "Power not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Found %d power supply(ies)\n", len(p.supplies))
	for _, supply := range p.supplies {
		fmt.Fprintf(&details, "- %s: %s", supply.Name, supply.Type)
		if supply.Online {
			details.WriteString(" (online)")
		}
		details.WriteString("\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "Power Source", Run: p.checkSource},
		{Label: "Power Monitoring", Run: p.checkMonitoring},
		{Label: "Battery", Run: p.checkBattery},
		{Label: "Power Management", Run: p.checkManagement},
	})

	return tester.NewReport(p.Name(), result, details.String(), time.Since(start))
}

// MonitorTest watches battery capacity and fails when the drain over
// the window exceeds the configured percentage. Boards without a
// battery sample supply presence instead; losing all supply telemetry
// ends the window immediately.
func (p *Power) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !p.available {
		return tester.Unavailable(p.Name(), "Power not available")
	}
	start := time.Now()

	battery, hasBattery := p.battery()
	initial := battery.Capacity
	lowest := initial
	samples := 0
	lost := false
	tester.Poll(ctx, duration, 5*time.Second, func(ctx context.Context) bool {
		samples++
		if hasBattery {
			if capacity, ok := p.readCapacity(battery.Name); ok && capacity < lowest {
				lowest = capacity
			}
			return true
		}
		if len(p.enumerate()) == 0 &&
			len(p.env.Glob("/sys/class/regulator/regulator.*")) == 0 {
			lost = true
			return false
		}
		return true
	})

	details := fmt.Sprintf("Power monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	drain := initial - lowest
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno samples collected"
	case lost:
		result = types.Failure
		details += "\npower telemetry disappeared during monitoring"
	case hasBattery && drain > p.cfg.Monitor.PowerMaxBatteryDrainPct:
		result = types.Failure
		details += fmt.Sprintf("\nbattery drained %d%% during window", drain)
	case hasBattery:
		result = types.Success
		details += fmt.Sprintf("\nbattery %d%% -> %d%% over %d samples", initial, lowest, samples)
	default:
		result = types.Success
		details += fmt.Sprintf("\npower source stable over %d samples", samples)
	}

	return tester.NewReport(p.Name(), result, details, time.Since(start))
}

func (p *Power) enumerate() []PowerSupply {
	var supplies []PowerSupply
	for _, path := range p.env.Glob("/sys/class/power_supply/*") {
		supply := PowerSupply{Name: filepath.Base(path), Capacity: -1}
		supply.Type, _ = p.env.ReadFile(path + "/type")
		if online, err := p.env.ReadFile(path + "/online"); err == nil {
			supply.Online = online == "1"
		}
		if capacity, ok := p.readCapacity(supply.Name); ok {
			supply.Capacity = capacity
		}
		supplies = append(supplies, supply)
	}
	return supplies
}

func (p *Power) readCapacity(name string) (int, bool) {
	raw, err := p.env.ReadFile("/sys/class/power_supply/" + name + "/capacity")
	if err != nil {
		return 0, false
	}
	capacity, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return capacity, true
}

func (p *Power) battery() (PowerSupply, bool) {
	for _, supply := range p.supplies {
		if strings.EqualFold(supply.Type, "Battery") {
			return supply, true
		}
	}
	return PowerSupply{}, false
}

// checkSource passes when any supply reports online, or when no supply
// class exists at all (bench power without PMIC telemetry).
func (p *Power) checkSource(ctx context.Context) tester.Outcome {
	if len(p.supplies) == 0 {
		return tester.Outcome{Result: types.NotSupported, Info: "no supply class exposed"}
	}
	for _, supply := range p.supplies {
		if supply.Online {
			return tester.Outcome{Result: types.Success, Info: supply.Name}
		}
	}
	// A lone battery with no AC entry still counts as a source.
	if battery, ok := p.battery(); ok {
		return tester.Outcome{Result: types.Success, Info: battery.Name}
	}
	return tester.Outcome{Result: types.Failure, Info: "no supply online"}
}

// checkMonitoring looks for voltage or current telemetry on any supply
// or hwmon node.
func (p *Power) checkMonitoring(ctx context.Context) tester.Outcome {
	for _, supply := range p.supplies {
		base := "/sys/class/power_supply/" + supply.Name
		if p.env.Exists(base+"/voltage_now") || p.env.Exists(base+"/current_now") {
			return tester.Outcome{Result: types.Success, Info: supply.Name}
		}
	}
	if len(p.env.Glob("/sys/class/hwmon/hwmon*/in*_input")) > 0 {
		return tester.Outcome{Result: types.Success, Info: "hwmon"}
	}
	return tester.Outcome{Result: types.NotSupported, Info: "no voltage/current telemetry"}
}

func (p *Power) checkBattery(ctx context.Context) tester.Outcome {
	battery, ok := p.battery()
	if !ok {
		return tester.Outcome{Result: types.NotSupported, Info: "no battery"}
	}
	if battery.Capacity < 0 || battery.Capacity > 100 {
		return tester.Outcome{Result: types.Failure,
			Info: fmt.Sprintf("capacity %d%% out of range", battery.Capacity)}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d%%", battery.Capacity)}
}

// checkManagement verifies cpufreq scaling or a suspend state is
// exposed.
func (p *Power) checkManagement(ctx context.Context) tester.Outcome {
	if len(p.env.Glob("/sys/devices/system/cpu/cpu*/cpufreq/scaling_governor")) > 0 {
		return tester.Outcome{Result: types.Success, Info: "cpufreq"}
	}
	if state, err := p.env.ReadFile("/sys/power/state"); err == nil && state != "" {
		return tester.Outcome{Result: types.Success, Info: state}
	}
	return tester.Outcome{Result: types.Failure, Info: "no power management interface"}
}
