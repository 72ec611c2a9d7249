package periph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/tester"
	"github.com/soccentric/hwverify/types"
)

var cpuThermalPaths = []string{
	"/sys/class/thermal/thermal_zone0/temp",
	"/sys/class/thermal/thermal_zone1/temp",
	"/sys/devices/virtual/thermal/thermal_zone0/temp",
	"/sys/class/hwmon/hwmon0/temp1_input",
	"/sys/class/hwmon/hwmon1/temp1_input",
}

var npuPaths = []string{
	"/dev/ethos-u",
	"/sys/class/misc/ethos-u",
	"/sys/firmware/devicetree/base/soc/npu",
	"/proc/device-tree/soc/npu",
}

// CPUInfo is the construction-time snapshot of the processor.
type CPUInfo struct {
	Model        string
	Architecture string
	Cores        int
	FrequencyMHz float64
	NPU          bool
}

// CPU verifies the application cores: identification, computation,
// thermal readout and multi-core scheduling, plus NPU presence where
// the SoC has one.
type CPU struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	info      CPUInfo
}

func NewCPU(env probe.Env, cfg config.Config, log *slog.Logger) *CPU {
	c := &CPU{env: env, cfg: cfg, log: log}
	c.available = env.Exists("/proc/cpuinfo")
	if c.available {
		c.info = c.readInfo()
		if c.info.Model == "" && c.info.Architecture == "" {
			c.available = false
		}
	}
	return c
}

func (c *CPU) Name() string    { return "CPU" }
func (c *CPU) Available() bool { return c.available }

// Info returns the cached snapshot.
func (c *CPU) Info() CPUInfo { return c.info }

func (c *CPU) ShortTest(ctx context.Context) types.TestReport {
	if !c.available {
		return tester.Unavailable(c.Name(), "CPU information not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "CPU Model: %s\n", c.info.Model)
	fmt.Fprintf(&details, "Cores: %d\n", c.info.Cores)
	fmt.Fprintf(&details, "Architecture: %s\n", c.info.Architecture)
	fmt.Fprintf(&details, "Frequency: %.0f MHz\n", c.info.FrequencyMHz)
	if c.info.NPU {
		details.WriteString("NPU: present\n")
	} else {
		details.WriteString("NPU: not available\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "Benchmark", Run: c.benchmark},
		{Label: "Temperature", Run: c.checkTemperature},
		{Label: "Multi-core", Run: c.multiCore},
		{Label: "NPU", Run: c.checkNPU},
	})

	return tester.NewReport(c.Name(), result, details.String(), time.Since(start))
}

// MonitorTest watches the CPU thermal zone and fails when the spread
// of readings exceeds the configured variance.
func (c *CPU) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !c.available {
		return tester.Unavailable(c.Name(), "CPU information not available")
	}
	start := time.Now()

	samples := 0
	minTemp, maxTemp := 0.0, 0.0
	tester.Poll(ctx, duration, time.Second, func(ctx context.Context) bool {
		t, ok := readTemperature(c.env, cpuThermalPaths)
		if !ok {
			return true
		}
		if samples == 0 || t < minTemp {
			minTemp = t
		}
		if samples == 0 || t > maxTemp {
			maxTemp = t
		}
		samples++
		return true
	})

	details := fmt.Sprintf("CPU monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno temperature samples collected"
	case maxTemp-minTemp <= c.cfg.Monitor.CPUTempVarianceC:
		result = types.Success
		details += fmt.Sprintf("\ntemperature range %.1f-%.1f°C over %d samples", minTemp, maxTemp, samples)
	default:
		result = types.Failure
		details += fmt.Sprintf("\ntemperature variation %.1f°C exceeds %.1f°C limit",
			maxTemp-minTemp, c.cfg.Monitor.CPUTempVarianceC)
	}

	return tester.NewReport(c.Name(), result, details, time.Since(start))
}

func (c *CPU) readInfo() CPUInfo {
	info := CPUInfo{}

	cpuinfo, err := c.env.ReadFile("/proc/cpuinfo")
	if err != nil {
		return info
	}

	processors := 0
	for _, line := range strings.Split(cpuinfo, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "processor":
			processors++
		case "model name":
			if info.Model == "" {
				info.Model = value
			}
		case "CPU implementer":
			// 0x41 is ARM Ltd.
			if info.Model == "" && strings.Contains(value, "0x41") {
				info.Model = "ARM"
			}
		case "CPU architecture":
			if info.Architecture == "" {
				info.Architecture = value
			}
		case "cpu cores":
			if n, err := strconv.Atoi(value); err == nil && info.Cores == 0 {
				info.Cores = n
			}
		}
	}
	if info.Cores == 0 {
		info.Cores = processors
	}

	if raw, err := c.env.ReadFile("/sys/devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq"); err == nil {
		if khz, err := strconv.ParseFloat(raw, 64); err == nil {
			info.FrequencyMHz = khz / 1000.0
		}
	}

	info.NPU = c.npuPresent()
	return info
}

func (c *CPU) npuPresent() bool {
	for _, path := range npuPaths {
		if c.env.Exists(path) {
			return true
		}
	}
	return false
}

// benchmark computes primes up to a fixed bound and checks the largest
// found, catching gross arithmetic or scheduling faults.
func (c *CPU) benchmark(ctx context.Context) tester.Outcome {
	const maxPrime = 10000
	last := 0
	count := 0
	for num := 2; num <= maxPrime; num++ {
		isPrime := true
		for i := 2; i*i <= num; i++ {
			if num%i == 0 {
				isPrime = false
				break
			}
		}
		if isPrime {
			last = num
			count++
		}
	}
	if count == 0 || last != 9973 {
		return tester.Outcome{Result: types.Failure}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d primes", count)}
}

func (c *CPU) checkTemperature(ctx context.Context) tester.Outcome {
	t, ok := readTemperature(c.env, cpuThermalPaths)
	if !ok {
		return tester.Outcome{Result: types.NotSupported}
	}
	if t < 0 || t > 100 {
		return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("%.1f°C", t)}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%.1f°C", t)}
}

// multiCore spawns one worker per logical core and checks that every
// worker ran. Workers are joined before the sub-probe returns; no
// concurrency escapes the tester.
func (c *CPU) multiCore(ctx context.Context) tester.Outcome {
	workers := c.env.NumCPU()
	if workers == 0 {
		return tester.Outcome{Result: types.NotSupported}
	}

	sums := make([]int, workers)
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			sum := 0
			for j := 1; j <= 1000; j++ {
				sum += j * (i + 1)
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tester.Outcome{Result: types.Failure}
	}

	for _, sum := range sums {
		if sum == 0 {
			return tester.Outcome{Result: types.Failure}
		}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d workers", workers)}
}

func (c *CPU) checkNPU(ctx context.Context) tester.Outcome {
	if c.info.NPU {
		return tester.Outcome{Result: types.Success}
	}
	// Device nodes absent; the driver may still be loaded as a module.
	out, err := c.env.Run(ctx, 2*time.Second, "lsmod")
	if err == nil && strings.Contains(strings.ToLower(out), "ethos") {
		return tester.Outcome{Result: types.Success, Info: "driver module"}
	}
	return tester.Outcome{Result: types.NotSupported}
}
