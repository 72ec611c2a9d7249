package periph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/tester"
	"github.com/soccentric/hwverify/types"
)

var gpuThermalPaths = []string{
	"/sys/class/thermal/thermal_zone1/temp",
	"/sys/class/thermal/thermal_zone2/temp",
	"/sys/class/hwmon/hwmon1/temp1_input",
	"/sys/class/hwmon/hwmon2/temp1_input",
}

// GPUInfo is the construction-time snapshot of the graphics core.
type GPUInfo struct {
	DeviceNode string
}

// GPU verifies the graphics core through its DRM node and the OpenGL
// and Vulkan userspace stacks.
type GPU struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	info      GPUInfo
}

func NewGPU(env probe.Env, cfg config.Config, log *slog.Logger) *GPU {
	g := &GPU{env: env, cfg: cfg, log: log}
	for _, node := range env.Glob("/dev/dri/card*") {
		g.available = true
		g.info.DeviceNode = node
		break
	}
	return g
}

func (g *GPU) Name() string    { return "GPU" }
func (g *GPU) Available() bool { return g.available }
func (g *GPU) Info() GPUInfo   { return g.info }

func (g *GPU) ShortTest(ctx context.Context) types.TestReport {
	if !g.available {
		return tester.Unavailable(g.Name(), "GPU not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Device: %s\n", g.info.DeviceNode)

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "DRM Node", Run: g.checkNode},
		{Label: "OpenGL", Run: g.checkOpenGL},
		{Label: "Vulkan", Run: g.checkVulkan},
		{Label: "GPU Memory", Run: g.checkMemory},
	})

	return tester.NewReport(g.Name(), result, details.String(), time.Since(start))
}

// MonitorTest tracks the GPU thermal sensor; GPUs tolerate a tighter
// variance than the CPU since there is no load during the window.
func (g *GPU) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !g.available {
		return tester.Unavailable(g.Name(), "GPU not available")
	}
	start := time.Now()

	samples := 0
	minTemp, maxTemp := 0.0, 0.0
	tester.Poll(ctx, duration, 2*time.Second, func(ctx context.Context) bool {
		t, ok := readTemperature(g.env, gpuThermalPaths)
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

	details := fmt.Sprintf("GPU monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno temperature samples collected"
	case maxTemp-minTemp <= g.cfg.Monitor.GPUTempVarianceC:
		result = types.Success
		details += fmt.Sprintf("\ntemperature range %.1f-%.1f°C over %d samples", minTemp, maxTemp, samples)
	default:
		result = types.Failure
		details += fmt.Sprintf("\ntemperature variation %.1f°C exceeds %.1f°C limit",
			maxTemp-minTemp, g.cfg.Monitor.GPUTempVarianceC)
	}

	return tester.NewReport(g.Name(), result, details, time.Since(start))
}

func (g *GPU) checkNode(ctx context.Context) tester.Outcome {
	if g.env.Exists(g.info.DeviceNode) {
		return tester.Outcome{Result: types.Success, Info: g.info.DeviceNode}
	}
	return tester.Outcome{Result: types.Failure}
}

func (g *GPU) checkOpenGL(ctx context.Context) tester.Outcome {
	out, err := g.env.Run(ctx, 10*time.Second, "glxinfo", "-B")
	if err != nil {
		// Headless boards often carry GLES instead.
		out, err = g.env.Run(ctx, 10*time.Second, "eglinfo")
		if err != nil {
			return tester.Outcome{Result: types.NotSupported}
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "OpenGL version string:") || strings.Contains(line, "OpenGL ES profile version") {
			version := strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			return tester.Outcome{Result: types.Success, Info: version}
		}
	}
	return tester.Outcome{Result: types.Failure}
}

func (g *GPU) checkVulkan(ctx context.Context) tester.Outcome {
	out, err := g.env.Run(ctx, 10*time.Second, "vulkaninfo", "--summary")
	if err != nil {
		return tester.Outcome{Result: types.NotSupported}
	}
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "apiVersion") {
			fields := strings.Fields(trimmed)
			version := fields[len(fields)-1]
			return tester.Outcome{Result: types.Success, Info: version}
		}
	}
	return tester.Outcome{Result: types.Failure}
}

func (g *GPU) checkMemory(ctx context.Context) tester.Outcome {
	// CMA carveout backs the GPU on this class of SoC.
	meminfo, err := g.env.ReadFile("/proc/meminfo")
	if err != nil {
		return tester.Outcome{Result: types.NotSupported}
	}
	for _, line := range strings.Split(meminfo, "\n") {
		if strings.HasPrefix(line, "CmaTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && fields[1] != "0" {
				return tester.Outcome{Result: types.Success, Info: fields[1] + " kB CMA"}
			}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}
