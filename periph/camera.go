package periph

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/tester"
	"github.com/soccentric/hwverify/types"
)

// CameraDevice describes one V4L2 capture node.
type CameraDevice struct {
	Node   string
	Driver string
	Sensor string
}

// Camera verifies the capture pipeline: V4L2 node enumeration, the
// CSI-2 receiver, and the sensor identification read back through
// sysfs.
type Camera struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	cameras   []CameraDevice
}

func NewCamera(env probe.Env, cfg config.Config, log *slog.Logger) *Camera {
	c := &Camera{env: env, cfg: cfg, log: log}
	c.cameras = c.enumerate()
	c.available = len(c.cameras) > 0
	return c
}

func (c *Camera) Name() string            { return "Camera" }
func (c *Camera) Available() bool         { return c.available }
func (c *Camera) Cameras() []CameraDevice { return c.cameras }

func (c *Camera) ShortTest(ctx context.Context) types.TestReport {
	if !c.available {
		return tester.Unavailable(c.Name(), "Camera not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Found %d camera device(s)\n", len(c.cameras))
	for _, cam := range c.cameras {
		fmt.Fprintf(&details, "- %s (%s", cam.Node, cam.Driver)
		if cam.Sensor != "" {
			fmt.Fprintf(&details, ", %s", cam.Sensor)
		}
		details.WriteString(")\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "MIPI CSI-2", Run: c.checkCSI},
		{Label: "Sensor", Run: c.checkSensor},
		{Label: "Multi-camera", Run: c.checkMultiCamera},
	})

	return tester.NewReport(c.Name(), result, details.String(), time.Since(start))
}

// MonitorTest re-enumerates capture nodes and fails when the device
// set changes, catching sensors that drop off the bus under soak. The
// window ends at the first changed sample rather than running to the
// deadline.
func (c *Camera) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !c.available {
		return tester.Unavailable(c.Name(), "Camera not available")
	}
	start := time.Now()

	initial := c.nodeSet(c.cameras)
	samples := 0
	stable := true
	tester.Poll(ctx, duration, 2*time.Second, func(ctx context.Context) bool {
		current := c.nodeSet(c.enumerate())
		if current != initial {
			stable = false
			return false
		}
		samples++
		return true
	})

	details := fmt.Sprintf("Camera monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0 && stable:
		result = types.NotSupported
		details += "\nno samples collected"
	case stable:
		result = types.Success
		details += fmt.Sprintf("\n%d device(s) stable over %d samples", len(c.cameras), samples)
	default:
		result = types.Failure
		details += "\ncamera device set changed during monitoring"
	}

	return tester.NewReport(c.Name(), result, details, time.Since(start))
}

func (c *Camera) enumerate() []CameraDevice {
	var cameras []CameraDevice
	for _, node := range c.env.Glob("/dev/video*") {
		cam := CameraDevice{Node: node}
		base := filepath.Base(node)
		if name, err := c.env.ReadFile("/sys/class/video4linux/" + base + "/name"); err == nil {
			cam.Driver = name
		}
		if sensor, err := c.env.ReadFile("/sys/class/video4linux/" + base + "/device/name"); err == nil {
			cam.Sensor = sensor
		}
		cameras = append(cameras, cam)
	}
	return cameras
}

func (c *Camera) nodeSet(cameras []CameraDevice) string {
	nodes := make([]string, 0, len(cameras))
	for _, cam := range cameras {
		nodes = append(nodes, cam.Node)
	}
	sort.Strings(nodes)
	return strings.Join(nodes, ",")
}

func (c *Camera) checkCSI(ctx context.Context) tester.Outcome {
	// The CSI receiver registers either as a media controller node or
	// a dedicated v4l subdevice.
	if len(c.env.Glob("/dev/media*")) > 0 || len(c.env.Glob("/dev/v4l-subdev*")) > 0 {
		return tester.Outcome{Result: types.Success}
	}
	for _, cam := range c.cameras {
		if strings.Contains(strings.ToLower(cam.Driver), "csi") {
			return tester.Outcome{Result: types.Success, Info: cam.Driver}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}

func (c *Camera) checkSensor(ctx context.Context) tester.Outcome {
	for _, cam := range c.cameras {
		if cam.Sensor != "" {
			return tester.Outcome{Result: types.Success, Info: cam.Sensor}
		}
	}
	// Nodes exist but no sensor identification; the pipeline is wired
	// without a module fitted.
	return tester.Outcome{Result: types.Failure, Info: "no sensor identified"}
}

func (c *Camera) checkMultiCamera(ctx context.Context) tester.Outcome {
	if len(c.cameras) < 2 {
		return tester.Outcome{Result: types.NotSupported}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d devices", len(c.cameras))}
}
