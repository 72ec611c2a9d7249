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

// DisplayConnector describes one DRM connector.
type DisplayConnector struct {
	Name      string
	Connected bool
	Modes     []string
}

// Display verifies the display pipeline through the DRM connector
// tree: HDMI and MIPI DSI presence, reported modes, and connection
// stability over time.
type Display struct {
	env        probe.Env
	cfg        config.Config
	log        *slog.Logger
	available  bool
	connectors []DisplayConnector
}

func NewDisplay(env probe.Env, cfg config.Config, log *slog.Logger) *Display {
	d := &Display{env: env, cfg: cfg, log: log}
	d.connectors = d.enumerate()
	d.available = len(d.connectors) > 0
	return d
}

func (d *Display) Name() string                   { return "Display" }
func (d *Display) Available() bool                { return d.available }
func (d *Display) Connectors() []DisplayConnector { return d.connectors }

func (d *Display) ShortTest(ctx context.Context) types.TestReport {
	if !d.available {
		return tester.Unavailable(d.Name(), "Display not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Found %d display connector(s)\n", len(d.connectors))
	for _, conn := range d.connectors {
		state := "disconnected"
		if conn.Connected {
			state = "connected"
		}
		fmt.Fprintf(&details, "- %s (%s", conn.Name, state)
		if len(conn.Modes) > 0 {
			fmt.Fprintf(&details, ", %s", conn.Modes[0])
		}
		details.WriteString(")\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "HDMI", Run: d.checkHDMI},
		{Label: "MIPI DSI", Run: d.checkDSI},
		{Label: "4K HDMI", Run: d.check4K},
	})

	return tester.NewReport(d.Name(), result, details.String(), time.Since(start))
}

// MonitorTest re-enumerates connectors and fails when the connected
// count changes mid-window, which on a bench means a flaky cable or a
// link renegotiation loop.
func (d *Display) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !d.available {
		return tester.Unavailable(d.Name(), "Display not available")
	}
	start := time.Now()

	samples := 0
	firstCount := 0
	stable := true
	tester.Poll(ctx, duration, 2*time.Second, func(ctx context.Context) bool {
		count := 0
		for _, conn := range d.enumerate() {
			if conn.Connected {
				count++
			}
		}
		if samples == 0 {
			firstCount = count
		} else if count != firstCount {
			stable = false
		}
		samples++
		return true
	})

	details := fmt.Sprintf("Display monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno connector samples collected"
	case stable:
		result = types.Success
		details += fmt.Sprintf("\n%d connector(s) stable over %d samples", firstCount, samples)
	default:
		result = types.Failure
		details += "\nconnected display count changed during monitoring"
	}

	return tester.NewReport(d.Name(), result, details, time.Since(start))
}

func (d *Display) enumerate() []DisplayConnector {
	var connectors []DisplayConnector
	for _, path := range d.env.Glob("/sys/class/drm/card*-*") {
		conn := DisplayConnector{Name: filepath.Base(path)}
		if status, err := d.env.ReadFile(path + "/status"); err == nil {
			conn.Connected = status == "connected"
		}
		if modes, err := d.env.ReadFile(path + "/modes"); err == nil && modes != "" {
			conn.Modes = strings.Split(modes, "\n")
		}
		connectors = append(connectors, conn)
	}
	return connectors
}

func (d *Display) findConnector(fragment string) *DisplayConnector {
	for i := range d.connectors {
		if strings.Contains(d.connectors[i].Name, fragment) {
			return &d.connectors[i]
		}
	}
	return nil
}

func (d *Display) checkHDMI(ctx context.Context) tester.Outcome {
	conn := d.findConnector("HDMI")
	if conn == nil {
		return tester.Outcome{Result: types.NotSupported}
	}
	if conn.Connected {
		return tester.Outcome{Result: types.Success, Info: "connected"}
	}
	// Connector present without a sink is a pass on an open bench.
	return tester.Outcome{Result: types.Success, Info: "no sink"}
}

func (d *Display) checkDSI(ctx context.Context) tester.Outcome {
	conn := d.findConnector("DSI")
	if conn == nil {
		return tester.Outcome{Result: types.NotSupported}
	}
	if conn.Connected {
		return tester.Outcome{Result: types.Success, Info: "connected"}
	}
	return tester.Outcome{Result: types.Failure, Info: "panel not detected"}
}

// check4K looks for a 3840x2160 mode on a connected HDMI sink.
func (d *Display) check4K(ctx context.Context) tester.Outcome {
	conn := d.findConnector("HDMI")
	if conn == nil || !conn.Connected {
		return tester.Outcome{Result: types.NotSupported}
	}
	for _, mode := range conn.Modes {
		width, _, found := strings.Cut(mode, "x")
		if !found {
			continue
		}
		if w, err := strconv.Atoi(strings.TrimSpace(width)); err == nil && w >= 3840 {
			return tester.Outcome{Result: types.Success, Info: strings.TrimSpace(mode)}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}
