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

// BoardInfo is the board identity read from the device tree.
type BoardInfo struct {
	Model        string
	Revision     string
	SerialNumber string
}

// boardInterface is one physical interface class on the board.
type boardInterface struct {
	Name      string
	Available bool
}

// FormFactor verifies board identity and the presence of the physical
// interface classes the board exposes on its headers and connectors.
type FormFactor struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	info      BoardInfo
}

func NewFormFactor(env probe.Env, cfg config.Config, log *slog.Logger) *FormFactor {
	f := &FormFactor{env: env, cfg: cfg, log: log}
	f.available = env.Exists("/proc/device-tree") ||
		env.Exists("/sys/firmware/devicetree") ||
		env.Exists("/sys/class/gpio")
	if !f.available {
		return f
	}
	f.info.Model, _ = env.ReadFile("/proc/device-tree/model")
	f.info.Revision, _ = env.ReadFile("/proc/device-tree/revision")
	f.info.SerialNumber, _ = env.ReadFile("/proc/device-tree/serial-number")
	return f
}

func (f *FormFactor) Name() string    { return "Form Factor" }
func (f *FormFactor) Available() bool { return f.available }
func (f *FormFactor) Info() BoardInfo { return f.info }

func (f *FormFactor) ShortTest(ctx context.Context) types.TestReport {
	if !f.available {
		return tester.Unavailable(f.Name(), "Form factor testing not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Module Type: %s\n", f.info.Model)
	fmt.Fprintf(&details, "Revision: %s\n", f.info.Revision)
	if f.info.SerialNumber != "" {
		fmt.Fprintf(&details, "Serial Number: %s\n", f.info.SerialNumber)
	}
	if temp, ok := f.boardTemperature(); ok {
		fmt.Fprintf(&details, "Temperature: %.1f C\n", temp)
	}
	interfaces := f.enumerateInterfaces()
	fmt.Fprintf(&details, "Available Interfaces: %d\n", countAvailable(interfaces))

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "Board Info", Run: f.checkBoardInfo},
		{Label: "GPIO Pins", Run: f.checkGPIOPins},
		{Label: "Interfaces", Run: f.checkInterfaces},
		{Label: "Temperature", Run: f.checkTemperature},
	})

	return tester.NewReport(f.Name(), result, details.String(), time.Since(start))
}

// MonitorTest watches the interface presence set and the board
// temperature. A disappearing interface class or a swing past the
// configured board variance fails, ending the window at the offending
// sample.
func (f *FormFactor) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !f.available {
		return tester.Unavailable(f.Name(), "Form factor testing not available")
	}
	start := time.Now()

	initial := interfaceSet(f.enumerateInterfaces())
	initialTemp, hasTemp := f.boardTemperature()
	samples := 0
	stable := true
	tester.Poll(ctx, duration, 5*time.Second, func(ctx context.Context) bool {
		if interfaceSet(f.enumerateInterfaces()) != initial {
			stable = false
			return false
		}
		if hasTemp {
			if temp, ok := f.boardTemperature(); ok && abs(temp-initialTemp) > f.cfg.Monitor.BoardTempVarianceC {
				stable = false
				return false
			}
		}
		samples++
		return true
	})

	details := fmt.Sprintf("Interface monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0 && stable:
		result = types.NotSupported
		details += "\nno samples collected"
	case stable:
		result = types.Success
		details += fmt.Sprintf("\ninterfaces stable over %d samples", samples)
	default:
		result = types.Failure
		details += "\ninterface presence or temperature changed during monitoring"
	}

	return tester.NewReport(f.Name(), result, details, time.Since(start))
}

func (f *FormFactor) checkBoardInfo(ctx context.Context) tester.Outcome {
	if f.info.Model == "" && f.info.Revision == "" {
		return tester.Outcome{Result: types.Failure, Info: "no device tree identity"}
	}
	return tester.Outcome{Result: types.Success, Info: f.info.Model}
}

// checkGPIOPins verifies the GPIO class is present. Pin-level exercise
// belongs to the GPIO tester; here only presence matters.
func (f *FormFactor) checkGPIOPins(ctx context.Context) tester.Outcome {
	if !f.env.Exists("/sys/class/gpio") {
		return tester.Outcome{Result: types.NotSupported, Info: "no GPIO class"}
	}
	return tester.Outcome{Result: types.Success}
}

func (f *FormFactor) checkInterfaces(ctx context.Context) tester.Outcome {
	interfaces := f.enumerateInterfaces()
	available := countAvailable(interfaces)
	if available == 0 {
		return tester.Outcome{Result: types.Failure, Info: "no interfaces present"}
	}
	return tester.Outcome{Result: types.Success,
		Info: fmt.Sprintf("%d/%d present", available, len(interfaces))}
}

func (f *FormFactor) checkTemperature(ctx context.Context) tester.Outcome {
	temp, ok := f.boardTemperature()
	if !ok {
		return tester.Outcome{Result: types.NotSupported, Info: "no thermal zone"}
	}
	if temp <= 0 || temp >= 100 {
		return tester.Outcome{Result: types.Failure,
			Info: fmt.Sprintf("%.1f C out of range", temp)}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%.1f C", temp)}
}

// enumerateInterfaces reports presence of each physical interface
// class the board exposes.
func (f *FormFactor) enumerateInterfaces() []boardInterface {
	globAny := func(patterns ...string) bool {
		for _, pattern := range patterns {
			if len(f.env.Glob(pattern)) > 0 {
				return true
			}
		}
		return false
	}
	return []boardInterface{
		{Name: "GPIO", Available: f.env.Exists("/sys/class/gpio")},
		{Name: "I2C", Available: f.env.Exists("/sys/class/i2c-dev") || globAny("/dev/i2c-*")},
		{Name: "SPI", Available: globAny("/dev/spidev*")},
		{Name: "UART", Available: globAny("/dev/ttyAMA*", "/dev/ttyS*", "/dev/ttyLP*")},
		{Name: "USB", Available: f.env.Exists("/dev/bus/usb") || globAny("/sys/bus/usb/devices/usb*")},
		{Name: "Ethernet", Available: globAny("/sys/class/net/eth*", "/sys/class/net/en*")},
		{Name: "PCIe", Available: globAny("/sys/bus/pci/devices/*")},
	}
}

func (f *FormFactor) boardTemperature() (float64, bool) {
	return readTemperature(f.env, []string{"/sys/class/thermal/thermal_zone0/temp"})
}

func countAvailable(interfaces []boardInterface) int {
	n := 0
	for _, iface := range interfaces {
		if iface.Available {
			n++
		}
	}
	return n
}

func interfaceSet(interfaces []boardInterface) string {
	var b strings.Builder
	for _, iface := range interfaces {
		if iface.Available {
			b.WriteString(iface.Name)
			b.WriteByte(',')
		}
	}
	return b.String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
