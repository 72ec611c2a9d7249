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

// USBDevice describes one device hanging off a USB bus.
type USBDevice struct {
	Path      string
	VendorID  string
	ProductID string
	Product   string
	Speed     string
}

// USB verifies the USB subsystem: controller roots, attached device
// descriptors, and per-port power control.
type USB struct {
	env         probe.Env
	cfg         config.Config
	log         *slog.Logger
	available   bool
	controllers []string
	devices     []USBDevice
}

func NewUSB(env probe.Env, cfg config.Config, log *slog.Logger) *USB {
	u := &USB{env: env, cfg: cfg, log: log}
	u.controllers = u.enumerateControllers()
	u.devices = u.enumerateDevices()
	u.available = len(u.controllers) > 0
	return u
}

func (u *USB) Name() string        { return "USB" }
func (u *USB) Available() bool     { return u.available }
func (u *USB) Devices() []USBDevice { return u.devices }

func (u *USB) ShortTest(ctx context.Context) types.TestReport {
	if !u.available {
		return tester.Unavailable(u.Name(), "USB not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Found %d USB controller(s)\n", len(u.controllers))
	fmt.Fprintf(&details, "Found %d USB device(s)\n", len(u.devices))
	for _, dev := range u.devices {
		fmt.Fprintf(&details, "- %s (%s:%s", dev.Product, dev.VendorID, dev.ProductID)
		if dev.Speed != "" {
			fmt.Fprintf(&details, ", %s Mbps", dev.Speed)
		}
		details.WriteString(")\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "Controllers", Run: u.checkControllers},
		{Label: "Devices", Run: u.checkDevices},
		{Label: "Descriptor Read", Run: u.checkDescriptors},
		{Label: "Port Power", Run: u.checkPower},
	})

	return tester.NewReport(u.Name(), result, details.String(), time.Since(start))
}

// MonitorTest fails when the set of attached device paths changes
// during the window; enumeration flapping points at a power or signal
// integrity problem on the port. The window ends at the first changed
// sample rather than running to the deadline.
func (u *USB) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !u.available {
		return tester.Unavailable(u.Name(), "USB not available")
	}
	start := time.Now()

	initial := u.pathSet(u.devices)
	samples := 0
	stable := true
	tester.Poll(ctx, duration, 2*time.Second, func(ctx context.Context) bool {
		if u.pathSet(u.enumerateDevices()) != initial {
			stable = false
			return false
		}
		samples++
		return true
	})

	details := fmt.Sprintf("USB monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0 && stable:
		result = types.NotSupported
		details += "\nno samples collected"
	case stable:
		result = types.Success
		details += fmt.Sprintf("\n%d device(s) stable over %d samples", len(u.devices), samples)
	default:
		result = types.Failure
		details += "\nUSB device set changed during monitoring"
	}

	return tester.NewReport(u.Name(), result, details, time.Since(start))
}

// enumerateControllers finds root hubs: usb1, usb2, ...
func (u *USB) enumerateControllers() []string {
	var controllers []string
	for _, path := range u.env.Glob("/sys/bus/usb/devices/usb*") {
		controllers = append(controllers, filepath.Base(path))
	}
	return controllers
}

// enumerateDevices finds attached devices, skipping root hubs and
// interface entries (those contain a colon).
func (u *USB) enumerateDevices() []USBDevice {
	var devices []USBDevice
	for _, path := range u.env.Glob("/sys/bus/usb/devices/*") {
		base := filepath.Base(path)
		if strings.HasPrefix(base, "usb") || strings.Contains(base, ":") {
			continue
		}
		vendor, err := u.env.ReadFile(path + "/idVendor")
		if err != nil {
			continue
		}
		dev := USBDevice{Path: base, VendorID: vendor}
		dev.ProductID, _ = u.env.ReadFile(path + "/idProduct")
		dev.Product, _ = u.env.ReadFile(path + "/product")
		dev.Speed, _ = u.env.ReadFile(path + "/speed")
		devices = append(devices, dev)
	}
	return devices
}

func (u *USB) pathSet(devices []USBDevice) string {
	paths := make([]string, 0, len(devices))
	for _, dev := range devices {
		paths = append(paths, dev.Path)
	}
	sort.Strings(paths)
	return strings.Join(paths, ",")
}

func (u *USB) checkControllers(ctx context.Context) tester.Outcome {
	if len(u.controllers) == 0 {
		return tester.Outcome{Result: types.Failure}
	}
	return tester.Outcome{Result: types.Success, Info: strings.Join(u.controllers, ", ")}
}

func (u *USB) checkDevices(ctx context.Context) tester.Outcome {
	// No attached devices on a bare board is expected, not a fault.
	if len(u.devices) == 0 {
		return tester.Outcome{Result: types.NotSupported}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d attached", len(u.devices))}
}

// checkDescriptors re-reads each device's descriptors, exercising a
// control transfer per device.
func (u *USB) checkDescriptors(ctx context.Context) tester.Outcome {
	if len(u.devices) == 0 {
		return tester.Outcome{Result: types.NotSupported}
	}
	for _, dev := range u.devices {
		if _, err := u.env.ReadFile("/sys/bus/usb/devices/" + dev.Path + "/idVendor"); err != nil {
			return tester.Outcome{Result: types.Failure, Info: dev.Path}
		}
	}
	return tester.Outcome{Result: types.Success}
}

func (u *USB) checkPower(ctx context.Context) tester.Outcome {
	for _, controller := range u.controllers {
		if _, err := u.env.ReadFile("/sys/bus/usb/devices/" + controller + "/power/control"); err == nil {
			return tester.Outcome{Result: types.Success}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}
