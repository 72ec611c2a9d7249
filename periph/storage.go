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

// StorageDevice describes one block device found under /sys/block.
type StorageDevice struct {
	Name   string
	Model  string
	SizeGB float64
}

// Storage verifies the block layer: device enumeration plus one probe
// per interface class the board may populate (eMMC, SD, NVMe, PCIe,
// M.2 carriers). Classes the board does not populate are reported N/A,
// not failed.
type Storage struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	devices   []StorageDevice
}

func NewStorage(env probe.Env, cfg config.Config, log *slog.Logger) *Storage {
	s := &Storage{env: env, cfg: cfg, log: log}
	s.devices = s.enumerate()
	s.available = len(s.devices) > 0
	return s
}

func (s *Storage) Name() string             { return "Storage" }
func (s *Storage) Available() bool          { return s.available }
func (s *Storage) Devices() []StorageDevice { return s.devices }

func (s *Storage) ShortTest(ctx context.Context) types.TestReport {
	if !s.available {
		return tester.Unavailable(s.Name(), "Storage not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Found %d storage device(s)\n", len(s.devices))
	for _, dev := range s.devices {
		fmt.Fprintf(&details, "- %s (%.1fGB", dev.Name, dev.SizeGB)
		if dev.Model != "" {
			fmt.Fprintf(&details, ", %s", dev.Model)
		}
		details.WriteString(")\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "eMMC", Run: s.checkEMMC},
		{Label: "SD Card", Run: s.checkSDCard},
		{Label: "NVMe", Run: s.checkNVMe},
		{Label: "PCIe", Run: s.checkPCIe},
		{Label: "Root FS", Run: s.checkRootFS},
	})

	return tester.NewReport(s.Name(), result, details.String(), time.Since(start))
}

// MonitorTest watches /proc/diskstats sector counters; a quiescent
// board should see only modest background I/O across the window.
func (s *Storage) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !s.available {
		return tester.Unavailable(s.Name(), "Storage not available")
	}
	start := time.Now()

	var first, last [2]uint64
	samples := 0
	tester.Poll(ctx, duration, time.Second, func(ctx context.Context) bool {
		reads, writes, ok := s.ioCounters()
		if !ok {
			return true
		}
		if samples == 0 {
			first = [2]uint64{reads, writes}
		}
		last = [2]uint64{reads, writes}
		samples++
		return true
	})

	details := fmt.Sprintf("Storage monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno I/O samples collected"
	default:
		readDelta := last[0] - first[0]
		writeDelta := last[1] - first[1]
		limit := s.cfg.Monitor.StorageIODeltaSectors
		if readDelta < limit && writeDelta < limit {
			result = types.Success
			details += fmt.Sprintf("\nsector deltas read=%d write=%d over %d samples", readDelta, writeDelta, samples)
		} else {
			result = types.Failure
			details += fmt.Sprintf("\nsector deltas read=%d write=%d exceed %d limit", readDelta, writeDelta, limit)
		}
	}

	return tester.NewReport(s.Name(), result, details, time.Since(start))
}

func (s *Storage) enumerate() []StorageDevice {
	var devices []StorageDevice
	for _, path := range s.env.Glob("/sys/block/*") {
		name := filepath.Base(path)
		// Skip RAM disks and loop devices; they are not peripherals.
		if strings.HasPrefix(name, "ram") || strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "zram") {
			continue
		}
		dev := StorageDevice{Name: name}
		if raw, err := s.env.ReadFile(path + "/size"); err == nil {
			if sectors, err := strconv.ParseUint(raw, 10, 64); err == nil {
				dev.SizeGB = float64(sectors) * 512 / 1e9
			}
		}
		if model, err := s.env.ReadFile(path + "/device/model"); err == nil {
			dev.Model = model
		} else if name, err := s.env.ReadFile(path + "/device/name"); err == nil {
			dev.Model = name
		}
		devices = append(devices, dev)
	}
	return devices
}

func (s *Storage) hasDevicePrefix(prefix string) bool {
	for _, dev := range s.devices {
		if strings.HasPrefix(dev.Name, prefix) {
			return true
		}
	}
	return false
}

func (s *Storage) checkEMMC(ctx context.Context) tester.Outcome {
	// eMMC shows up as mmcblk with a boot partition alongside.
	for _, dev := range s.devices {
		if !strings.HasPrefix(dev.Name, "mmcblk") {
			continue
		}
		if s.env.Exists("/sys/block/" + dev.Name + "boot0") ||
			s.env.Exists("/sys/block/"+dev.Name+"/device/type") && s.deviceType(dev.Name) == "MMC" {
			return tester.Outcome{Result: types.Success, Info: dev.Name}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}

func (s *Storage) checkSDCard(ctx context.Context) tester.Outcome {
	for _, dev := range s.devices {
		if strings.HasPrefix(dev.Name, "mmcblk") && s.deviceType(dev.Name) == "SD" {
			return tester.Outcome{Result: types.Success, Info: dev.Name}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}

func (s *Storage) deviceType(name string) string {
	raw, err := s.env.ReadFile("/sys/block/" + name + "/device/type")
	if err != nil {
		return ""
	}
	return raw
}

func (s *Storage) checkNVMe(ctx context.Context) tester.Outcome {
	if !s.hasDevicePrefix("nvme") {
		return tester.Outcome{Result: types.NotSupported}
	}
	for _, dev := range s.devices {
		if strings.HasPrefix(dev.Name, "nvme") {
			return tester.Outcome{Result: types.Success, Info: dev.Name}
		}
	}
	return tester.Outcome{Result: types.NotSupported}
}

func (s *Storage) checkPCIe(ctx context.Context) tester.Outcome {
	devices := s.env.Glob("/sys/bus/pci/devices/*")
	if len(devices) == 0 {
		return tester.Outcome{Result: types.NotSupported}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d devices", len(devices))}
}

// checkRootFS verifies the mounted root filesystem has headroom; a
// full root partition fails provisioning scripts in obscure ways.
func (s *Storage) checkRootFS(ctx context.Context) tester.Outcome {
	free, total, err := s.env.Statfs("/")
	if err != nil || total == 0 {
		return tester.Outcome{Result: types.NotSupported}
	}
	freePct := float64(free) / float64(total) * 100.0
	if freePct < 1.0 {
		return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("%.1f%% free", freePct)}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%.1f%% free", freePct)}
}

func (s *Storage) ioCounters() (reads, writes uint64, ok bool) {
	diskstats, err := s.env.ReadFile("/proc/diskstats")
	if err != nil {
		return 0, 0, false
	}
	for _, line := range strings.Split(diskstats, "\n") {
		fields := strings.Fields(line)
		// major minor name reads ... sectors_read(6) ... writes ... sectors_written(10)
		if len(fields) < 11 {
			continue
		}
		name := fields[2]
		if strings.HasPrefix(name, "ram") || strings.HasPrefix(name, "loop") {
			continue
		}
		if r, err := strconv.ParseUint(fields[5], 10, 64); err == nil {
			reads += r
		}
		if w, err := strconv.ParseUint(fields[9], 10, 64); err == nil {
			writes += w
		}
		ok = true
	}
	return reads, writes, ok
}
