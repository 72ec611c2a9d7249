package periph

import (
	"bytes"
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

// MemoryInfo is the construction-time snapshot from /proc/meminfo.
type MemoryInfo struct {
	TotalMB     uint64
	AvailableMB uint64
	ECC         bool
}

// Memory verifies system RAM: a write/read integrity pattern, a
// bandwidth bound, and ECC where the board exposes an EDAC driver.
type Memory struct {
	env       probe.Env
	cfg       config.Config
	log       *slog.Logger
	available bool
	info      MemoryInfo
}

func NewMemory(env probe.Env, cfg config.Config, log *slog.Logger) *Memory {
	m := &Memory{env: env, cfg: cfg, log: log}
	m.available = env.Exists("/proc/meminfo")
	if m.available {
		m.info = m.readInfo()
		if m.info.TotalMB == 0 {
			m.available = false
		}
	}
	return m
}

func (m *Memory) Name() string     { return "Memory" }
func (m *Memory) Available() bool  { return m.available }
func (m *Memory) Info() MemoryInfo { return m.info }

func (m *Memory) ShortTest(ctx context.Context) types.TestReport {
	if !m.available {
		return tester.Unavailable(m.Name(), "Memory information not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Total RAM: %d MB\n", m.info.TotalMB)
	fmt.Fprintf(&details, "Available RAM: %d MB\n", m.info.AvailableMB)
	fmt.Fprintf(&details, "ECC: %v\n", m.info.ECC)

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "RAM Integrity", Run: m.integrity},
		{Label: "Memory Bandwidth", Run: m.bandwidth},
		{Label: "ECC", Run: m.checkECC},
	})

	return tester.NewReport(m.Name(), result, details.String(), time.Since(start))
}

// MonitorTest samples used RAM and fails when usage swings more than
// the configured percentage of total memory, a proxy for a runaway
// process or a leak during soak.
func (m *Memory) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !m.available {
		return tester.Unavailable(m.Name(), "Memory information not available")
	}
	start := time.Now()

	samples := 0
	minUsed, maxUsed := uint64(0), uint64(0)
	tester.Poll(ctx, duration, time.Second, func(ctx context.Context) bool {
		info := m.readInfo()
		if info.TotalMB == 0 {
			return true
		}
		used := info.TotalMB - info.AvailableMB
		if samples == 0 || used < minUsed {
			minUsed = used
		}
		if samples == 0 || used > maxUsed {
			maxUsed = used
		}
		samples++
		return true
	})

	details := fmt.Sprintf("Memory monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno usage samples collected"
	default:
		variationPct := float64(maxUsed-minUsed) / float64(m.info.TotalMB) * 100.0
		if variationPct <= m.cfg.Monitor.MemoryUsageVariancePct {
			result = types.Success
			details += fmt.Sprintf("\nusage variation %.1f%% over %d samples", variationPct, samples)
		} else {
			result = types.Failure
			details += fmt.Sprintf("\nusage variation %.1f%% exceeds %.1f%% limit",
				variationPct, m.cfg.Monitor.MemoryUsageVariancePct)
		}
	}

	return tester.NewReport(m.Name(), result, details, time.Since(start))
}

func (m *Memory) readInfo() MemoryInfo {
	info := MemoryInfo{}
	meminfo, err := m.env.ReadFile("/proc/meminfo")
	if err != nil {
		return info
	}
	for _, line := range strings.Split(meminfo, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			info.TotalMB = kb / 1024
		case "MemAvailable:":
			info.AvailableMB = kb / 1024
		}
	}
	info.ECC = len(m.env.Glob("/sys/devices/system/edac/mc/mc*")) > 0
	return info
}

// integrity writes a walking pattern through a buffer and reads it
// back. Catches gross data-line faults; a real memory qualification
// runs memtester offline.
func (m *Memory) integrity(ctx context.Context) tester.Outcome {
	const size = 4 << 20
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i ^ (i >> 8))
	}
	for i := range buf {
		if buf[i] != byte(i^(i>>8)) {
			return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("mismatch at offset %d", i)}
		}
	}
	inverted := make([]byte, size)
	for i := range inverted {
		inverted[i] = ^buf[i]
	}
	for i := range inverted {
		if inverted[i] != ^buf[i] {
			return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("inverted mismatch at offset %d", i)}
		}
	}
	return tester.Outcome{Result: types.Success}
}

// bandwidth copies a fixed buffer and checks the copy finished inside
// a generous bound. The bound catches a memory controller stuck in a
// degraded training state, not normal variance.
func (m *Memory) bandwidth(ctx context.Context) tester.Outcome {
	const size = 64 << 20
	src := make([]byte, size)
	dst := make([]byte, size)
	for i := range src {
		src[i] = byte(i)
	}

	start := time.Now()
	copy(dst, src)
	elapsed := time.Since(start)

	if !bytes.Equal(src[:4096], dst[:4096]) {
		return tester.Outcome{Result: types.Failure, Info: "copy verification failed"}
	}
	if elapsed > 5*time.Second {
		return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("%.2fs for %d MB", elapsed.Seconds(), size>>20)}
	}
	mbps := float64(size>>20) / elapsed.Seconds()
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%.0f MB/s", mbps)}
}

func (m *Memory) checkECC(ctx context.Context) tester.Outcome {
	if !m.info.ECC {
		return tester.Outcome{Result: types.NotSupported}
	}
	// Uncorrectable error counters must be zero on a healthy board.
	for _, mc := range m.env.Glob("/sys/devices/system/edac/mc/mc*") {
		raw, err := m.env.ReadFile(mc + "/ue_count")
		if err != nil {
			continue
		}
		if count, err := strconv.Atoi(raw); err == nil && count > 0 {
			return tester.Outcome{Result: types.Failure, Info: fmt.Sprintf("%d uncorrectable errors", count)}
		}
	}
	return tester.Outcome{Result: types.Success}
}
