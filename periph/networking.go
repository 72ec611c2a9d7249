package periph

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/tester"
	"github.com/soccentric/hwverify/types"
)

// connectivityTargets are well-known anycast resolvers used for the
// reachability check. At least two of the three must answer.
var connectivityTargets = []string{"8.8.8.8", "1.1.1.1", "208.67.222.222"}

// dnsDomains are resolved during the DNS sub-probe. At least two of
// the three must resolve.
var dnsDomains = []string{"google.com", "github.com", "stackoverflow.com"}

// Networking verifies network interfaces, IP connectivity, name
// resolution and latency.
type Networking struct {
	env        probe.Env
	cfg        config.Config
	log        *slog.Logger
	available  bool
	interfaces []net.Interface
}

func NewNetworking(env probe.Env, cfg config.Config, log *slog.Logger) *Networking {
	n := &Networking{env: env, cfg: cfg, log: log}
	n.available = env.Exists("/proc/net/dev")
	if !n.available {
		return n
	}
	ifaces, err := env.Interfaces()
	if err != nil {
		log.Warn("interface enumeration failed", "err", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		n.interfaces = append(n.interfaces, iface)
	}
	return n
}

func (n *Networking) Name() string    { return "Networking" }
func (n *Networking) Available() bool { return n.available }

func (n *Networking) ShortTest(ctx context.Context) types.TestReport {
	if !n.available {
		return tester.Unavailable(n.Name(), "Networking not available")
	}
	start := time.Now()

	var details strings.Builder
	fmt.Fprintf(&details, "Default Gateway: %s\n", n.defaultGateway())
	fmt.Fprintf(&details, "Available Interfaces: %d\n", len(n.interfaces))
	for _, iface := range n.interfaces {
		state := "down"
		if iface.Flags&net.FlagUp != 0 {
			state = "up"
		}
		fmt.Fprintf(&details, "- %s: %s", iface.Name, state)
		if len(iface.HardwareAddr) > 0 {
			fmt.Fprintf(&details, " (%s)", iface.HardwareAddr)
		}
		details.WriteString("\n")
	}

	result := tester.RunSequence(ctx, &details, []tester.Subprobe{
		{Label: "Interfaces", Run: n.checkInterfaces},
		{Label: "Connectivity", Run: n.checkConnectivity},
		{Label: "DNS Resolution", Run: n.checkDNS},
		{Label: "Latency", Run: n.checkLatency},
	})

	return tester.NewReport(n.Name(), result, details.String(), time.Since(start))
}

// MonitorTest runs the connectivity check every 10 seconds. Unlike the
// other monitors it bails out once the failure budget is spent:
// sustained loss of connectivity will not recover by waiting out the
// window.
func (n *Networking) MonitorTest(ctx context.Context, duration time.Duration) types.TestReport {
	if !n.available {
		return tester.Unavailable(n.Name(), "Networking not available")
	}
	start := time.Now()

	samples := 0
	failures := 0
	tester.Poll(ctx, duration, 10*time.Second, func(ctx context.Context) bool {
		samples++
		if n.checkConnectivity(ctx).Result == types.Success {
			return true
		}
		failures++
		n.log.Warn("connectivity sample failed", "failures", failures)
		return failures <= n.cfg.Monitor.NetworkMaxFailures
	})

	details := fmt.Sprintf("Network monitoring completed for %d seconds", int(duration.Seconds()))
	var result types.TestResult
	switch {
	case samples == 0:
		result = types.NotSupported
		details += "\nno samples collected"
	case failures > n.cfg.Monitor.NetworkMaxFailures:
		result = types.Failure
		details += fmt.Sprintf("\nconnectivity lost after %d failed checks", failures)
	default:
		result = types.Success
		details += fmt.Sprintf("\n%d/%d connectivity checks passed", samples-failures, samples)
	}

	return tester.NewReport(n.Name(), result, details, time.Since(start))
}

func (n *Networking) checkInterfaces(ctx context.Context) tester.Outcome {
	up := 0
	for _, iface := range n.interfaces {
		if iface.Flags&net.FlagUp != 0 {
			up++
		}
	}
	if up == 0 {
		return tester.Outcome{Result: types.Failure, Info: "no interface up"}
	}
	return tester.Outcome{Result: types.Success, Info: fmt.Sprintf("%d interface(s) up", up)}
}

// checkConnectivity pings the well-known targets; two of three must
// respond so a single unreachable resolver does not fail the board.
func (n *Networking) checkConnectivity(ctx context.Context) tester.Outcome {
	reachable := 0
	for _, target := range connectivityTargets {
		if n.ping(ctx, target) {
			reachable++
		}
	}
	info := fmt.Sprintf("%d/%d targets reachable", reachable, len(connectivityTargets))
	if reachable < 2 {
		return tester.Outcome{Result: types.Failure, Info: info}
	}
	return tester.Outcome{Result: types.Success, Info: info}
}

func (n *Networking) checkDNS(ctx context.Context) tester.Outcome {
	resolved := 0
	for _, domain := range dnsDomains {
		if addrs, err := n.env.LookupHost(ctx, domain); err == nil && len(addrs) > 0 {
			resolved++
		}
	}
	info := fmt.Sprintf("%d/%d domains resolved", resolved, len(dnsDomains))
	if resolved < 2 {
		return tester.Outcome{Result: types.Failure, Info: info}
	}
	return tester.Outcome{Result: types.Success, Info: info}
}

func (n *Networking) checkLatency(ctx context.Context) tester.Outcome {
	if !n.ping(ctx, connectivityTargets[0]) {
		return tester.Outcome{Result: types.Failure, Info: connectivityTargets[0] + " unreachable"}
	}
	return tester.Outcome{Result: types.Success}
}

func (n *Networking) ping(ctx context.Context, target string) bool {
	_, err := n.env.Run(ctx, 5*time.Second, "ping", "-c", "1", "-W", "2", target)
	return err == nil
}

// defaultGateway parses /proc/net/route for the zero-destination
// entry.
func (n *Networking) defaultGateway() string {
	table, err := n.env.ReadFile("/proc/net/route")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(table, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[1] != "00000000" || fields[2] == "00000000" {
			continue
		}
		var gw uint32
		if _, err := fmt.Sscanf(fields[2], "%x", &gw); err != nil {
			continue
		}
		// Little-endian hex, so bytes come out reversed.
		return fmt.Sprintf("%d.%d.%d.%d", gw&0xff, gw>>8&0xff, gw>>16&0xff, gw>>24&0xff)
	}
	return ""
}
