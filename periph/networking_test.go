package periph

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/types"
)

func fakeNetworkBoard() *probe.Fake {
	return &probe.Fake{
		Files: map[string]string{
			"/proc/net/dev": "eth0: 0 0",
			"/proc/net/route": "Iface\tDestination\tGateway\tFlags\n" +
				"eth0\t00000000\t0101A8C0\t0003\t0\t0\t0\t00000000\t0\t0\t0\n",
		},
		Commands: map[string]string{
			"ping -c 1 -W 2 8.8.8.8": "1 packets transmitted, 1 received",
			"ping -c 1 -W 2 1.1.1.1": "1 packets transmitted, 1 received",
		},
		Hosts: map[string][]string{
			"google.com": {"142.250.80.46"},
			"github.com": {"140.82.112.3"},
		},
		NICs: []net.Interface{
			{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Name: "eth0", Flags: net.FlagUp},
			{Name: "eth1"},
		},
	}
}

func TestNetworkingShortTest(t *testing.T) {
	networking := NewNetworking(fakeNetworkBoard(), config.Default(), testLogger())
	require.True(t, networking.Available())

	report := networking.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Equal(t, "Networking", report.Peripheral)
	assert.Contains(t, report.Details, "Default Gateway: 192.168.1.1")
	assert.Contains(t, report.Details, "Available Interfaces: 2")
	assert.NotContains(t, report.Details, "- lo:")
	assert.Contains(t, report.Details, "Interfaces: PASS (1 interface(s) up)")
	assert.Contains(t, report.Details, "Connectivity: PASS (2/3 targets reachable)")
	assert.Contains(t, report.Details, "DNS Resolution: PASS (2/3 domains resolved)")
	assert.Contains(t, report.Details, "Latency: PASS")
}

func TestNetworkingConnectivityRequiresTwoTargets(t *testing.T) {
	env := fakeNetworkBoard()
	env.Commands = map[string]string{
		"ping -c 1 -W 2 8.8.8.8": "1 packets transmitted, 1 received",
	}

	networking := NewNetworking(env, config.Default(), testLogger())
	report := networking.ShortTest(context.Background())
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "Connectivity: FAIL (1/3 targets reachable)")
}

func TestNetworkingDNSRequiresTwoDomains(t *testing.T) {
	env := fakeNetworkBoard()
	env.Hosts = map[string][]string{"google.com": {"142.250.80.46"}}

	networking := NewNetworking(env, config.Default(), testLogger())
	report := networking.ShortTest(context.Background())
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "DNS Resolution: FAIL (1/3 domains resolved)")
}

func TestNetworkingUnavailable(t *testing.T) {
	networking := NewNetworking(&probe.Fake{}, config.Default(), testLogger())
	assert.False(t, networking.Available())

	report := networking.ShortTest(context.Background())
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Equal(t, "Networking not available", report.Details)
}

func TestNetworkingMonitorBailsOutOnFailureBudget(t *testing.T) {
	env := fakeNetworkBoard()
	env.Commands = nil

	cfg := config.Default()
	cfg.Monitor.NetworkMaxFailures = 0
	networking := NewNetworking(env, cfg, testLogger())

	report := networking.MonitorTest(context.Background(), time.Minute)
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "connectivity lost")
}

func TestNetworkingMonitorNoSamples(t *testing.T) {
	networking := NewNetworking(fakeNetworkBoard(), config.Default(), testLogger())

	report := networking.MonitorTest(context.Background(), 0)
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Contains(t, report.Details, "no samples collected")
}
