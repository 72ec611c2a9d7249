// Package config holds the tunable monitor-test policy. The stability
// thresholds were inherited as magic constants from the board-bringup
// scripts; keeping them in one loadable struct makes them visible and
// overridable per deployment.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Monitor contains the stability predicates evaluated at the end of a
// monitor test, one knob per peripheral policy.
type Monitor struct {
	// CPUTempVarianceC is the allowed max-min spread of CPU thermal
	// zone readings, in degrees Celsius.
	CPUTempVarianceC float64 `yaml:"cpu_temp_variance_c"`
	// GPUTempVarianceC is the allowed spread of GPU temperature
	// readings, in degrees Celsius.
	GPUTempVarianceC float64 `yaml:"gpu_temp_variance_c"`
	// MemoryUsageVariancePct is the allowed used-memory variation as a
	// percentage of total RAM.
	MemoryUsageVariancePct float64 `yaml:"memory_usage_variance_pct"`
	// StorageIODeltaSectors is the sector I/O delta over the window
	// past which background disk activity counts as instability.
	StorageIODeltaSectors uint64 `yaml:"storage_io_delta_sectors"`
	// NetworkMaxFailures is the number of failed connectivity checks
	// tolerated before the monitor bails out early.
	NetworkMaxFailures int `yaml:"network_max_failures"`
	// GPIOStabilityRatio is the minimum fraction of consistent pin
	// reads required.
	GPIOStabilityRatio float64 `yaml:"gpio_stability_ratio"`
	// PowerMaxBatteryDrainPct is the battery percentage drop tolerated
	// over the monitoring window.
	PowerMaxBatteryDrainPct int `yaml:"power_max_battery_drain_pct"`
	// BoardTempVarianceC is the allowed swing of the board temperature
	// from its initial reading during form-factor monitoring, in
	// degrees Celsius.
	BoardTempVarianceC float64 `yaml:"board_temp_variance_c"`
}

type Config struct {
	Monitor Monitor `yaml:"monitor"`
}

// Default returns the policy matching the original board-bringup tool.
func Default() Config {
	return Config{
		Monitor: Monitor{
			CPUTempVarianceC:        20.0,
			GPUTempVarianceC:        15.0,
			MemoryUsageVariancePct:  10.0,
			StorageIODeltaSectors:   10000,
			NetworkMaxFailures:      3,
			GPIOStabilityRatio:      0.95,
			PowerMaxBatteryDrainPct: 50,
			BoardTempVarianceC:      20.0,
		},
	}
}

// Load reads a YAML policy file over the defaults, so a partial file
// only overrides the keys it names.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}
	return cfg, nil
}
