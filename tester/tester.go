// Package tester defines the contract every peripheral tester
// implements and the shared helpers for running sub-probe sequences
// and monitor polling loops.
package tester

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soccentric/hwverify/types"
)

// PeripheralTester is the only way a peripheral exposes test capability
// to the rest of the system. Availability and the peripheral info
// snapshot are captured once at construction and never refreshed;
// a caller wanting fresh state constructs a new instance.
type PeripheralTester interface {
	// Name returns the display name of the peripheral, constant per
	// concrete type.
	Name() string

	// Available reports the cached construction-time availability
	// flag. Pure query, no side effects.
	Available() bool

	// ShortTest runs a bounded, seconds-scale battery of independent
	// sub-probes. If the peripheral is unavailable it returns a
	// NotSupported report with zero duration without touching the
	// hardware.
	ShortTest(ctx context.Context) types.TestReport

	// MonitorTest samples one or more time-varying signals at a fixed
	// interval until the deadline, then evaluates a stability
	// predicate. Blocks for approximately the requested duration.
	// The unavailable short-circuit is identical to ShortTest.
	MonitorTest(ctx context.Context, duration time.Duration) types.TestReport
}

// NewReport builds a report with the timestamp set to now.
func NewReport(peripheral string, result types.TestResult, details string, duration time.Duration) types.TestReport {
	return types.TestReport{
		Result:     result,
		Peripheral: peripheral,
		Duration:   duration,
		Details:    details,
		Timestamp:  time.Now(),
	}
}

// Unavailable is the mandatory short-circuit report for a peripheral
// that was absent at construction time.
func Unavailable(peripheral, details string) types.TestReport {
	return NewReport(peripheral, types.NotSupported, details, 0)
}

// Outcome is the result of one sub-probe, with optional descriptive
// info appended to its pass/fail label ("(45.2°C)", "(4 workers)").
type Outcome struct {
	Result types.TestResult
	Info   string
}

// Subprobe is one atomic check within a tester.
type Subprobe struct {
	Label string
	Run   func(ctx context.Context) Outcome
}

// RunSequence executes sub-probes in order, appending one labeled line
// per probe to details, and aggregates the overall result: Success only
// if every applicable probe succeeded. A probe reporting NotSupported
// is inapplicable (labeled N/A) and does not fail the sequence.
func RunSequence(ctx context.Context, details *strings.Builder, probes []Subprobe) types.TestResult {
	allPassed := true
	for _, p := range probes {
		outcome := runSubprobe(ctx, p)
		label := "FAIL"
		switch outcome.Result {
		case types.Success:
			label = "PASS"
		case types.NotSupported:
			label = "N/A"
		default:
			allPassed = false
		}
		if outcome.Info != "" {
			fmt.Fprintf(details, "%s: %s (%s)\n", p.Label, label, outcome.Info)
		} else {
			fmt.Fprintf(details, "%s: %s\n", p.Label, label)
		}
	}
	if !allPassed {
		return types.Failure
	}
	return types.Success
}

// runSubprobe converts a panicking probe into a plain Failure so that
// nothing propagates past the tester boundary.
func runSubprobe(ctx context.Context, p Subprobe) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{
				Result: types.Failure,
				Info:   fmt.Sprintf("probe panic: %v", r),
			}
		}
	}()
	return p.Run(ctx)
}

// Poll invokes sample at the given interval until the wall-clock
// deadline passes, sample returns false, or the context is cancelled.
// The loop sleeps after each sample, so total wall time is bounded by
// duration plus one interval.
func Poll(ctx context.Context, duration, interval time.Duration, sample func(ctx context.Context) bool) {
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if !sample(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
