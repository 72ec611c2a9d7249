// Package runner drives batch execution of peripheral tests: one
// tester at a time, in registry order, collecting reports and summary
// statistics for rendering and the process exit code.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soccentric/hwverify/metrics"
	"github.com/soccentric/hwverify/registry"
	"github.com/soccentric/hwverify/types"
)

// Mode selects which test a run executes.
type Mode string

const (
	ModeShort   Mode = "short"
	ModeMonitor Mode = "monitor"
)

// Stats summarizes a batch. Failed counts every non-Success report;
// Passed is the remainder.
type Stats struct {
	Total  int
	Passed int
	Failed int
}

// Result is the outcome of one batch run.
type Result struct {
	RunID    string
	Reports  []types.TestReport
	Stats    Stats
	Duration time.Duration
}

// ExitCode maps the batch outcome to the process exit code: zero iff
// no report failed. An empty batch is a pass.
func (r *Result) ExitCode() int {
	if r.Stats.Failed == 0 {
		return 0
	}
	return 1
}

type Runner struct {
	reg *registry.Registry
	log *slog.Logger
}

func New(reg *registry.Registry, log *slog.Logger) *Runner {
	return &Runner{reg: reg, log: log}
}

// RunOne executes a single peripheral test. An unknown key returns an
// error; an unavailable peripheral is skipped with a warning and a nil
// report, so batch output contains only peripherals that actually ran.
func (r *Runner) RunOne(ctx context.Context, key string, mode Mode, duration time.Duration) (*types.TestReport, error) {
	pt, err := r.reg.Create(key)
	if err != nil {
		metrics.RecordError("unknown_peripheral")
		return nil, err
	}
	if !pt.Available() {
		r.log.Warn("peripheral not available, skipping", "peripheral", pt.Name())
		return nil, nil
	}

	r.log.Info("running test", "peripheral", pt.Name(), "mode", string(mode))
	var report types.TestReport
	switch mode {
	case ModeMonitor:
		report = pt.MonitorTest(ctx, duration)
	default:
		report = pt.ShortTest(ctx)
	}
	r.log.Info("test finished",
		"peripheral", report.Peripheral,
		"result", report.Result.String(),
		"duration", report.Duration)
	return &report, nil
}

// Run executes the given keys in order. Unknown keys are logged and
// the batch continues; the rest of the batch is never abandoned over
// one bad name.
func (r *Runner) Run(ctx context.Context, keys []string, mode Mode, duration time.Duration) *Result {
	start := time.Now()
	result := &Result{
		RunID:   uuid.New().String(),
		Reports: []types.TestReport{},
	}

	for _, key := range keys {
		report, err := r.RunOne(ctx, key, mode, duration)
		if err != nil {
			r.log.Error("skipping unknown peripheral", "key", key, "err", err)
			continue
		}
		if report == nil {
			continue
		}
		metrics.RecordTest(result.RunID, report.Peripheral, string(mode), report.Result.String(), report.Duration)
		result.Reports = append(result.Reports, *report)
	}

	result.Stats = Summarize(result.Reports)
	result.Duration = time.Since(start)
	metrics.RecordRun(result.RunID, result.Stats.Total, result.Stats.Passed, result.Stats.Failed, result.Duration)
	return result
}

// RunAll executes every registered peripheral in sorted key order.
func (r *Runner) RunAll(ctx context.Context, mode Mode, duration time.Duration) *Result {
	return r.Run(ctx, r.reg.Keys(), mode, duration)
}

// Summarize computes batch statistics from the produced reports.
func Summarize(reports []types.TestReport) Stats {
	stats := Stats{Total: len(reports)}
	for _, report := range reports {
		if report.Result != types.Success {
			stats.Failed++
		}
	}
	stats.Passed = stats.Total - stats.Failed
	return stats
}
