package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/soccentric/hwverify/types"
)

type batchSummary struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
	Passed int `json:"passed"`
}

type batch struct {
	Tests   []types.TestReport `json:"tests"`
	Summary batchSummary       `json:"summary"`
}

// WriteJSON renders the batch as a JSON document: the report list plus
// the total/failed/passed summary.
func WriteJSON(w io.Writer, result *Result) error {
	doc := batch{
		Tests: result.Reports,
		Summary: batchSummary{
			Total:  result.Stats.Total,
			Failed: result.Stats.Failed,
			Passed: result.Stats.Passed,
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteTable renders the batch as a console table, one row per report
// with a summary footer. The table style follows the overall outcome.
func WriteTable(w io.Writer, result *Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Peripheral Verification (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{"Peripheral", "Result", "Duration", "Details"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Result", Align: text.AlignCenter},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Details", WidthMax: 60},
	})

	for _, report := range result.Reports {
		t.AppendRow(table.Row{
			report.Peripheral,
			resultString(report.Result),
			formatDuration(report.Duration),
			firstLine(report.Details),
		})
	}

	switch {
	case result.Stats.Total == 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	case result.Stats.Failed == 0:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d/%d passed", result.Stats.Passed, result.Stats.Total),
		formatDuration(result.Duration),
		fmt.Sprintf("%d failed", result.Stats.Failed),
	})

	t.Render()
}

func resultString(result types.TestResult) string {
	switch result {
	case types.Success:
		return "✓ " + result.String()
	case types.NotSupported, types.Skipped:
		return "- " + result.String()
	default:
		return "✗ " + result.String()
	}
}

func firstLine(details string) string {
	line, _, _ := strings.Cut(details, "\n")
	return line
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
