// Package types contains the shared result vocabulary used across the
// peripheral verification harness.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TestResult represents the possible outcomes of a peripheral test.
// The zero value is Skipped so that an uninitialized report is never
// mistaken for a pass or a fail.
type TestResult int

const (
	Skipped TestResult = iota
	Success
	Failure
	NotSupported
	Timeout
)

// String returns the wire name of the result.
func (r TestResult) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case NotSupported:
		return "NOT_SUPPORTED"
	case Timeout:
		return "TIMEOUT"
	case Skipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// ParseTestResult maps a wire name back to a TestResult.
func ParseTestResult(s string) (TestResult, error) {
	switch s {
	case "SUCCESS":
		return Success, nil
	case "FAILURE":
		return Failure, nil
	case "NOT_SUPPORTED":
		return NotSupported, nil
	case "TIMEOUT":
		return Timeout, nil
	case "SKIPPED":
		return Skipped, nil
	default:
		return Skipped, fmt.Errorf("unknown test result %q", s)
	}
}

func (r TestResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *TestResult) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTestResult(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// TimestampLayout is the local-time format used for report timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// TestReport is the structured outcome of one short or monitor test
// invocation. A fresh report is produced for every call and owned by
// the caller; it is never reused or mutated after return.
type TestReport struct {
	Result     TestResult
	Peripheral string
	Duration   time.Duration
	Details    string
	Timestamp  time.Time
}

type reportJSON struct {
	Peripheral string     `json:"peripheral"`
	Result     TestResult `json:"result"`
	DurationMS int64      `json:"duration_ms"`
	Timestamp  string     `json:"timestamp"`
	Details    string     `json:"details"`
}

func (r TestReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Peripheral: r.Peripheral,
		Result:     r.Result,
		DurationMS: r.Duration.Milliseconds(),
		Timestamp:  r.Timestamp.Format(TimestampLayout),
		Details:    r.Details,
	})
}

func (r *TestReport) UnmarshalJSON(data []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return err
	}
	r.Peripheral = raw.Peripheral
	r.Result = raw.Result
	r.Duration = time.Duration(raw.DurationMS) * time.Millisecond
	r.Timestamp = ts
	r.Details = raw.Details
	return nil
}
