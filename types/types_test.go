package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestResultString(t *testing.T) {
	tests := []struct {
		result TestResult
		want   string
	}{
		{Success, "SUCCESS"},
		{Failure, "FAILURE"},
		{NotSupported, "NOT_SUPPORTED"},
		{Timeout, "TIMEOUT"},
		{Skipped, "SKIPPED"},
		{TestResult(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.result.String())
	}
}

func TestTestResultZeroValue(t *testing.T) {
	var r TestResult
	assert.Equal(t, Skipped, r, "zero value must be the Skipped sentinel")
}

func TestParseTestResult(t *testing.T) {
	for _, r := range []TestResult{Success, Failure, NotSupported, Timeout, Skipped} {
		parsed, err := ParseTestResult(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}

	_, err := ParseTestResult("bogus")
	require.Error(t, err)
}

func TestReportJSON(t *testing.T) {
	t.Run("field names", func(t *testing.T) {
		report := TestReport{
			Result:     Success,
			Peripheral: "CPU",
			Duration:   1234 * time.Millisecond,
			Details:    "Benchmark: PASS\n",
			Timestamp:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local),
		}

		data, err := json.Marshal(report)
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "CPU", decoded["peripheral"])
		assert.Equal(t, "SUCCESS", decoded["result"])
		assert.Equal(t, float64(1234), decoded["duration_ms"])
		assert.Equal(t, "2026-03-14 09:26:53", decoded["timestamp"])
		assert.Equal(t, "Benchmark: PASS\n", decoded["details"])
	})

	t.Run("details survive escaping", func(t *testing.T) {
		// Quotes, backslashes and control characters must round-trip
		// through a standard JSON parser untouched.
		details := "path \"C:\\dev\"\n\ttab\rcarriage\x01control"
		report := TestReport{
			Result:     Failure,
			Peripheral: "Storage",
			Details:    details,
			Timestamp:  time.Now(),
		}

		data, err := json.Marshal(report)
		require.NoError(t, err)
		require.True(t, json.Valid(data))

		var decoded TestReport
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, details, decoded.Details)
		assert.Equal(t, Failure, decoded.Result)
	})
}
