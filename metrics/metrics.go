package metrics

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricsNamespace = "hwverify"
)

var (
	validResults = []string{"SUCCESS", "FAILURE", "NOT_SUPPORTED", "TIMEOUT", "SKIPPED"}

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of peripheral tests by result",
	}, []string{
		"run_id",
		"peripheral",
		"mode",
		"result",
	})

	testDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of the last test per peripheral",
	}, []string{
		"run_id",
		"peripheral",
		"mode",
	})

	runTestTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests in a run",
	}, []string{
		"run_id",
	})

	runTestPassed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_passed",
		Help:      "Number of passed tests in a run",
	}, []string{
		"run_id",
	})

	runTestFailed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_failed",
		Help:      "Number of failed tests in a run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of a run",
	}, []string{
		"run_id",
	})
)

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordTest records one peripheral test outcome. Mode is "short" or
// "monitor".
func RecordTest(runID, peripheral, mode, result string, duration time.Duration) {
	if !isValidResult(result) {
		return
	}
	testsTotal.WithLabelValues(runID, peripheral, mode, result).Inc()
	testDuration.WithLabelValues(runID, peripheral, mode).Set(duration.Seconds())
}

// RecordRun records the aggregate outcome of a batch.
func RecordRun(runID string, total, passed, failed int, duration time.Duration) {
	runTestTotal.WithLabelValues(runID).Set(float64(total))
	runTestPassed.WithLabelValues(runID).Set(float64(passed))
	runTestFailed.WithLabelValues(runID).Set(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// Serve exposes the registry on addr in the background, for scraping
// during long monitor runs.
func Serve(log *slog.Logger, addr string) {
	go func() {
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			log.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
}

func isValidResult(result string) bool {
	return slices.Contains(validResults, result)
}
