package report_test

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/dbsyz/mm-core/internal/report"
	"github.com/dbsyz/mm-core/internal/samplelog"
)

// fullRow builds a 12-column row with the given capture time, adjusted age
// and e2e value.
func fullRow(capture string, ageMs, e2eMs float64) []string {
	return []string{
		capture, "1000.000", "2024-01-01T00:00:00Z", "995.000", "BTC/EUR",
		"100.0", "100.5", "1.0", "1.0",
		fmt.Sprintf("%.3f", ageMs+1), fmt.Sprintf("%.3f", ageMs), fmt.Sprintf("%.3f", e2eMs),
	}
}

func fullFile(rows ...[]string) *samplelog.File {
	return &samplelog.File{Header: samplelog.Header, Rows: rows}
}

func TestAnalyzeLatestRun(t *testing.T) {
	f := fullFile(
		fullRow("t1", 10, 1000),
		fullRow("t2", 20, 1200),
		fullRow("t3", 30, 200),
		fullRow("t4", 40, 300),
	)

	res, err := report.Analyze(f, report.Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.RunsDetected != 2 {
		t.Errorf("runs = %d, want 2", res.RunsDetected)
	}
	if res.Samples != 2 {
		t.Errorf("samples = %d, want latest run of 2", res.Samples)
	}
	if res.RunStart != "t3" || res.RunEnd != "t4" {
		t.Errorf("run bounds = %s..%s, want t3..t4", res.RunStart, res.RunEnd)
	}
	if res.MinMs != 30 || res.MaxMs != 40 {
		t.Errorf("min/max = %f/%f, want 30/40", res.MinMs, res.MaxMs)
	}
	if math.Abs(res.P50Ms-35) > 1e-9 {
		t.Errorf("p50 = %f, want 35", res.P50Ms)
	}
}

func TestAnalyzeAllRuns(t *testing.T) {
	f := fullFile(
		fullRow("t1", 10, 1000),
		fullRow("t2", 20, 1200),
		fullRow("t3", 30, 200),
		fullRow("t4", 40, 300),
	)

	res, err := report.Analyze(f, report.Options{AllRuns: true})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Samples != 4 {
		t.Errorf("samples = %d, want all 4", res.Samples)
	}
	if math.Abs(res.MeanMs-25) > 1e-9 {
		t.Errorf("mean = %f, want 25", res.MeanMs)
	}
}

func TestAnalyzeRegimeThresholds(t *testing.T) {
	f := fullFile(
		fullRow("t1", 10, 100),
		fullRow("t2", 20, 200),
		fullRow("t3", 300, 300),
		fullRow("t4", 600, 400),
	)

	normal, degraded := 100.0, 500.0
	res, err := report.Analyze(f, report.Options{
		AllRuns:       true,
		NormalMaxMs:   &normal,
		DegradedMaxMs: &degraded,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Counts.Normal != 2 || res.Counts.Degraded != 1 || res.Counts.Unsafe != 1 {
		t.Errorf("regime counts = %+v, want 2/1/1", res.Counts)
	}
}

func TestAnalyzeDefaultThresholdsAreP95P99(t *testing.T) {
	f := fullFile(
		fullRow("t1", 10, 100),
		fullRow("t2", 20, 200),
		fullRow("t3", 30, 300),
	)
	res, err := report.Analyze(f, report.Options{AllRuns: true})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.NormalMaxMs != res.P95Ms {
		t.Errorf("normal threshold = %f, want p95 %f", res.NormalMaxMs, res.P95Ms)
	}
	if res.DegradedMaxMs != res.P99Ms {
		t.Errorf("degraded threshold = %f, want p99 %f", res.DegradedMaxMs, res.P99Ms)
	}
}

func TestAnalyzeRejectsInvertedThresholds(t *testing.T) {
	f := fullFile(fullRow("t1", 10, 100))
	normal, degraded := 500.0, 100.0
	_, err := report.Analyze(f, report.Options{NormalMaxMs: &normal, DegradedMaxMs: &degraded})
	if err == nil {
		t.Error("expected error for degraded < normal")
	}
}

func TestAnalyzeNoSamples(t *testing.T) {
	f := &samplelog.File{Header: samplelog.Header}
	if _, err := report.Analyze(f, report.Options{}); !errors.Is(err, report.ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
}

func TestAnalyzeLegacySchema(t *testing.T) {
	f := &samplelog.File{
		Header: []string{"capture_time_utc", "data_age_ms"},
		Rows: [][]string{
			{"t1", "15.5"},
			{"t2", "25.5"},
		},
	}
	res, err := report.Analyze(f, report.Options{AllRuns: true})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Samples != 2 {
		t.Errorf("samples = %d, want 2", res.Samples)
	}
	if res.MinMs != 15.5 || res.MaxMs != 25.5 {
		t.Errorf("min/max = %f/%f, want 15.5/25.5", res.MinMs, res.MaxMs)
	}
}

func TestAnalyzeMixedSchemaPrefersAdjustedRows(t *testing.T) {
	// Legacy header with new 12-column rows appended: legacy rows drop, the
	// new rows read adjusted_age_ms positionally.
	f := &samplelog.File{
		Header: []string{"capture_time_utc", "data_age_ms"},
		Rows: [][]string{
			{"t1", "15.5"},
			fullRow("t2", 42, 100),
		},
	}
	res, err := report.Analyze(f, report.Options{AllRuns: true})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Samples != 1 {
		t.Fatalf("samples = %d, want only the adjusted row", res.Samples)
	}
	if res.MinMs != 42 {
		t.Errorf("age = %f, want 42", res.MinMs)
	}
}

func TestResultWrite(t *testing.T) {
	f := fullFile(
		fullRow("t1", 10, 100),
		fullRow("t2", 20, 200),
	)
	res, err := report.Analyze(f, report.Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	var buf bytes.Buffer
	res.Write(&buf)
	out := buf.String()
	for _, want := range []string{
		"runs_detected=1 mode=latest_run",
		"samples=2",
		"age_ms p50=15.000",
		"regime_counts",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "warning") {
		t.Errorf("unexpected warning for low latencies:\n%s", out)
	}
}

func TestResultWriteHighP50Warning(t *testing.T) {
	f := fullFile(
		fullRow("t1", 400, 100),
		fullRow("t2", 500, 200),
	)
	res, err := report.Analyze(f, report.Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !res.HighP50() {
		t.Fatal("expected HighP50")
	}
	var buf bytes.Buffer
	res.Write(&buf)
	if !strings.Contains(buf.String(), "warning: p50 is very high") {
		t.Errorf("expected high-p50 warning:\n%s", buf.String())
	}
}
