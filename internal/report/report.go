// Package report computes the offline latency report over a sample log:
// run selection, percentiles and regime classification of adjusted ages.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/dbsyz/mm-core/internal/samplelog"
	"github.com/dbsyz/mm-core/internal/stats"
)

// ErrNoSamples indicates a log with no parseable latency rows.
var ErrNoSamples = errors.New("no valid samples")

// Options selects rows and regime thresholds. Nil threshold pointers fall
// back to the sample's own p95/p99.
type Options struct {
	AllRuns       bool
	NormalMaxMs   *float64
	DegradedMaxMs *float64
}

// Row is one parsed sample, reduced to what the report needs.
type Row struct {
	CaptureTimeUTC string
	AgeMs          float64
	E2EMs          float64
	HasE2E         bool
}

// RegimeCounts buckets samples by latency regime.
type RegimeCounts struct {
	Normal   int
	Degraded int
	Unsafe   int
}

// Result is a completed latency report.
type Result struct {
	RunsDetected  int
	AllRuns       bool
	RunStart      string
	RunEnd        string
	Samples       int
	MinMs         float64
	MeanMs        float64
	P50Ms         float64
	P95Ms         float64
	P99Ms         float64
	MaxMs         float64
	NormalMaxMs   float64
	DegradedMaxMs float64
	Counts        RegimeCounts
}

// parseRow extracts the age and e2e values from one raw row, tolerating the
// legacy schema. preferAdjusted marks a file known to contain adjusted rows:
// in such files legacy-only rows are dropped rather than mixed into the
// adjusted distribution.
func parseRow(f *samplelog.File, row []string, preferAdjusted bool) (Row, bool) {
	if len(row) == 0 {
		return Row{}, false
	}
	out := Row{CaptureTimeUTC: row[0]}

	if idx := f.Index("e2e_since_sub_ms"); idx >= 0 {
		out.E2EMs, out.HasE2E = samplelog.ParseFloat(row, idx)
	} else if len(row) >= 11 {
		out.E2EMs, out.HasE2E = samplelog.ParseFloat(row, len(row)-1)
	}

	if idx := f.Index("adjusted_age_ms"); idx >= 0 {
		age, ok := samplelog.ParseFloat(row, idx)
		if !ok {
			return Row{}, false
		}
		out.AgeMs = age
		return out, true
	}

	// Legacy header with new rows appended: adjusted_age_ms sits at index 10.
	if len(row) >= 12 {
		age, ok := samplelog.ParseFloat(row, 10)
		if !ok {
			return Row{}, false
		}
		out.AgeMs = age
		return out, true
	}

	if preferAdjusted {
		return Row{}, false
	}

	if idx := f.Index("data_age_ms"); idx >= 0 {
		age, ok := samplelog.ParseFloat(row, idx)
		if !ok {
			return Row{}, false
		}
		out.AgeMs = age
		return out, true
	}

	return Row{}, false
}

// ParseRows converts raw log rows into report rows, detecting the schema per
// row so files mixing schema versions still analyze.
func ParseRows(f *samplelog.File) []Row {
	preferAdjusted := f.Index("adjusted_age_ms") >= 0
	if !preferAdjusted {
		for _, row := range f.Rows {
			if len(row) >= 12 {
				preferAdjusted = true
				break
			}
		}
	}

	var rows []Row
	for _, raw := range f.Rows {
		if row, ok := parseRow(f, raw, preferAdjusted); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// Analyze builds the latency report over the latest run, or over all rows
// when opts.AllRuns is set.
func Analyze(f *samplelog.File, opts Options) (*Result, error) {
	rows := ParseRows(f)
	if len(rows) == 0 {
		return nil, ErrNoSamples
	}

	runs := samplelog.SplitRuns(rows, func(r Row) (float64, bool) {
		return r.E2EMs, r.HasE2E
	})
	selected := rows
	if !opts.AllRuns {
		selected = runs[len(runs)-1]
	}

	ages := make([]float64, len(selected))
	sum := 0.0
	minAge, maxAge := selected[0].AgeMs, selected[0].AgeMs
	for i, r := range selected {
		ages[i] = r.AgeMs
		sum += r.AgeMs
		if r.AgeMs < minAge {
			minAge = r.AgeMs
		}
		if r.AgeMs > maxAge {
			maxAge = r.AgeMs
		}
	}

	res := &Result{
		RunsDetected: len(runs),
		AllRuns:      opts.AllRuns,
		RunStart:     selected[0].CaptureTimeUTC,
		RunEnd:       selected[len(selected)-1].CaptureTimeUTC,
		Samples:      len(ages),
		MinMs:        minAge,
		MeanMs:       sum / float64(len(ages)),
		P50Ms:        stats.Percentile(ages, 0.50),
		P95Ms:        stats.Percentile(ages, 0.95),
		P99Ms:        stats.Percentile(ages, 0.99),
		MaxMs:        maxAge,
	}

	res.NormalMaxMs = res.P95Ms
	if opts.NormalMaxMs != nil {
		res.NormalMaxMs = *opts.NormalMaxMs
	}
	res.DegradedMaxMs = res.P99Ms
	if opts.DegradedMaxMs != nil {
		res.DegradedMaxMs = *opts.DegradedMaxMs
	}
	if res.DegradedMaxMs < res.NormalMaxMs {
		return nil, fmt.Errorf("invalid thresholds: degraded-max-ms must be >= normal-max-ms")
	}

	for _, age := range ages {
		switch {
		case age <= res.NormalMaxMs:
			res.Counts.Normal++
		case age <= res.DegradedMaxMs:
			res.Counts.Degraded++
		default:
			res.Counts.Unsafe++
		}
	}
	return res, nil
}

// HighP50 reports whether the median is suspiciously high, suggesting a wrong
// file or run, stale clocks, or degraded network conditions.
func (r *Result) HighP50() bool {
	return r.P50Ms > 250.0
}

// Write renders the report as key=value lines.
func (r *Result) Write(w io.Writer) {
	if r.AllRuns {
		fmt.Fprintf(w, "runs_detected=%d mode=all_runs\n", r.RunsDetected)
	} else {
		fmt.Fprintf(w, "runs_detected=%d mode=latest_run\n", r.RunsDetected)
		fmt.Fprintf(w, "latest_run_start=%s\n", r.RunStart)
		fmt.Fprintf(w, "latest_run_end=%s\n", r.RunEnd)
	}
	fmt.Fprintf(w, "samples=%d\n", r.Samples)
	fmt.Fprintf(w, "age_ms min=%.3f\n", r.MinMs)
	fmt.Fprintf(w, "age_ms p50=%.3f\n", r.P50Ms)
	fmt.Fprintf(w, "age_ms p95=%.3f\n", r.P95Ms)
	fmt.Fprintf(w, "age_ms p99=%.3f\n", r.P99Ms)
	fmt.Fprintf(w, "age_ms max=%.3f\n", r.MaxMs)
	fmt.Fprintf(w, "age_ms mean=%.3f\n", r.MeanMs)
	fmt.Fprintf(w, "regime normal <= %.3f ms\n", r.NormalMaxMs)
	fmt.Fprintf(w, "regime degraded <= %.3f ms\n", r.DegradedMaxMs)
	fmt.Fprintf(w, "regime unsafe > %.3f ms\n", r.DegradedMaxMs)
	fmt.Fprintf(w, "regime_counts normal=%d degraded=%d unsafe=%d\n",
		r.Counts.Normal, r.Counts.Degraded, r.Counts.Unsafe)
	n := float64(r.Samples)
	fmt.Fprintf(w, "regime_share normal=%.2f%% degraded=%.2f%% unsafe=%.2f%%\n",
		100*float64(r.Counts.Normal)/n, 100*float64(r.Counts.Degraded)/n, 100*float64(r.Counts.Unsafe)/n)
	if r.HighP50() {
		fmt.Fprintln(w, "warning: p50 is very high (>250ms). Check for wrong file/run, stale clocks, or degraded network conditions.")
	}
}
