// Package quality runs post-collection integrity checks over a sample log:
// crossed quotes, non-positive sizes and spreads, backward exchange
// timestamps, update rate and latency spikes.
package quality

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/dbsyz/mm-core/internal/samplelog"
	"github.com/dbsyz/mm-core/internal/stats"
)

// ErrNoRows indicates a log without any rows in the expected schema.
var ErrNoRows = errors.New("no parseable rows with expected schema")

// Options configures the audit.
type Options struct {
	AllRuns                bool
	TopSpikes              int
	MaxTimestampBackwardMs float64 // tolerance before a backward timestamp counts
	MaxBackwardShare       float64 // strict-mode fail threshold on the backward ratio
	MaxBackwardJumpMs      float64 // strict-mode fail threshold on the worst jump magnitude
}

// DefaultOptions returns the audit defaults.
func DefaultOptions() Options {
	return Options{
		TopSpikes:              10,
		MaxTimestampBackwardMs: 1.0,
		MaxBackwardShare:       0.05,
		MaxBackwardJumpMs:      5000.0,
	}
}

// Row is one parsed sample with the fields the audit inspects.
type Row struct {
	CaptureTimeUTC string
	ExchangeTsMs   float64
	Bid            float64
	Ask            float64
	BidQty         float64
	AskQty         float64
	AdjustedAgeMs  float64
	E2EMs          float64
	HasE2E         bool
}

// Spread is the ask-bid gap.
func (r Row) Spread() float64 {
	return r.Ask - r.Bid
}

// Spike is one of the worst latency samples.
type Spike struct {
	CaptureTimeUTC string
	AdjustedAgeMs  float64
}

// Result is a completed audit.
type Result struct {
	RunsDetected int
	AllRuns      bool
	Start        string
	End          string
	Samples      int
	DurationS    float64
	UpdateRate   float64

	SpreadMin float64
	SpreadP50 float64
	SpreadP95 float64
	SpreadMax float64

	AgeP50Ms float64
	AgeP95Ms float64
	AgeP99Ms float64
	AgeMaxMs float64

	CrossedQuotes       int
	NonPositiveSizes    int
	NonPositiveSpread   int
	BackwardTsCount     int
	WorstBackwardJumpMs float64 // most negative observed delta
	BackwardShare       float64

	Spikes []Spike

	BackwardSevere bool
	HardFail       bool
}

// Failed reports whether the audit found hard integrity failures or severe
// backward-timestamp anomalies.
func (r *Result) Failed() bool {
	return r.HardFail || r.BackwardSevere
}

// ParseRows converts raw log rows into audit rows. Rows missing any required
// column are skipped.
func ParseRows(f *samplelog.File) []Row {
	idxTs := f.Index("exchange_ts_ms")
	idxBid := f.Index("bid")
	idxAsk := f.Index("ask")
	idxBidQty := f.Index("bid_qty")
	idxAskQty := f.Index("ask_qty")
	idxAdjusted := f.Index("adjusted_age_ms")
	if idxTs < 0 || idxBid < 0 || idxAsk < 0 || idxBidQty < 0 || idxAskQty < 0 || idxAdjusted < 0 {
		return nil
	}
	idxE2E := f.Index("e2e_since_sub_ms")

	var rows []Row
	for _, raw := range f.Rows {
		if len(raw) == 0 {
			continue
		}
		ts, ok1 := samplelog.ParseFloat(raw, idxTs)
		bid, ok2 := samplelog.ParseFloat(raw, idxBid)
		ask, ok3 := samplelog.ParseFloat(raw, idxAsk)
		bidQty, ok4 := samplelog.ParseFloat(raw, idxBidQty)
		askQty, ok5 := samplelog.ParseFloat(raw, idxAskQty)
		age, ok6 := samplelog.ParseFloat(raw, idxAdjusted)
		if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
			continue
		}
		row := Row{
			CaptureTimeUTC: raw[0],
			ExchangeTsMs:   ts,
			Bid:            bid,
			Ask:            ask,
			BidQty:         bidQty,
			AskQty:         askQty,
			AdjustedAgeMs:  age,
		}
		if idxE2E >= 0 {
			row.E2EMs, row.HasE2E = samplelog.ParseFloat(raw, idxE2E)
		}
		rows = append(rows, row)
	}
	return rows
}

// Audit runs the integrity checks over the latest run, or over all rows when
// opts.AllRuns is set.
func Audit(f *samplelog.File, opts Options) (*Result, error) {
	parsed := ParseRows(f)
	if len(parsed) == 0 {
		return nil, ErrNoRows
	}

	runs := samplelog.SplitRuns(parsed, func(r Row) (float64, bool) {
		return r.E2EMs, r.HasE2E
	})
	rows := parsed
	if !opts.AllRuns {
		rows = runs[len(runs)-1]
	}
	n := len(rows)

	spreads := make([]float64, n)
	ages := make([]float64, n)
	for i, r := range rows {
		spreads[i] = r.Spread()
		ages[i] = r.AdjustedAgeMs
	}

	res := &Result{
		RunsDetected: len(runs),
		AllRuns:      opts.AllRuns,
		Start:        rows[0].CaptureTimeUTC,
		End:          rows[n-1].CaptureTimeUTC,
		Samples:      n,
		SpreadMin:    minOf(spreads),
		SpreadP50:    stats.Percentile(spreads, 0.50),
		SpreadP95:    stats.Percentile(spreads, 0.95),
		SpreadMax:    maxOf(spreads),
		AgeP50Ms:     stats.Percentile(ages, 0.50),
		AgeP95Ms:     stats.Percentile(ages, 0.95),
		AgeP99Ms:     stats.Percentile(ages, 0.99),
		AgeMaxMs:     maxOf(ages),
	}

	for _, r := range rows {
		if r.Bid > r.Ask {
			res.CrossedQuotes++
		}
		if r.BidQty <= 0 || r.AskQty <= 0 {
			res.NonPositiveSizes++
		}
		if r.Spread() <= 0 {
			res.NonPositiveSpread++
		}
	}

	prevTs := rows[0].ExchangeTsMs
	for _, r := range rows[1:] {
		delta := r.ExchangeTsMs - prevTs
		if delta < -math.Abs(opts.MaxTimestampBackwardMs) {
			res.BackwardTsCount++
			if delta < res.WorstBackwardJumpMs {
				res.WorstBackwardJumpMs = delta
			}
		}
		prevTs = r.ExchangeTsMs
	}
	res.BackwardShare = float64(res.BackwardTsCount) / float64(n)

	durationS := (rows[n-1].ExchangeTsMs - rows[0].ExchangeTsMs) / 1000.0
	if durationS < 1e-9 {
		durationS = 1e-9
	}
	res.DurationS = durationS
	res.UpdateRate = float64(n) / durationS

	if opts.TopSpikes > 0 {
		sorted := append([]Row(nil), rows...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].AdjustedAgeMs > sorted[j].AdjustedAgeMs
		})
		top := opts.TopSpikes
		if top > len(sorted) {
			top = len(sorted)
		}
		for _, r := range sorted[:top] {
			res.Spikes = append(res.Spikes, Spike{CaptureTimeUTC: r.CaptureTimeUTC, AdjustedAgeMs: r.AdjustedAgeMs})
		}
	}

	res.HardFail = res.CrossedQuotes > 0 || res.NonPositiveSizes > 0 || res.NonPositiveSpread > 0
	res.BackwardSevere = res.BackwardShare > opts.MaxBackwardShare ||
		math.Abs(res.WorstBackwardJumpMs) > opts.MaxBackwardJumpMs

	return res, nil
}

// Write renders the audit as key=value lines.
func (r *Result) Write(w io.Writer) {
	mode := "latest_run"
	if r.AllRuns {
		mode = "all_runs"
	}
	fmt.Fprintf(w, "runs_detected=%d mode=%s\n", r.RunsDetected, mode)
	fmt.Fprintf(w, "start=%s\n", r.Start)
	fmt.Fprintf(w, "end=%s\n", r.End)
	fmt.Fprintf(w, "samples=%d\n", r.Samples)
	fmt.Fprintf(w, "duration_s=%.3f\n", r.DurationS)
	fmt.Fprintf(w, "update_rate_per_s=%.3f\n", r.UpdateRate)
	fmt.Fprintf(w, "spread min=%.8f\n", r.SpreadMin)
	fmt.Fprintf(w, "spread p50=%.8f\n", r.SpreadP50)
	fmt.Fprintf(w, "spread p95=%.8f\n", r.SpreadP95)
	fmt.Fprintf(w, "spread max=%.8f\n", r.SpreadMax)
	fmt.Fprintf(w, "age_ms p50=%.3f\n", r.AgeP50Ms)
	fmt.Fprintf(w, "age_ms p95=%.3f\n", r.AgeP95Ms)
	fmt.Fprintf(w, "age_ms p99=%.3f\n", r.AgeP99Ms)
	fmt.Fprintf(w, "age_ms max=%.3f\n", r.AgeMaxMs)
	fmt.Fprintf(w, "integrity crossed_quotes=%d\n", r.CrossedQuotes)
	fmt.Fprintf(w, "integrity non_positive_sizes=%d\n", r.NonPositiveSizes)
	fmt.Fprintf(w, "integrity non_positive_spread=%d\n", r.NonPositiveSpread)
	fmt.Fprintf(w, "integrity backward_exchange_ts_count=%d\n", r.BackwardTsCount)
	fmt.Fprintf(w, "integrity max_backward_exchange_ts_jump_ms=%.3f\n", r.WorstBackwardJumpMs)
	fmt.Fprintf(w, "integrity backward_exchange_ts_share=%.2f%%\n", 100*r.BackwardShare)

	if len(r.Spikes) > 0 {
		fmt.Fprintln(w, "top_latency_spikes:")
		for _, s := range r.Spikes {
			fmt.Fprintf(w, "%s adjusted_age_ms=%.3f\n", s.CaptureTimeUTC, s.AdjustedAgeMs)
		}
	}

	status := "PASS"
	if r.Failed() {
		status = "FAIL"
	}
	fmt.Fprintf(w, "qa_status=%s\n", status)
	if r.BackwardTsCount > 0 && !r.BackwardSevere {
		fmt.Fprintln(w, "warning: backward exchange timestamps observed within configured tolerance; treat as venue timestamp noise unless trend worsens.")
	}
	if r.BackwardSevere {
		fmt.Fprintln(w, "warning: backward exchange timestamp anomalies exceed configured threshold.")
	}
}

func minOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}
