// Package stats maintains the in-memory latency statistics for live health
// reporting: a fixed-capacity rolling window of recent adjusted ages with
// exact interpolated percentiles, plus a lifetime histogram that feeds the
// final report when the collector stops.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/dbsyz/mm-core/internal/clock"
)

// DefaultCapacity is the default rolling window size.
const DefaultCapacity = 50_000

// Window holds the most recent adjusted-age values in insertion order,
// evicting the oldest when full, and lifetime counters that survive
// reconnects. Not safe for concurrent use; the session loop is its only
// caller.
type Window struct {
	values   []float64
	head     int
	count    int
	lifetime int64
	clk      clock.Clock
	started  time.Duration
	hist     *hdrhistogram.Histogram
}

// Summary is a point-in-time view of the window.
type Summary struct {
	WindowCount   int
	LifetimeCount int64
	RatePerSec    float64
	MinMs         float64
	MeanMs        float64
	P50Ms         float64
	P95Ms         float64
	P99Ms         float64
	MaxMs         float64
}

// Lifetime aggregates the whole-process distribution from the histogram.
type Lifetime struct {
	Count int64
	P50Ms float64
	P99Ms float64
	MaxMs float64
}

// NewWindow creates a window of the given capacity. The lifetime message rate
// is measured from this call.
func NewWindow(capacity int, clk clock.Clock) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// Track ages from 1µs to 60s at 3 significant figures.
	return &Window{
		values:  make([]float64, capacity),
		clk:     clk,
		started: clk.Elapsed(),
		hist:    hdrhistogram.New(1, 60_000_000, 3),
	}
}

// Add folds one adjusted age into the window, evicting the oldest value when
// at capacity. O(1).
func (w *Window) Add(adjustedAgeMs float64) {
	w.values[w.head] = adjustedAgeMs
	w.head = (w.head + 1) % len(w.values)
	if w.count < len(w.values) {
		w.count++
	}
	w.lifetime++

	us := int64(adjustedAgeMs * 1000)
	if us < w.hist.LowestTrackableValue() {
		us = w.hist.LowestTrackableValue()
	}
	if us > w.hist.HighestTrackableValue() {
		us = w.hist.HighestTrackableValue()
	}
	_ = w.hist.RecordValue(us)
}

// LifetimeCount returns the number of samples ever added.
func (w *Window) LifetimeCount() int64 {
	return w.lifetime
}

// Summarize computes the current window statistics. An empty window yields an
// all-zero summary except for the rate denominator handling.
func (w *Window) Summarize() Summary {
	elapsed := (w.clk.Elapsed() - w.started).Seconds()
	if elapsed < 1e-6 {
		elapsed = 1e-6
	}
	s := Summary{
		WindowCount:   w.count,
		LifetimeCount: w.lifetime,
		RatePerSec:    float64(w.lifetime) / elapsed,
	}
	if w.count == 0 {
		return s
	}

	ages := w.snapshot()
	sort.Float64s(ages)
	s.MinMs = ages[0]
	s.MaxMs = ages[len(ages)-1]
	s.MeanMs = mean(ages)
	s.P50Ms = percentileSorted(ages, 0.50)
	s.P95Ms = percentileSorted(ages, 0.95)
	s.P99Ms = percentileSorted(ages, 0.99)
	return s
}

// LifetimeStats reports the whole-process distribution. Resolution follows
// the histogram's 3 significant figures, unlike the exact window percentiles.
func (w *Window) LifetimeStats() Lifetime {
	if w.hist.TotalCount() == 0 {
		return Lifetime{}
	}
	return Lifetime{
		Count: w.hist.TotalCount(),
		P50Ms: float64(w.hist.ValueAtQuantile(50)) / 1000,
		P99Ms: float64(w.hist.ValueAtQuantile(99)) / 1000,
		MaxMs: float64(w.hist.Max()) / 1000,
	}
}

func (w *Window) snapshot() []float64 {
	out := make([]float64, w.count)
	if w.count < len(w.values) {
		copy(out, w.values[:w.count])
		return out
	}
	// Full ring: oldest value sits at head.
	n := copy(out, w.values[w.head:])
	copy(out[n:], w.values[:w.head])
	return out
}

// Percentile computes the p-quantile of values using linear interpolation
// between order statistics at rank (n-1)*p. A single value is every
// percentile of itself; an empty slice yields zero.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := float64(len(sorted)-1) * p
	lo := int(math.Floor(idx))
	hi := lo + 1
	if hi > len(sorted)-1 {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
