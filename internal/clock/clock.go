// Package clock provides the time primitives used by the collector: wall-clock
// time in epoch milliseconds for timestamping samples, and monotonic elapsed
// time for timers. Both sit behind an interface so tests can inject synthetic
// clocks and exercise time-dependent behavior deterministically.
package clock

import (
	"sync"
	"time"
)

// Clock supplies wall and monotonic time.
type Clock interface {
	// WallMs returns the current wall-clock time in milliseconds since the
	// Unix epoch, with sub-millisecond precision.
	WallMs() float64
	// Elapsed returns the monotonic time elapsed since the clock was created.
	// It is immune to system clock adjustments.
	Elapsed() time.Duration
}

type systemClock struct {
	start time.Time
}

// NewSystem returns a Clock backed by the system clock. Elapsed is measured
// from the moment of creation.
func NewSystem() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) WallMs() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}

func (c *systemClock) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Manual is a test clock advanced explicitly. Safe for concurrent use.
type Manual struct {
	mu      sync.Mutex
	wallMs  float64
	elapsed time.Duration
}

// NewManual creates a Manual clock starting at the given wall time.
func NewManual(wallMs float64) *Manual {
	return &Manual{wallMs: wallMs}
}

func (m *Manual) WallMs() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallMs
}

func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}

// Advance moves both the wall clock and the monotonic clock forward.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallMs += float64(d) / float64(time.Millisecond)
	m.elapsed += d
}

// SetWallMs moves only the wall clock, simulating a step adjustment.
func (m *Manual) SetWallMs(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallMs = ms
}
