// Package offset estimates the server-minus-local clock offset from the four
// timestamps of one subscribe round trip, NTP style, and applies an acceptance
// policy so that a single noisy round trip cannot poison subsequent samples.
package offset

import (
	"fmt"
	"math"
)

// Status classifies the outcome of evaluating one offset candidate.
type Status int

const (
	Accepted Status = iota
	RejectedAbsolute
	RejectedJump
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case RejectedAbsolute:
		return "rejected_absolute"
	case RejectedJump:
		return "rejected_jump"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Guards holds the acceptance thresholds for offset candidates.
type Guards struct {
	// MaxAbsMs rejects candidates whose magnitude exceeds it, catching gross
	// clock or parsing errors.
	MaxAbsMs float64
	// MaxJumpMs rejects candidates that deviate from the last accepted offset
	// by more than it, catching single noisy round trips.
	MaxJumpMs float64
}

// DefaultGuards returns the standard thresholds.
func DefaultGuards() Guards {
	return Guards{MaxAbsMs: 2000, MaxJumpMs: 500}
}

// LastGood carries the most recent accepted offset, if any. The session engine
// owns this value and threads it through every evaluation.
type LastGood struct {
	Ms    float64
	Valid bool
}

// Estimate is the result of evaluating one round trip.
type Estimate struct {
	// CandidateMs is the raw two-way estimate from this round trip.
	CandidateMs float64
	// EffectiveMs is the offset to apply to subsequent samples: the candidate
	// when accepted, otherwise the last-good value when one exists.
	EffectiveMs float64
	// Active reports whether EffectiveMs is usable. When false, samples must
	// stay unadjusted until a future candidate is accepted.
	Active bool
	Status Status
}

// Evaluate computes candidate = ((t1-t0)+(t2-t3))/2 from local send time t0,
// venue receive time t1, venue response-send time t2 and local receive time t3
// (all epoch milliseconds), then applies the absolute-bound guard followed by
// the jump guard. Pure function: persisting an accepted candidate as the new
// last-good is the caller's decision.
func Evaluate(t0, t1, t2, t3 float64, last LastGood, g Guards) Estimate {
	candidate := ((t1 - t0) + (t2 - t3)) / 2

	est := Estimate{CandidateMs: candidate}
	switch {
	case math.Abs(candidate) > g.MaxAbsMs:
		est.Status = RejectedAbsolute
	case last.Valid && math.Abs(candidate-last.Ms) > g.MaxJumpMs:
		est.Status = RejectedJump
	default:
		est.Status = Accepted
		est.EffectiveMs = candidate
		est.Active = true
		return est
	}

	if last.Valid {
		est.EffectiveMs = last.Ms
		est.Active = true
	}
	return est
}
