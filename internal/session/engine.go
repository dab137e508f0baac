// Package session drives the feed session: connect, subscribe, estimate the
// clock offset from the handshake, stream ticker updates through the sample
// pipeline, and recover from transport faults with capped exponential backoff.
// One engine owns one connection at a time; the statistics window, the sample
// log and the offset state survive across reconnects.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dbsyz/mm-core/internal/clock"
	"github.com/dbsyz/mm-core/internal/feed"
	"github.com/dbsyz/mm-core/internal/offset"
	"github.com/dbsyz/mm-core/internal/samplelog"
	"github.com/dbsyz/mm-core/internal/stats"
	"github.com/dbsyz/mm-core/internal/tracing"
	"github.com/dbsyz/mm-core/internal/ws"
)

// FatalError marks failures that retrying the connection cannot fix: an
// explicit subscription rejection, or a sample log write failure.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Config holds the session parameters.
type Config struct {
	Symbol           string
	FeedURL          string
	SummaryInterval  time.Duration // 0 disables periodic summaries
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxRunDuration   time.Duration // 0 means unbounded
	OffsetRefresh    time.Duration // 0 disables re-sync reconnects
	Guards           offset.Guards
}

// Engine owns the connection lifecycle and the clock-offset state.
type Engine struct {
	cfg    Config
	clk    clock.Clock
	log    *log.Logger
	writer *samplelog.Writer
	window *stats.Window
	tracer trace.Tracer

	// Offset state survives reconnects. acceptedAt is the monotonic instant
	// of the most recent acceptance and is meaningful only while effActive.
	lastGood   offset.LastGood
	effMs      float64
	effActive  bool
	acceptedAt time.Duration

	attempt int
}

// New creates an engine. Zero-value guards fall back to the defaults.
func New(cfg Config, clk clock.Clock, logger *log.Logger, writer *samplelog.Writer, window *stats.Window, tracer trace.Tracer) *Engine {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.Guards == (offset.Guards{}) {
		cfg.Guards = offset.DefaultGuards()
	}
	return &Engine{
		cfg:    cfg,
		clk:    clk,
		log:    logger,
		writer: writer,
		window: window,
		tracer: tracer,
	}
}

type epochOutcome int

const (
	outcomeError epochOutcome = iota
	outcomeResync
	outcomeStop
)

// Run drives connection epochs until the context is cancelled, the run
// duration cap elapses, or a fatal error occurs. Cancellation is a clean stop
// and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	var deadline time.Duration
	hasDeadline := e.cfg.MaxRunDuration > 0
	if hasDeadline {
		deadline = e.clk.Elapsed() + e.cfg.MaxRunDuration
	}

	for {
		if ctx.Err() != nil {
			e.log.Printf("stopped cleanly")
			return nil
		}
		// The cap applies between epochs too, or a dead endpoint would keep
		// the connect/backoff cycle alive past it.
		if hasDeadline && e.clk.Elapsed() >= deadline {
			e.log.Printf("run duration cap reached")
			e.log.Printf("stopped cleanly")
			return nil
		}

		outcome, err := e.runEpoch(ctx, deadline, hasDeadline)
		switch outcome {
		case outcomeStop:
			e.log.Printf("stopped cleanly")
			return nil
		case outcomeResync:
			// Deliberate reconnect to force a fresh handshake, not a failure.
			e.attempt = 0
		case outcomeError:
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return err
			}
			e.attempt++
			delay := Backoff(e.attempt)
			e.log.Printf("reconnect attempt=%d in %s: %v", e.attempt, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				e.log.Printf("stopped cleanly")
				return nil
			}
		}
	}
}

// runEpoch runs one connection from open to close. The offset state and the
// reconnect attempt counter live on the engine and persist across epochs.
func (e *Engine) runEpoch(ctx context.Context, deadline time.Duration, hasDeadline bool) (outcome epochOutcome, err error) {
	epochID := ulid.Make().String()

	_, span := tracing.StartEpochSpan(ctx, e.tracer, e.cfg.Symbol, epochID)
	samples := 0
	defer func() {
		var spanErr error
		if outcome == outcomeError {
			spanErr = err
		}
		tracing.EndSpan(span, spanErr,
			attribute.Int("mmcore.samples", samples),
			attribute.Bool("mmcore.offset_active", e.effActive),
			attribute.Float64("mmcore.offset_ms", e.effMs),
		)
	}()

	client := ws.NewClient(ws.Config{
		URL:              e.cfg.FeedURL,
		HandshakeTimeout: e.cfg.HandshakeTimeout,
		ReadTimeout:      e.cfg.ReadTimeout,
	})
	if err := client.Connect(ctx); err != nil {
		return outcomeError, err
	}
	defer client.Close()

	// Closing the client is the only way to interrupt a blocked read, so a
	// watcher translates cancellation into a close.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-watcherDone:
		}
	}()

	connOpen := e.clk.Elapsed()
	e.log.Printf("epoch %s: connected to %s", epochID, e.cfg.FeedURL)

	payload, err := feed.SubscribeRequest(e.cfg.Symbol)
	if err != nil {
		return outcomeError, &FatalError{Reason: "build subscribe request", Err: err}
	}
	t0 := e.clk.WallMs()
	if err := client.Send(payload); err != nil {
		return outcomeError, err
	}
	e.log.Printf("epoch %s: subscribed symbol=%s", epochID, feed.NormalizeSymbol(e.cfg.Symbol))

	sawMessage := false
	lastSummary := e.clk.Elapsed()

	for {
		if ctx.Err() != nil {
			return outcomeStop, nil
		}
		if hasDeadline && e.clk.Elapsed() >= deadline {
			e.log.Printf("epoch %s: run duration cap reached", epochID)
			return outcomeStop, nil
		}
		if e.cfg.OffsetRefresh > 0 {
			// Measured from the last accepted offset while one is active;
			// from the connection open otherwise, which bounds how long a
			// session can run unadjusted after a failed estimate.
			base := connOpen
			if e.effActive {
				base = e.acceptedAt
			}
			if age := e.clk.Elapsed() - base; age >= e.cfg.OffsetRefresh {
				e.log.Printf("epoch %s: re-sync after %s, reconnecting", epochID, age.Round(time.Millisecond))
				return outcomeResync, nil
			}
		}
		if e.cfg.SummaryInterval > 0 && e.clk.Elapsed()-lastSummary >= e.cfg.SummaryInterval {
			e.logSummary()
			lastSummary = e.clk.Elapsed()
		}

		data, err := client.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return outcomeStop, nil
			}
			return outcomeError, err
		}
		recvMs := e.clk.WallMs()

		switch feed.Classify(data) {
		case feed.KindSubscribeAck:
			ack := feed.ParseAck(data)
			if !ack.Success {
				return outcomeError, &FatalError{Reason: fmt.Sprintf("subscription rejected for symbol %s", feed.NormalizeSymbol(e.cfg.Symbol))}
			}
			if !sawMessage {
				sawMessage = true
				e.attempt = 0
			}
			if !ack.HasTimes {
				e.log.Printf("epoch %s: subscribe ack without venue timestamps, offset not updated", epochID)
				continue
			}
			e.applyOffset(epochID, t0, ack.TimeInMs, ack.TimeOutMs, recvMs)

		case feed.KindTicker:
			tick, ok := feed.ParseTicker(data)
			if !ok {
				continue
			}
			if !sawMessage {
				sawMessage = true
				e.attempt = 0
			}
			if err := e.recordSample(tick, recvMs, t0); err != nil {
				return outcomeError, err
			}
			samples++

		default:
			// Unrecognized payloads are dropped without error.
		}
	}
}

// applyOffset evaluates one handshake round trip and persists an accepted
// candidate as the new last-good.
func (e *Engine) applyOffset(epochID string, t0, t1, t2, t3 float64) {
	est := offset.Evaluate(t0, t1, t2, t3, e.lastGood, e.cfg.Guards)
	if est.Status == offset.Accepted {
		e.lastGood = offset.LastGood{Ms: est.CandidateMs, Valid: true}
		e.acceptedAt = e.clk.Elapsed()
	}
	e.effMs = est.EffectiveMs
	e.effActive = est.Active

	if est.Active {
		e.log.Printf("epoch %s: clock offset %s candidate=%.3fms effective=%.3fms", epochID, est.Status, est.CandidateMs, est.EffectiveMs)
	} else {
		e.log.Printf("epoch %s: clock offset %s candidate=%.3fms, samples stay unadjusted", epochID, est.Status, est.CandidateMs)
	}
}

func (e *Engine) logSummary() {
	s := e.window.Summarize()
	e.log.Printf("summary n=%d window=%d rate=%.1f/s age_ms min=%.1f p50=%.1f p95=%.1f p99=%.1f mean=%.1f max=%.1f",
		s.LifetimeCount, s.WindowCount, s.RatePerSec, s.MinMs, s.P50Ms, s.P95Ms, s.P99Ms, s.MeanMs, s.MaxMs)
}
