package session

import (
	"time"

	"github.com/dbsyz/mm-core/internal/feed"
	"github.com/dbsyz/mm-core/internal/samplelog"
)

// recordSample converts one ticker update into a latency sample, appends it to
// the log and folds it into the statistics window. subscribeSendMs anchors the
// since-subscribe age that downstream consumers use to detect epoch
// boundaries.
func (e *Engine) recordSample(tick feed.Ticker, recvMs, subscribeSendMs float64) error {
	rawAge := recvMs - tick.TimestampMs
	adjAge := rawAge
	if e.effActive {
		adjAge = rawAge + e.effMs
	}

	rec := samplelog.Record{
		CaptureTimeUTC: captureTime(recvMs),
		RecvTsMs:       recvMs,
		ExchangeTs:     tick.Timestamp,
		ExchangeTsMs:   tick.TimestampMs,
		Symbol:         tick.Symbol,
		Bid:            tick.Bid,
		Ask:            tick.Ask,
		BidQty:         tick.BidQty,
		AskQty:         tick.AskQty,
		RawAgeMs:       rawAge,
		AdjustedAgeMs:  adjAge,
		E2ESinceSubMs:  recvMs - subscribeSendMs,
	}
	if err := e.writer.Append(rec); err != nil {
		return &FatalError{Reason: "append sample", Err: err}
	}
	e.window.Add(adjAge)
	return nil
}

// captureTime renders a wall-clock millisecond timestamp as an RFC 3339 UTC
// string with microsecond precision.
func captureTime(wallMs float64) string {
	return time.UnixMicro(int64(wallMs * 1000)).UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}
