// Package feed implements the subset of the venue websocket protocol the
// collector consumes: the outbound ticker subscription and a tagged-variant
// decode of inbound payloads into subscribe acknowledgments, ticker updates,
// or unrecognized messages.
package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Kind tags the decoded variant of an inbound payload.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindSubscribeAck
	KindTicker
)

// SubscribeAck is the venue's acknowledgment of a subscription request.
// TimeInMs and TimeOutMs bracket the venue-side processing of the request and
// serve as t1/t2 in the clock-offset exchange.
type SubscribeAck struct {
	Success   bool
	TimeInMs  float64
	TimeOutMs float64
	HasTimes  bool
}

// Ticker is one best-bid/offer update.
type Ticker struct {
	Symbol      string
	Timestamp   string // venue timestamp as received, kept for the log
	TimestampMs float64
	Bid         float64
	Ask         float64
	BidQty      float64
	AskQty      float64
}

type subscribeParams struct {
	Channel      string   `json:"channel"`
	Symbol       []string `json:"symbol"`
	EventTrigger string   `json:"event_trigger"`
	Snapshot     bool     `json:"snapshot"`
}

type subscribeRequest struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

// SubscribeRequest builds the outbound BBO ticker subscription payload.
func SubscribeRequest(symbol string) ([]byte, error) {
	return json.Marshal(subscribeRequest{
		Method: "subscribe",
		Params: subscribeParams{
			Channel:      "ticker",
			Symbol:       []string{NormalizeSymbol(symbol)},
			EventTrigger: "bbo",
			Snapshot:     true,
		},
	})
}

// NormalizeSymbol trims and uppercases a symbol into the venue's format.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Classify tags an inbound payload without fully decoding it. Payloads that
// match neither known variant are reported as unrecognized and the caller
// drops them without error.
func Classify(data []byte) Kind {
	if !gjson.ValidBytes(data) {
		return KindUnrecognized
	}
	if gjson.GetBytes(data, "method").String() == "subscribe" {
		return KindSubscribeAck
	}
	if gjson.GetBytes(data, "channel").String() == "ticker" {
		switch gjson.GetBytes(data, "type").String() {
		case "snapshot", "update":
			return KindTicker
		}
	}
	return KindUnrecognized
}

// ParseAck decodes a subscribe acknowledgment. HasTimes is set only when both
// venue timestamps are present and parseable.
func ParseAck(data []byte) SubscribeAck {
	ack := SubscribeAck{
		Success: gjson.GetBytes(data, "success").Bool(),
	}
	inMs, inOK := ParseVenueTime(gjson.GetBytes(data, "time_in").String())
	outMs, outOK := ParseVenueTime(gjson.GetBytes(data, "time_out").String())
	if inOK && outOK {
		ack.TimeInMs = inMs
		ack.TimeOutMs = outMs
		ack.HasTimes = true
	}
	return ack
}

// ParseTicker decodes the first entry of a ticker data message. It reports
// false when a required field is missing or the venue timestamp does not
// parse; such updates are dropped by the caller.
func ParseTicker(data []byte) (Ticker, bool) {
	rows := gjson.GetBytes(data, "data")
	if !rows.IsArray() {
		return Ticker{}, false
	}
	arr := rows.Array()
	if len(arr) == 0 || !arr[0].IsObject() {
		return Ticker{}, false
	}
	row := arr[0]

	raw := row.Get("timestamp").String()
	tsMs, ok := ParseVenueTime(raw)
	if !ok {
		return Ticker{}, false
	}

	bid := row.Get("bid")
	ask := row.Get("ask")
	bidQty := row.Get("bid_qty")
	askQty := row.Get("ask_qty")
	if !bid.Exists() || !ask.Exists() || !bidQty.Exists() || !askQty.Exists() {
		return Ticker{}, false
	}

	return Ticker{
		Symbol:      strings.ToUpper(row.Get("symbol").String()),
		Timestamp:   raw,
		TimestampMs: tsMs,
		Bid:         bid.Float(),
		Ask:         ask.Float(),
		BidQty:      bidQty.Float(),
		AskQty:      askQty.Float(),
	}, true
}

// ParseVenueTime converts an RFC 3339 venue timestamp to epoch milliseconds.
func ParseVenueTime(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, false
	}
	return float64(ts.UnixNano()) / 1e6, true
}
