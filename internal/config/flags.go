package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterCollectFlags sets up the collect subcommand flags on the provided
// flag set.
func RegisterCollectFlags(flags *pflag.FlagSet) {
	flags.StringP("symbol", "s", "BTC/EUR", "Symbol in venue ws v2 format")
	flags.StringP("out", "o", "", "Output CSV path (default: out/kraken_bbo_latency_<UTC stamp>.csv)")
	flags.String("url", KrakenWSv2, "Feed websocket endpoint")
	flags.Duration("summary-every", 5*time.Second, "Interval between rolling latency summaries (0 disables)")
	flags.Duration("read-timeout", 30*time.Second, "Websocket read timeout")
	flags.Duration("handshake-timeout", 30*time.Second, "Websocket handshake timeout")
	flags.Duration("max-seconds", 0, "Stop after this run duration (0 means unbounded)")
	flags.Duration("offset-refresh", 5*time.Minute, "Reconnect to re-estimate the clock offset after this interval (0 disables)")
	flags.Float64("max-abs-offset-ms", 2000, "Reject offset candidates with a larger magnitude")
	flags.Float64("max-jump-ms", 500, "Reject offset candidates this far from the last accepted one")
	flags.Int("window-capacity", 50_000, "Rolling statistics window capacity")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	flags.String("otlp-endpoint", "", "OTLP endpoint for tracing (empty disables)")
	flags.String("otlp-protocol", "", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("otlp-sample-rate", 1.0, "Tracing sample rate between 0.0 and 1.0")
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("symbol") {
		val, err := fs.GetString("symbol")
		if err != nil {
			return err
		}
		cfg.Symbol = val
	}
	if fs.Changed("out") {
		val, err := fs.GetString("out")
		if err != nil {
			return err
		}
		cfg.Output = val
	}
	if fs.Changed("url") {
		val, err := fs.GetString("url")
		if err != nil {
			return err
		}
		cfg.FeedURL = val
	}
	if fs.Changed("summary-every") {
		val, err := fs.GetDuration("summary-every")
		if err != nil {
			return err
		}
		cfg.SummaryInterval = val
	}
	if fs.Changed("read-timeout") {
		val, err := fs.GetDuration("read-timeout")
		if err != nil {
			return err
		}
		cfg.ReadTimeout = val
	}
	if fs.Changed("handshake-timeout") {
		val, err := fs.GetDuration("handshake-timeout")
		if err != nil {
			return err
		}
		cfg.HandshakeTimeout = val
	}
	if fs.Changed("max-seconds") {
		val, err := fs.GetDuration("max-seconds")
		if err != nil {
			return err
		}
		cfg.MaxRunDuration = val
	}
	if fs.Changed("offset-refresh") {
		val, err := fs.GetDuration("offset-refresh")
		if err != nil {
			return err
		}
		cfg.OffsetRefresh = val
	}
	if fs.Changed("max-abs-offset-ms") {
		val, err := fs.GetFloat64("max-abs-offset-ms")
		if err != nil {
			return err
		}
		cfg.MaxAbsOffsetMs = val
	}
	if fs.Changed("max-jump-ms") {
		val, err := fs.GetFloat64("max-jump-ms")
		if err != nil {
			return err
		}
		cfg.MaxJumpMs = val
	}
	if fs.Changed("window-capacity") {
		val, err := fs.GetInt("window-capacity")
		if err != nil {
			return err
		}
		cfg.WindowCapacity = val
	}
	if fs.Changed("otlp-endpoint") {
		val, err := fs.GetString("otlp-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = val
	}
	if fs.Changed("otlp-protocol") {
		val, err := fs.GetString("otlp-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = val
	}
	if fs.Changed("otlp-insecure") {
		val, err := fs.GetBool("otlp-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("otlp-sample-rate") {
		val, err := fs.GetFloat64("otlp-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	return nil
}
