// Package config holds the collector configuration: defaults, an optional
// YAML/JSON config file, and flag overrides that win over file values.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbsyz/mm-core/internal/tracing"
)

// KrakenWSv2 is the default feed endpoint.
const KrakenWSv2 = "wss://ws.kraken.com/v2"

type Config struct {
	Symbol           string         `mapstructure:"symbol"`
	Output           string         `mapstructure:"output"`
	FeedURL          string         `mapstructure:"feed_url"`
	SummaryInterval  time.Duration  `mapstructure:"summary_interval"`
	ReadTimeout      time.Duration  `mapstructure:"read_timeout"`
	HandshakeTimeout time.Duration  `mapstructure:"handshake_timeout"`
	MaxRunDuration   time.Duration  `mapstructure:"max_run_duration"`
	OffsetRefresh    time.Duration  `mapstructure:"offset_refresh"`
	MaxAbsOffsetMs   float64        `mapstructure:"max_abs_offset_ms"`
	MaxJumpMs        float64        `mapstructure:"max_jump_ms"`
	WindowCapacity   int            `mapstructure:"window_capacity"`
	Tracing          tracing.Config `mapstructure:"tracing"`
	ConfigFile       string         `mapstructure:"-"`
}

// Default returns the collector defaults.
func Default() Config {
	return Config{
		Symbol:           "BTC/EUR",
		FeedURL:          KrakenWSv2,
		SummaryInterval:  5 * time.Second,
		ReadTimeout:      30 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		OffsetRefresh:    5 * time.Minute,
		MaxAbsOffsetMs:   2000,
		MaxJumpMs:        500,
		WindowCapacity:   50_000,
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Symbol) == "" {
		issues = append(issues, "symbol must not be empty")
	}
	if strings.TrimSpace(c.FeedURL) == "" {
		issues = append(issues, "feed_url must not be empty")
	} else if !strings.HasPrefix(c.FeedURL, "ws://") && !strings.HasPrefix(c.FeedURL, "wss://") {
		issues = append(issues, fmt.Sprintf("feed_url %q must use the ws:// or wss:// scheme", c.FeedURL))
	}
	if c.SummaryInterval < 0 {
		issues = append(issues, "summary_interval must not be negative")
	}
	if c.ReadTimeout <= 0 {
		issues = append(issues, "read_timeout must be positive")
	}
	if c.MaxRunDuration < 0 {
		issues = append(issues, "max_run_duration must not be negative")
	}
	if c.OffsetRefresh < 0 {
		issues = append(issues, "offset_refresh must not be negative")
	}
	if c.MaxAbsOffsetMs <= 0 {
		issues = append(issues, "max_abs_offset_ms must be positive")
	}
	if c.MaxJumpMs <= 0 {
		issues = append(issues, "max_jump_ms must be positive")
	}
	if c.WindowCapacity <= 0 {
		issues = append(issues, "window_capacity must be positive")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// OutputPath returns the configured output path, or a UTC-timestamped default
// under out/.
func (c Config) OutputPath(now time.Time) string {
	if strings.TrimSpace(c.Output) != "" {
		return c.Output
	}
	stamp := now.UTC().Format("20060102_150405")
	return filepath.Join("out", fmt.Sprintf("kraken_bbo_latency_%s.csv", stamp))
}
