package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsyz/mm-core/internal/clock"
	"github.com/dbsyz/mm-core/internal/config"
	"github.com/dbsyz/mm-core/internal/offset"
	"github.com/dbsyz/mm-core/internal/samplelog"
	"github.com/dbsyz/mm-core/internal/session"
	"github.com/dbsyz/mm-core/internal/stats"
	"github.com/dbsyz/mm-core/internal/tracing"
)

func newCollectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Stream BBO updates and append latency samples to a CSV log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runCollect(cfg)
		},
	}
	config.RegisterCollectFlags(cmd.Flags())
	return cmd
}

func runCollect(cfg config.Config) error {
	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds|log.LUTC)

	// The log must be writable and schema-compatible before any network
	// activity.
	writer, err := samplelog.Open(cfg.OutputPath(time.Now()))
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	clk := clock.NewSystem()
	window := stats.NewWindow(cfg.WindowCapacity, clk)

	logger.Printf("starting collector out=%s symbol=%s url=%s", writer.Path(), cfg.Symbol, cfg.FeedURL)

	eng := session.New(session.Config{
		Symbol:           cfg.Symbol,
		FeedURL:          cfg.FeedURL,
		SummaryInterval:  cfg.SummaryInterval,
		ReadTimeout:      cfg.ReadTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		MaxRunDuration:   cfg.MaxRunDuration,
		OffsetRefresh:    cfg.OffsetRefresh,
		Guards:           offset.Guards{MaxAbsMs: cfg.MaxAbsOffsetMs, MaxJumpMs: cfg.MaxJumpMs},
	}, clk, logger, writer, window, provider.Tracer())

	if err := eng.Run(ctx); err != nil {
		return err
	}

	if lt := window.LifetimeStats(); lt.Count > 0 {
		logger.Printf("lifetime n=%d age_ms p50=%.1f p99=%.1f max=%.1f", lt.Count, lt.P50Ms, lt.P99Ms, lt.MaxMs)
	}
	return nil
}
