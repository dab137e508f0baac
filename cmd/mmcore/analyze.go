package main

import (
	"github.com/spf13/cobra"

	"github.com/dbsyz/mm-core/internal/report"
	"github.com/dbsyz/mm-core/internal/samplelog"
)

func newAnalyzeCommand() *cobra.Command {
	var (
		file        string
		allRuns     bool
		normalMax   float64
		degradedMax float64
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report latency percentiles and regime classification over a log",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := samplelog.Read(file)
			if err != nil {
				return err
			}

			opts := report.Options{AllRuns: allRuns}
			if cmd.Flags().Changed("normal-max-ms") {
				opts.NormalMaxMs = &normalMax
			}
			if cmd.Flags().Changed("degraded-max-ms") {
				opts.DegradedMaxMs = &degradedMax
			}

			res, err := report.Analyze(f, opts)
			if err != nil {
				return err
			}
			res.Write(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Latency CSV file path")
	cmd.Flags().BoolVar(&allRuns, "all-runs", false, "Analyze all rows instead of the latest contiguous run")
	cmd.Flags().Float64Var(&normalMax, "normal-max-ms", 0, "Normal regime upper bound in ms (default: p95 from sample)")
	cmd.Flags().Float64Var(&degradedMax, "degraded-max-ms", 0, "Degraded regime upper bound in ms (default: p99 from sample)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
