package main

import (
	"github.com/spf13/cobra"

	"github.com/dbsyz/mm-core/internal/quality"
	"github.com/dbsyz/mm-core/internal/samplelog"
)

func newAuditCommand() *cobra.Command {
	var (
		file   string
		strict bool
	)
	opts := quality.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run post-collection data-quality checks over a log",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := samplelog.Read(file)
			if err != nil {
				return err
			}

			res, err := quality.Audit(f, opts)
			if err != nil {
				return err
			}
			res.Write(cmd.OutOrStdout())

			if strict && res.Failed() {
				return errAuditFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Input CSV path from the collector")
	cmd.Flags().BoolVar(&opts.AllRuns, "all-runs", false, "Audit all runs instead of the latest contiguous run")
	cmd.Flags().IntVar(&opts.TopSpikes, "top-spikes", opts.TopSpikes, "Number of worst latency spikes to print")
	cmd.Flags().Float64Var(&opts.MaxTimestampBackwardMs, "max-timestamp-backward-ms", opts.MaxTimestampBackwardMs, "Tolerance for backward exchange timestamps before counting an anomaly")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when hard integrity checks fail")
	cmd.Flags().Float64Var(&opts.MaxBackwardShare, "max-backward-share", opts.MaxBackwardShare, "Strict-mode fail threshold for the backward timestamp ratio")
	cmd.Flags().Float64Var(&opts.MaxBackwardJumpMs, "max-backward-jump-ms", opts.MaxBackwardJumpMs, "Strict-mode fail threshold for the largest backward jump magnitude in ms")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
