// Command mmcore collects market-data feed latency samples and analyzes the
// resulting logs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errAuditFailed marks a strict audit that found integrity failures; it maps
// to exit code 2 so scripts can tell bad data from operational errors.
var errAuditFailed = errors.New("data quality checks failed")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errAuditFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mmcore",
		Short:         "Market-data feed latency collector and log analysis tools",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newCollectCommand(), newAnalyzeCommand(), newAuditCommand())
	return cmd
}
