package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-ds-analysis-report-ui/internal/analysis"
	"go-ds-analysis-report-ui/internal/scan"
)

func newScanCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Walk a directory and chart file sizes per mime type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, v)
			if err != nil {
				return err
			}
			runner, err := scan.NewRunner(scan.Options{Excludes: s.Excludes, FollowSymlinks: s.FollowSymlinks})
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}

			job, err := runner.Run(cmd.Context(), args[0])
			if err != nil {
				return &ExitError{Code: ExitScanError, Err: fmt.Errorf("scan %s: %w", args[0], err)}
			}
			report, err := analysis.Build(job.Stats, s.Granularity)
			if err != nil {
				return &ExitError{Code: ExitScanError, Err: err}
			}

			out := scanOutput{
				Source:     job.Source,
				Files:      job.Files,
				TotalBytes: job.TotalBytes,
				Skipped:    job.Skipped,
				Report:     report,
			}
			return writeOutput(cmd.OutOrStdout(), s.Format, out, func(w io.Writer) error {
				return writeScanText(w, out)
			})
		},
	}
}
