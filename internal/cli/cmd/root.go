package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-ds-analysis-report-ui/internal/cli"
	"go-ds-analysis-report-ui/internal/histogram"
)

const (
	ExitOK         = 0
	ExitCLIError   = 1
	ExitInputError = 2
	ExitScanError  = 3
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dsanalysis",
		Short:         "File size histograms per mime type",
		Long:          "dsanalysis bins file sizes into readable histograms. Feed it sizes in bytes, or point it at a directory to get one histogram per mime type together with file count and storage shares.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	bindPersistentFlags(root.PersistentFlags())
	v := cli.NewViper(root)

	root.AddCommand(newHistogramCmd(v))
	root.AddCommand(newScanCmd(v))
	return root
}

func bindPersistentFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (default: dsanalysis.yaml in the user config dir or .)")
	fs.Float64P("granularity", "g", histogram.DefaultGranularity, "Bin width as a percent of the largest size, used above 15 samples")
	fs.StringP("format", "f", cli.FormatText, "Output format: text, json, yaml")
	fs.StringSlice("exclude", nil, "Glob patterns (doublestar) to leave out of scans")
	fs.Bool("follow-symlinks", false, "Follow symlinked files during scans")
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func loadSettings(cmd *cobra.Command, v *viper.Viper) (cli.Settings, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	s, err := cli.Load(v, cfgFile)
	if err != nil {
		return cli.Settings{}, &ExitError{Code: ExitCLIError, Err: err}
	}
	return s, nil
}
