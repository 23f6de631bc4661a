package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-ds-analysis-report-ui/internal/histogram"
)

func newHistogramCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "histogram [sizes...]",
		Short: "Bin file sizes given in bytes (arguments or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, v)
			if err != nil {
				return err
			}

			var sizes []float64
			if len(args) > 0 {
				sizes, err = parseSizes(args)
			} else {
				sizes, err = readSizes(cmd.InOrStdin())
			}
			if err != nil {
				return &ExitError{Code: ExitInputError, Err: err}
			}

			res, err := histogram.Compute(sizes, s.Granularity)
			if err != nil {
				return &ExitError{Code: ExitInputError, Err: err}
			}
			out := newHistogramOutput(res)
			return writeOutput(cmd.OutOrStdout(), s.Format, out, func(w io.Writer) error {
				return writeHistogramText(w, out)
			})
		},
	}
}

func parseSizes(tokens []string) ([]float64, error) {
	sizes := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q", tok)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}

// readSizes reads whitespace separated sizes.
func readSizes(r io.Reader) ([]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var tokens []string
	for sc.Scan() {
		tokens = append(tokens, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read sizes: %w", err)
	}
	return parseSizes(tokens)
}
