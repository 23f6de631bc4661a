package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"go-ds-analysis-report-ui/internal/analysis"
	"go-ds-analysis-report-ui/internal/cli"
	"go-ds-analysis-report-ui/internal/histogram"
	"go-ds-analysis-report-ui/internal/scan"
)

const barWidth = 40

type histogramBin struct {
	X     float64    `json:"x" yaml:"x"`
	Y     int        `json:"y" yaml:"y"`
	Range [2]float64 `json:"range" yaml:"range,flow"`
}

type histogramOutput struct {
	BinSize float64        `json:"bin_size" yaml:"bin_size"`
	Count   int            `json:"count" yaml:"count"`
	Bins    []histogramBin `json:"bins" yaml:"bins"`
}

type scanOutput struct {
	Source     string          `json:"source" yaml:"source"`
	Files      int             `json:"files" yaml:"files"`
	TotalBytes int64           `json:"total_bytes" yaml:"total_bytes"`
	Skipped    scan.Skipped    `json:"skipped" yaml:"skipped"`
	Report     analysis.Report `json:"report" yaml:"report"`
}

func newHistogramOutput(res histogram.Result) histogramOutput {
	bins := make([]histogramBin, len(res.Points))
	for i, p := range res.Points {
		lo, hi := res.Range(i)
		bins[i] = histogramBin{X: p.X, Y: p.Y, Range: [2]float64{lo, hi}}
	}
	return histogramOutput{BinSize: res.BinSize, Count: res.Total(), Bins: bins}
}

func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case cli.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case cli.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

func writeHistogramText(w io.Writer, out histogramOutput) error {
	fmt.Fprintf(w, "%s, bin size %s KB\n\n", analysis.FileCount(int64(out.Count)), fmtFloat(out.BinSize))
	return writeBins(w, out.Bins)
}

func writeBins(w io.Writer, bins []histogramBin) error {
	maxY := 0
	for _, b := range bins {
		if b.Y > maxY {
			maxY = b.Y
		}
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANGE (KB)\tFILES\t")
	for _, b := range bins {
		fmt.Fprintf(tw, "%s-%s\t%d\t%s\n", fmtFloat(b.Range[0]), fmtFloat(b.Range[1]), b.Y, bar(b.Y, maxY))
	}
	return tw.Flush()
}

func writeScanText(w io.Writer, out scanOutput) error {
	fmt.Fprintf(w, "Source:  %s\n", out.Source)
	fmt.Fprintf(w, "Files:   %s (%s)\n", humanize.Comma(int64(out.Files)), humanize.IBytes(uint64(out.TotalBytes)))
	fmt.Fprintf(w, "Skipped: %d unknown type, %d excluded, %d links, %d errors\n",
		out.Skipped.UnknownType, out.Skipped.Excluded, out.Skipped.Links, out.Skipped.Errors)

	for _, p := range out.Report.Pies {
		fmt.Fprintf(w, "\n%s\n", p.Title)
		for _, e := range out.Report.Legends[p.Name] {
			fmt.Fprintf(w, "  * %s %s\n", e.Label, e.Percentage)
		}
	}

	for _, c := range out.Report.Bars {
		fmt.Fprintf(w, "\n%s (bin size %s %s)\n", c.Title, fmtFloat(c.StepSize), c.Unit)
		bins := make([]histogramBin, len(c.Bars))
		for i, b := range c.Bars {
			bins[i] = histogramBin{X: b.X, Y: b.Y, Range: [2]float64{b.X - c.StepSize/2, b.X + c.StepSize/2}}
		}
		if err := writeBins(w, bins); err != nil {
			return err
		}
	}
	return nil
}

// bar scales n against maxN into at most barWidth marks; any non-zero
// count gets at least one.
func bar(n, maxN int) string {
	if n <= 0 || maxN <= 0 {
		return ""
	}
	marks := n * barWidth / maxN
	if marks < 1 {
		marks = 1
	}
	return strings.Repeat("#", marks)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
