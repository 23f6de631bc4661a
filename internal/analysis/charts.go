// Package analysis turns per-type file size statistics into the payloads
// behind the analysis page: one size histogram per mime type, and two pies
// for file counts and storage use.
package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"unicode"
	"unicode/utf8"

	"go-ds-analysis-report-ui/internal/histogram"
)

// TypeStats holds the sizes, in bytes, of every file of one mime type found
// by an analysis job.
type TypeStats struct {
	MimeType string  `json:"mime_type"`
	Sizes    []int64 `json:"sizes"`
}

func (t TypeStats) Count() int {
	return len(t.Sizes)
}

func (t TypeStats) TotalSize() int64 {
	var total int64
	for _, s := range t.Sizes {
		total += s
	}
	return total
}

// Dataset is one entry of the chart data embedded in the analysis page.
type Dataset struct {
	Type      string  `json:"type"`
	Sizes     []int64 `json:"sizes"`
	NFiles    int     `json:"n_files"`
	TotalSize int64   `json:"total_size"`
}

// Bar is a histogram bar with its tooltip text.
type Bar struct {
	X     float64 `json:"x"`
	Y     int     `json:"y"`
	Range string  `json:"range"`
	Label string  `json:"label"`
}

type BarChart struct {
	Title    string  `json:"title"`
	MimeType string  `json:"mime_type"`
	Unit     string  `json:"unit"`
	StepSize float64 `json:"step_size"`
	Bars     []Bar   `json:"bars"`
}

const (
	PieFiles   = "nfiles"
	PieStorage = "storage"
)

type PieChart struct {
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
}

// Report bundles everything the analysis page draws for one job.
type Report struct {
	ChartData []Dataset                `json:"chart_data"`
	Bars      []BarChart               `json:"bars"`
	Pies      []PieChart               `json:"pies"`
	Legends   map[string][]LegendEntry `json:"legends"`
}

// Build sorts stats by mime type and derives every chart from them.
func Build(stats []TypeStats, granularity float64) (Report, error) {
	stats = sortedStats(stats)
	bars, err := BuildBars(stats, granularity)
	if err != nil {
		return Report{}, err
	}
	pies := BuildPies(stats)
	legends := make(map[string][]LegendEntry, len(pies))
	for _, p := range pies {
		legends[p.Name] = LegendEntries(p)
	}
	return Report{
		ChartData: ChartData(stats),
		Bars:      bars,
		Pies:      pies,
		Legends:   legends,
	}, nil
}

func ChartData(stats []TypeStats) []Dataset {
	stats = sortedStats(stats)
	out := make([]Dataset, 0, len(stats))
	for _, ts := range stats {
		sizes := ts.Sizes
		if sizes == nil {
			sizes = []int64{}
		}
		out = append(out, Dataset{
			Type:      ts.MimeType,
			Sizes:     sizes,
			NFiles:    ts.Count(),
			TotalSize: ts.TotalSize(),
		})
	}
	return out
}

// BuildBars computes one histogram per mime type, in input order. Types
// without any sizes have nothing to plot and are left out.
func BuildBars(stats []TypeStats, granularity float64) ([]BarChart, error) {
	out := make([]BarChart, 0, len(stats))
	for _, ts := range stats {
		if ts.Count() == 0 {
			continue
		}
		samples := make([]float64, len(ts.Sizes))
		for i, s := range ts.Sizes {
			samples[i] = float64(s)
		}
		res, err := histogram.Compute(samples, granularity)
		if err != nil {
			return nil, fmt.Errorf("histogram for %s: %w", ts.MimeType, err)
		}
		out = append(out, newBarChart(ts.MimeType, res))
	}
	return out, nil
}

func newBarChart(mimeType string, res histogram.Result) BarChart {
	bars := make([]Bar, len(res.Points))
	for i, p := range res.Points {
		lo, hi := res.Range(i)
		bars[i] = Bar{
			X:     p.X,
			Y:     p.Y,
			Range: formatFloat(lo) + "-" + formatFloat(hi) + " KB",
			Label: FileCount(int64(p.Y)),
		}
	}
	return BarChart{
		Title:    Capitalize(mimeType),
		MimeType: mimeType,
		Unit:     "KB",
		StepSize: res.BinSize,
		Bars:     bars,
	}
}

// BuildPies returns the file count pie followed by the storage pie.
func BuildPies(stats []TypeStats) []PieChart {
	labels := make([]string, len(stats))
	files := make([]int64, len(stats))
	storage := make([]int64, len(stats))
	for i, ts := range stats {
		labels[i] = ts.MimeType
		files[i] = int64(ts.Count())
		storage[i] = ts.TotalSize()
	}
	return []PieChart{
		{Name: PieFiles, Title: "Number of files", Labels: labels, Data: files},
		{Name: PieStorage, Title: "Storage space", Labels: append([]string(nil), labels...), Data: storage},
	}
}

func sortedStats(stats []TypeStats) []TypeStats {
	out := append([]TypeStats(nil), stats...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MimeType < out[j].MimeType })
	return out
}

// Capitalize upper-cases the first letter only.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
