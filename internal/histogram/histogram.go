// Package histogram bins file sizes into evenly sized buckets for the
// analysis bar charts.
package histogram

import (
	"errors"
	"math"
	"sort"
	"strconv"
)

const (
	// DefaultGranularity is the bin width, as a percent of the largest value,
	// used for sample sets above SmallSampleLimit.
	DefaultGranularity = 5.0
	// SmallSampleLimit is the largest sample count that gets roughly one bin
	// per sample instead of a granularity-derived width.
	SmallSampleLimit = 15
	// MinGranularity is the smallest granularity accepted from callers; at
	// 0.1 percent a histogram holds about a thousand bins.
	MinGranularity = 0.1
	// MaxBins caps the number of bins a single histogram may hold.
	MaxBins = 10000
)

var (
	ErrNoSamples          = errors.New("histogram: no samples")
	ErrInvalidSample      = errors.New("histogram: samples must be non-negative finite numbers")
	ErrInvalidGranularity = errors.New("histogram: granularity must be a positive finite percent")
	ErrTooManyBins        = errors.New("histogram: too many bins, raise the granularity")
)

// Point is one bar: X is the bin midpoint in KB, Y the number of samples in it.
type Point struct {
	X float64 `json:"x"`
	Y int     `json:"y"`
}

// Result is an ordered histogram. Points[i] covers
// [BinSize*i, BinSize*(i+1)).
type Result struct {
	Points  []Point `json:"points"`
	BinSize float64 `json:"bin_size"`
}

// Total returns the number of samples counted across all bins.
func (r Result) Total() int {
	total := 0
	for _, p := range r.Points {
		total += p.Y
	}
	return total
}

// Range returns the interval covered by bin i, as shown in chart tooltips.
func (r Result) Range(i int) (float64, float64) {
	if i < 0 || i >= len(r.Points) {
		return 0, 0
	}
	half := r.BinSize / 2
	return r.Points[i].X - half, r.Points[i].X + half
}

// Compute bins byte-sized samples into a histogram over kilobytes.
//
// A single sample is returned as is, unconverted, with a bin size of 1.
// Granularity is only read above SmallSampleLimit samples. A histogram that
// would need more than MaxBins bins fails with ErrTooManyBins. The input
// slice is not modified.
func Compute(samples []float64, granularity float64) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoSamples
	}
	if len(samples) > SmallSampleLimit && (math.IsNaN(granularity) || math.IsInf(granularity, 0) || granularity <= 0) {
		return Result{}, ErrInvalidGranularity
	}
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Result{}, ErrInvalidSample
		}
	}

	if len(samples) == 1 {
		return Result{Points: []Point{{X: samples[0], Y: 1}}, BinSize: 1}, nil
	}

	converted := make([]float64, len(samples))
	for i, v := range samples {
		converted[i] = BytesToKB(v)
	}
	sort.Float64s(converted)

	counts, binSize, err := binAndCount(converted, granularity)
	if err != nil {
		return Result{}, err
	}

	points := make([]Point, len(counts))
	for i, c := range counts {
		points[i] = Point{X: binSize*float64(i) + binSize/2, Y: c}
	}
	return Result{Points: points, BinSize: binSize}, nil
}

// binAndCount expects sorted, non-negative values.
func binAndCount(values []float64, granularity float64) ([]int, float64, error) {
	max := values[len(values)-1]

	var binSize float64
	if len(values) <= SmallSampleLimit {
		binSize = max / float64(len(values))
	} else {
		binSize = math.Round(max * granularity / 100)
	}
	binSize = NiceWidth(binSize)
	// All-zero input, or a largest value under half the sample count, would
	// otherwise leave a zero-width bin.
	if binSize < 1 {
		binSize = 1
	}

	ratio := max / binSize
	if ratio >= MaxBins {
		return nil, 0, ErrTooManyBins
	}
	nBins := int(math.Ceil(ratio))
	if ratio == math.Trunc(ratio) {
		// keep the maximum off the upper edge of the last bin
		nBins++
	}

	counts := make([]int, nBins)
	for _, v := range values {
		counts[int(math.Floor(v/binSize))]++
	}
	return counts, binSize, nil
}

// NiceWidth rounds a candidate bin width to its leading decimal digit,
// so 96 becomes 100 and 430 becomes 400.
func NiceWidth(width float64) float64 {
	roundNumber := math.Pow(10, float64(DigitCount(math.Round(width))-1))
	return math.Round(width/roundNumber) * roundNumber
}

// DigitCount returns the number of decimal digits in the integer part of n.
func DigitCount(n float64) int {
	return len(strconv.FormatFloat(math.Trunc(math.Abs(n)), 'f', 0, 64))
}

// BytesToKB converts bytes to whole kilobytes. The value is rounded to one
// decimal first and then truncated, so 1023 bytes is 1 KB and 2047 bytes
// is 2 KB, while 1535 bytes stays at 1 KB.
func BytesToKB(bytes float64) float64 {
	if bytes == 0 {
		return 0
	}
	return math.Trunc(math.Round(bytes/1024*10) / 10)
}
