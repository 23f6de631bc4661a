// Package render draws analysis charts as images.
package render

import (
	"errors"
	"io"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"go-ds-analysis-report-ui/internal/analysis"
)

var barColor = drawing.Color{R: 100, G: 44, B: 145, A: 204}

const (
	padSide   = 16
	padTop    = 48
	padBottom = 32
)

// BarPNG renders a file size histogram as a PNG bar chart. Bars are labelled
// with their bin midpoint in KB.
func BarPNG(w io.Writer, c analysis.BarChart, width, height int) error {
	if len(c.Bars) == 0 {
		return errors.New("render: chart has no bars")
	}
	if width <= 0 || height <= 0 {
		return errors.New("render: width and height must be positive")
	}

	maxY := 1
	bars := make([]chart.Value, len(c.Bars))
	for i, b := range c.Bars {
		if b.Y > maxY {
			maxY = b.Y
		}
		bars[i] = chart.Value{
			Label: strconv.FormatFloat(b.X, 'f', -1, 64),
			Value: float64(b.Y),
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor, StrokeWidth: 1},
		}
	}

	barWidth, spacing := barLayout(width, len(bars))
	bc := chart.BarChart{
		Title:      c.Title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: spacing,
		Background: chart.Style{Padding: chart.Box{Top: padTop, Left: padSide, Right: padSide, Bottom: padBottom}},
		YAxis: chart.YAxis{
			Name:  "Number of files",
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxY)},
		},
		Bars: bars,
	}
	return bc.Render(chart.PNG, w)
}

// barLayout splits the plot width evenly between n bars, leaving a tenth of
// each slot as spacing.
func barLayout(width, n int) (int, int) {
	slot := (width - 2*padSide - 60) / n
	if slot < 2 {
		slot = 2
	}
	spacing := slot / 10
	if spacing < 1 {
		spacing = 1
	}
	return slot - spacing, spacing
}
