package render

import (
	"bytes"
	"testing"

	"go-ds-analysis-report-ui/internal/analysis"
	"go-ds-analysis-report-ui/internal/histogram"
)

func TestBarPNG(t *testing.T) {
	bars, err := analysis.BuildBars([]analysis.TypeStats{
		{MimeType: "application/pdf", Sizes: []int64{1024, 4096, 9000, 20000, 51200}},
	}, histogram.DefaultGranularity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := BarPNG(&buf, bars[0], 640, 320); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("output is not a PNG")
	}
}

func TestBarPNG_RejectsEmptyChart(t *testing.T) {
	var buf bytes.Buffer
	if err := BarPNG(&buf, analysis.BarChart{Title: "Empty"}, 640, 320); err == nil {
		t.Fatalf("expected error for chart without bars")
	}
}

func TestBarLayout(t *testing.T) {
	w, s := barLayout(800, 10)
	if w <= 0 || s <= 0 {
		t.Fatalf("expected positive layout, got %d/%d", w, s)
	}
	if (w+s)*10 > 800 {
		t.Fatalf("bars overflow the chart: %d", (w+s)*10)
	}
	if w, s := barLayout(100, 500); w != 1 || s != 1 {
		t.Fatalf("expected minimum layout, got %d/%d", w, s)
	}
}
