package analysis

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// BytesToSize formats a byte count with a 1024 base and one decimal, the
// way the storage pie labels it. Zero is shown as n/a.
func BytesToSize(bytes int64) string {
	if bytes <= 0 {
		return "n/a"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", bytes, sizeUnits[0])
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/math.Pow(1024, float64(i)), sizeUnits[i])
}

// FormatNumber adds thousands separators.
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

func FileCount(n int64) string {
	if n == 1 {
		return "1 file"
	}
	return FormatNumber(n) + " files"
}

// Percentage is the share of value in total as a rounded whole percent, or
// an empty string when value is zero.
func Percentage(value, total int64) string {
	if value == 0 || total == 0 {
		return ""
	}
	return strconv.FormatInt(int64(math.Round(float64(value)*100/float64(total))), 10) + "%"
}

type LegendEntry struct {
	Label      string `json:"label"`
	Percentage string `json:"percentage"`
}

// LegendEntries lists the non-empty slices of a pie with their share of the
// total to two decimals.
func LegendEntries(p PieChart) []LegendEntry {
	var total int64
	for _, v := range p.Data {
		if v > 0 {
			total += v
		}
	}
	out := make([]LegendEntry, 0, len(p.Data))
	for i, v := range p.Data {
		if v <= 0 || i >= len(p.Labels) {
			continue
		}
		out = append(out, LegendEntry{
			Label:      Capitalize(p.Labels[i]),
			Percentage: fmt.Sprintf("%.2f%%", float64(v)/float64(total)*100),
		})
	}
	return out
}

// SliceLabel is the hover text for slice i of a pie.
func SliceLabel(p PieChart, i int) string {
	if i < 0 || i >= len(p.Data) || i >= len(p.Labels) {
		return ""
	}
	name, v := p.Labels[i], p.Data[i]
	switch p.Name {
	case PieFiles:
		return name + ": " + FileCount(v)
	case PieStorage:
		return name + ": " + BytesToSize(v)
	default:
		return name + ": " + FormatNumber(v)
	}
}
