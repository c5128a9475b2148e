package components

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders a unicode sparkline from values.
func Sparkline(values []float64, color lipgloss.Color) string {
	if len(values) == 0 {
		return ""
	}
	t := theme.Active

	peak := values[0]
	for _, v := range values[1:] {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		peak = 1
	}

	var buf strings.Builder
	buf.Grow(len(values) * 3)
	for _, v := range values {
		idx := int(v / peak * float64(len(sparkBlocks)-1))
		if idx >= len(sparkBlocks) {
			idx = len(sparkBlocks) - 1
		}
		if idx < 0 {
			idx = 0
		}
		buf.WriteRune(sparkBlocks[idx])
	}
	return lipgloss.NewStyle().Foreground(color).Background(t.Surface).Render(buf.String())
}

// Bar is one row of a horizontal bar chart.
type Bar struct {
	Label string
	Value float64
	Color lipgloss.Color // zero means Accent
}

// HBarChart renders bars scaled to the largest value, one per line, with the
// value formatted by format.
func HBarChart(bars []Bar, width int, format func(float64) string) string {
	if len(bars) == 0 {
		return ""
	}
	t := theme.Active
	if format == nil {
		format = FormatAxis
	}

	labelW, valueW := 0, 0
	peak := 0.0
	for _, b := range bars {
		labelW = max(labelW, lipgloss.Width(b.Label))
		valueW = max(valueW, len(format(b.Value)))
		peak = math.Max(peak, b.Value)
	}
	if peak <= 0 {
		peak = 1
	}
	barW := width - labelW - valueW - 2
	if barW < 4 {
		barW = 4
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	spaceStyle := lipgloss.NewStyle().Background(t.Surface)

	lines := make([]string, len(bars))
	for i, b := range bars {
		color := b.Color
		if color == "" {
			color = t.Accent
		}
		n := int(math.Round(math.Max(b.Value, 0) / peak * float64(barW)))
		if n == 0 && b.Value > 0 {
			n = 1
		}
		lines[i] = labelStyle.Render(fmt.Sprintf("%-*s", labelW, b.Label)) +
			spaceStyle.Render(" ") +
			lipgloss.NewStyle().Foreground(color).Background(t.Surface).Render(strings.Repeat("█", n)) +
			spaceStyle.Render(strings.Repeat(" ", barW-n+1)) +
			valueStyle.Render(fmt.Sprintf("%*s", valueW, format(b.Value)))
	}
	return strings.Join(lines, "\n")
}

// ColumnChart renders values as vertical columns over a labeled y-axis.
// Narrow or short areas fall back to a sparkline.
func ColumnChart(values []float64, color lipgloss.Color, width, height int) string {
	if len(values) == 0 {
		return ""
	}
	if width < 15 || height < 3 {
		return Sparkline(values, color)
	}
	t := theme.Active

	peak := 0.0
	for _, v := range values {
		peak = math.Max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}
	step := axisStep(peak)
	ceiling := math.Ceil(peak/step) * step

	yLabelW := max(len(FormatAxis(ceiling))+1, 4)
	chartW := max(width-yLabelW-1, 5)

	n := len(values)
	if n > chartW {
		values = values[n-chartW:]
		n = chartW
	}
	colW := max(1, min(3, chartW/n))

	axisStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	barStyle := lipgloss.NewStyle().Foreground(color).Background(t.Surface)
	blankStyle := lipgloss.NewStyle().Background(t.Surface)
	eighths := []rune{' ', '▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	var b strings.Builder
	for row := height; row >= 1; row-- {
		top := ceiling * float64(row) / float64(height)
		bottom := ceiling * float64(row-1) / float64(height)

		label := ""
		if row == height {
			label = FormatAxis(ceiling)
		} else if row == (height+1)/2 {
			label = FormatAxis(ceiling / 2)
		}
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s│", yLabelW, label)))

		for _, v := range values {
			switch {
			case v >= top:
				b.WriteString(barStyle.Render(strings.Repeat("█", colW)))
			case v > bottom:
				idx := int((v - bottom) / (top - bottom) * 8)
				idx = max(1, min(8, idx))
				b.WriteString(barStyle.Render(strings.Repeat(string(eighths[idx]), colW)))
			default:
				b.WriteString(blankStyle.Render(strings.Repeat(" ", colW)))
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(axisStyle.Render(fmt.Sprintf("%*s└", yLabelW, "0")))
	b.WriteString(axisStyle.Render(strings.Repeat("─", n*colW)))
	return b.String()
}

// axisStep picks a round tick interval targeting about five ticks.
func axisStep(peak float64) float64 {
	if peak <= 0 {
		return 1
	}
	rough := peak / 5
	base := math.Pow(10, math.Floor(math.Log10(rough)))
	switch frac := rough / base; {
	case frac < 1.5:
		return base
	case frac < 3.5:
		return 2 * base
	default:
		return 5 * base
	}
}

// FormatAxis abbreviates v with Indian units: k (thousand), L (lakh) and
// Cr (crore).
func FormatAxis(v float64) string {
	abbrev := func(div float64, unit string) string {
		if v == math.Trunc(v/div)*div {
			return fmt.Sprintf("%.0f%s", v/div, unit)
		}
		return fmt.Sprintf("%.1f%s", v/div, unit)
	}
	switch {
	case v >= 1e7:
		return abbrev(1e7, "Cr")
	case v >= 1e5:
		return abbrev(1e5, "L")
	case v >= 1e3:
		return abbrev(1e3, "k")
	case v >= 1:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
