package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "₹0.00"},
		{"999.5", "₹999.50"},
		{"1234", "₹1,234.00"},
		{"123456.789", "₹1,23,456.79"},
		{"12345678.9", "₹1,23,45,678.90"},
		{"-15000", "-₹15,000.00"},
	}
	for _, tt := range tests {
		got := FormatAmount(decimal.RequireFromString(tt.in))
		if got != tt.want {
			t.Errorf("FormatAmount(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRupees(t *testing.T) {
	if got := FormatRupees(12345.678); got != "₹12,345.68" {
		t.Errorf("FormatRupees = %q, want ₹12,345.68", got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercentAndProbability(t *testing.T) {
	if got := FormatPercent(24.6913); got != "24.7%" {
		t.Errorf("FormatPercent = %q", got)
	}
	if got := FormatProbability(0.8125); got != "81.2%" && got != "81.3%" {
		t.Errorf("FormatProbability = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{125, "2m"},
		{3725, "1h 2m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.secs); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50000, "50,000"},
		{0.35, "0.35"},
		{1.0 / 3, "0.3333"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	if got := FormatAge(time.Time{}); got != "-" {
		t.Errorf("FormatAge(zero) = %q, want -", got)
	}
	if got := FormatAge(time.Now().Add(-3 * time.Hour)); !strings.Contains(got, "hours ago") {
		t.Errorf("FormatAge(-3h) = %q", got)
	}
}

func TestRenderTable_Empty(t *testing.T) {
	if got := RenderTable(Table{}); got != "" {
		t.Errorf("RenderTable(empty) = %q, want empty", got)
	}
}

func TestRenderTable_ContainsCells(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Classification",
		Headers: []string{"Model", "Accuracy"},
		Rows:    [][]string{{"XGBoost", "91.20%"}, {"---"}, {"Logistic", "88.00%"}},
	})
	for _, want := range []string{"Classification", "XGBoost", "91.20%", "Logistic"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q", want)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 8 {
		t.Errorf("table has %d lines, want 8", lines)
	}
}

func TestRenderBar_Clamps(t *testing.T) {
	if got := RenderBar("Eligible", 1.7, 10); !strings.Contains(got, "100.0%") {
		t.Errorf("RenderBar over 1 = %q", got)
	}
	if got := RenderBar("Eligible", -1, 10); !strings.Contains(got, "0.0%") {
		t.Errorf("RenderBar under 0 = %q", got)
	}
}

func TestLabelColor(t *testing.T) {
	if LabelColor("Eligible") != ColorGreen {
		t.Error("Eligible should be green")
	}
	if LabelColor("Not Eligible") != ColorRed {
		t.Error("Not Eligible should be red")
	}
	if LabelColor("???") != ColorTextMuted {
		t.Error("unknown labels should be muted")
	}
}

func TestRenderTable_StyledCellsAlign(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Model", "Label"},
		Rows:    [][]string{{"★ xgboost", RenderLabel("High Risk")}, {"logistic", "Eligible"}},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := lipgloss.Width(lines[0])
	for i, l := range lines {
		if w := lipgloss.Width(l); w != want {
			t.Errorf("line %d is %d cells wide, want %d", i, w, want)
		}
	}
}

func TestPadCell(t *testing.T) {
	if got := padCell("ab", 4, false); got != "ab  " {
		t.Errorf("padCell left = %q", got)
	}
	if got := padCell("ab", 4, true); got != "  ab" {
		t.Errorf("padCell right = %q", got)
	}
	if got := padCell("abcdef", 4, true); got != "abcdef" {
		t.Errorf("padCell overflow = %q", got)
	}
}

func TestIsNumeric(t *testing.T) {
	for _, s := range []string{"1,200", "₹12,500.00", "-0.3100", "82.5%", "-", "3m 4s"} {
		if !isNumeric(s) {
			t.Errorf("isNumeric(%q) = false", s)
		}
	}
	for _, s := range []string{"", "xgboost", "Eligible", "n/a", "classification"} {
		if isNumeric(s) {
			t.Errorf("isNumeric(%q) = true", s)
		}
	}
}
