package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/dataset"
	"github.com/theirongolddev/emiscope/internal/tui/components"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

func (a App) renderDatasetTab(cw int) string {
	if a.data.DatasetErr != nil {
		return renderError("Dataset", a.data.DatasetErr,
			"Set the dataset path in Settings to the training CSV.", cw)
	}
	ds := a.data.Dataset
	if ds == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(components.MetricCardRow([]components.Metric{
		{Label: "Records", Value: cli.FormatNumber(int64(ds.Records)), Note: truncStr(ds.Path, 40)},
		{Label: "Features", Value: cli.FormatNumber(int64(ds.Features))},
		{Label: "Missing values", Value: cli.FormatNumber(int64(ds.MissingValues))},
		{Label: "Duplicate rows", Value: cli.FormatNumber(int64(ds.DuplicateRows))},
	}, cw))
	b.WriteString("\n")

	if len(ds.Eligibility) > 0 {
		halves := components.LayoutRow(cw, 2)
		if a.isCompactLayout() {
			halves = []int{cw, cw}
		}
		dist := components.ContentCard("Eligibility distribution",
			renderDistribution(ds, components.CardInnerWidth(halves[0])), halves[0])
		cross := components.ContentCard("Scenario by eligibility",
			renderCrosstab(ds, components.CardInnerWidth(halves[1])), halves[1])
		if a.isCompactLayout() {
			b.WriteString(dist + "\n" + cross)
		} else {
			b.WriteString(components.CardRow([]string{dist, cross}))
		}
		b.WriteString("\n")
	}

	b.WriteString(components.ContentCard("Numeric columns", renderNumericStats(ds, components.CardInnerWidth(cw)), cw))
	return b.String()
}

func renderDistribution(ds *dataset.Summary, innerW int) string {
	t := theme.Active
	bars := make([]components.Bar, 0, len(ds.Eligibility))
	for _, label := range dataset.SortedKeys(ds.Eligibility) {
		bars = append(bars, components.Bar{
			Label: label,
			Value: float64(ds.Eligibility[label]),
			Color: t.ForLabel(label),
		})
	}
	return components.HBarChart(bars, innerW, func(v float64) string {
		pct := 0.0
		if ds.Records > 0 {
			pct = v / float64(ds.Records) * 100
		}
		return fmt.Sprintf("%s (%s)", cli.FormatNumber(int64(v)), cli.FormatPercent(pct))
	})
}

func renderCrosstab(ds *dataset.Summary, innerW int) string {
	t := theme.Active
	headerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	nameStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface)

	labels := dataset.SortedKeys(ds.Eligibility)
	const colW = 13
	nameW := max(innerW-len(labels)*(colW+1), 12)

	header := fmt.Sprintf("%-*s", nameW, "Scenario")
	for _, l := range labels {
		header += fmt.Sprintf(" %*s", colW, truncStr(l, colW))
	}
	lines := []string{headerStyle.Render(header)}

	scenarios := make([]string, 0, len(ds.Crosstab))
	for s := range ds.Crosstab {
		scenarios = append(scenarios, s)
	}
	sort.Strings(scenarios)
	for _, s := range scenarios {
		line := nameStyle.Render(fmt.Sprintf("%-*s", nameW, truncStr(s, nameW)))
		for _, l := range labels {
			line += valueStyle.Render(fmt.Sprintf(" %*s", colW, cli.FormatNumber(int64(ds.Crosstab[s][l]))))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderNumericStats(ds *dataset.Summary, innerW int) string {
	t := theme.Active
	headerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	nameStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)

	const colW = 11
	cols := []string{"count", "mean", "std", "min", "p50", "max"}
	nameW := max(innerW-len(cols)*(colW+1), 16)

	header := fmt.Sprintf("%-*s", nameW, "Column")
	for _, c := range cols {
		header += fmt.Sprintf(" %*s", colW, c)
	}
	lines := []string{headerStyle.Render(header)}
	for _, c := range ds.Numeric {
		vals := []float64{float64(c.Count), c.Mean, c.Std, c.Min, c.P50, c.Max}
		line := nameStyle.Render(fmt.Sprintf("%-*s", nameW, truncStr(c.Name, nameW)))
		for _, v := range vals {
			line += valueStyle.Render(fmt.Sprintf(" %*s", colW, truncStr(cli.FormatValue(v), colW)))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
