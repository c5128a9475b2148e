package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
	"github.com/theirongolddev/emiscope/internal/tui/components"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

// comparisonColumns are the metrics shown per task, in order.
var comparisonColumns = map[model.RunType][]string{
	model.RunClassification: {"accuracy", "precision", "recall", "f1_score"},
	model.RunRegression:     {"rmse", "mae", "r2"},
}

func (a App) renderExperimentsTab(cw, h int) string {
	if a.data.RunsErr != nil {
		return renderError("Experiments", a.data.RunsErr,
			"Set mlruns_dir in Settings to the experiment tracking directory.", cw)
	}
	if a.data.Experiment == nil {
		return renderError("Experiments",
			fmt.Errorf("no experiment found under %s", a.cfg.Experiments.MLrunsDir),
			"Train and log models first, then press r.", cw)
	}

	var b strings.Builder
	counts := pipeline.CountByType(a.data.Runs)

	metrics := []components.Metric{
		{Label: "Experiment", Value: a.data.Experiment.Name, Note: "id " + a.data.Experiment.ID},
		{
			Label: "Runs",
			Value: cli.FormatNumber(int64(len(a.data.Runs))),
			Note: fmt.Sprintf("%d classification · %d regression",
				counts[model.RunClassification], counts[model.RunRegression]),
		},
	}
	metrics = append(metrics, finalMetric("Final classifier", a.final.Classifier), finalMetric("Final regressor", a.final.Regressor))
	b.WriteString(components.MetricCardRow(metrics, cw))
	b.WriteString("\n")

	clsTable := renderComparison(a.comparison.Classification, model.RunClassification, a.final.Classifier, cw)
	regTable := renderComparison(a.comparison.Regression, model.RunRegression, a.final.Regressor, cw)
	b.WriteString(components.ContentCard("Classification models", clsTable, cw))
	b.WriteString("\n")
	b.WriteString(components.ContentCard("Regression models", regTable, cw))
	b.WriteString("\n")

	used := lipgloss.Height(b.String())
	listH := h - used - 4
	if listH < 3 {
		listH = 3
	}

	halves := components.LayoutRow(cw, 2)
	if a.isCompactLayout() {
		b.WriteString(components.ContentCard("Runs", a.renderRunList(components.CardInnerWidth(cw), listH), cw))
		return b.String()
	}
	list := components.ContentCard(fmt.Sprintf("Runs [%d/%d]", a.runs.cursor+1, len(a.data.Runs)),
		a.renderRunList(components.CardInnerWidth(halves[0]), listH), halves[0])
	detail := components.ContentCard("Run detail", a.renderRunDetail(components.CardInnerWidth(halves[1])), halves[1])
	b.WriteString(components.CardRow([]string{list, detail}))
	return b.String()
}

func finalMetric(label string, r *model.Run) components.Metric {
	if r == nil {
		return components.Metric{Label: label, Value: "-", Note: "no runs"}
	}
	metric := model.PrimaryMetric(r.Type)
	note := ""
	if v, ok := r.Metric(metric); ok {
		note = metric + " " + pipeline.FormatMetric(metric, v)
	}
	return components.Metric{Label: label, Value: r.Name, Note: note, Color: theme.Active.AccentBright}
}

func renderComparison(entries []model.ModelEntry, rt model.RunType, final *model.Run, cw int) string {
	t := theme.Active
	if len(entries) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).Render("No runs logged.")
	}

	headerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	nameStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	finalStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface)

	cols := comparisonColumns[rt]
	innerW := components.CardInnerWidth(cw)
	const colW = 11
	paramW := 28
	nameW := innerW - len(cols)*(colW+1) - paramW - 1
	if nameW < 16 {
		paramW = 0
		nameW = max(innerW-len(cols)*(colW+1), 12)
	}

	var b strings.Builder
	header := fmt.Sprintf("%-*s", nameW, "Model")
	for _, c := range cols {
		header += fmt.Sprintf(" %*s", colW, c)
	}
	if paramW > 0 {
		header += fmt.Sprintf(" %-*s", paramW, "params")
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", lipgloss.Width(header))))

	for _, e := range entries {
		b.WriteString("\n")
		name := truncStr(e.Name, nameW)
		if final != nil && final.RunID == e.RunID {
			b.WriteString(finalStyle.Render(fmt.Sprintf("%-*s", nameW, truncStr("★ "+e.Name, nameW))))
		} else {
			b.WriteString(nameStyle.Render(fmt.Sprintf("%-*s", nameW, name)))
		}
		for _, c := range cols {
			cell := "-"
			if v, ok := e.Metrics[c]; ok {
				cell = pipeline.FormatMetric(c, v)
			}
			b.WriteString(valueStyle.Render(fmt.Sprintf(" %*s", colW, cell)))
		}
		if paramW > 0 {
			b.WriteString(mutedStyle.Render(" " + truncStr(pipeline.FormatParams(e.Params), paramW)))
		}
	}

	metric := model.PrimaryMetric(rt)
	bars := make([]components.Bar, 0, len(entries))
	for _, e := range entries {
		if v, ok := e.Metrics[metric]; ok {
			bars = append(bars, components.Bar{Label: truncStr(e.Name, 24), Value: pipeline.DisplayMetric(metric, v)})
		}
	}
	if len(bars) > 1 {
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render(metric))
		b.WriteString("\n")
		b.WriteString(components.HBarChart(bars, min(innerW, 80), func(v float64) string {
			if pipeline.IsPercentMetric(metric) {
				return fmt.Sprintf("%.2f%%", v)
			}
			return fmt.Sprintf("%.4f", v)
		}))
	}
	return b.String()
}

func (a App) renderRunList(innerW, h int) string {
	t := theme.Active
	runs := a.data.Runs
	if len(runs) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface).Render("No runs.")
	}

	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceBright).Bold(true)

	typeW, metricW := 14, 14
	nameW := max(innerW-typeW-metricW-2, 10)

	start, end := visibleWindow(a.runs.cursor, len(runs), h)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		r := runs[i]
		metric := model.PrimaryMetric(r.Type)
		cell := "-"
		if v, ok := r.Metric(metric); ok {
			cell = pipeline.FormatMetric(metric, v)
		}
		text := fmt.Sprintf("%-*s %-*s %*s", nameW, truncStr(r.Name, nameW), typeW, string(r.Type), metricW, cell)
		if i == a.runs.cursor {
			lines = append(lines, selStyle.Width(innerW).Render(text))
			continue
		}
		lines = append(lines, rowStyle.Render(fmt.Sprintf("%-*s ", nameW, truncStr(r.Name, nameW)))+
			mutedStyle.Render(fmt.Sprintf("%-*s %*s", typeW, string(r.Type), metricW, cell)))
	}
	return strings.Join(lines, "\n")
}

func (a App) renderRunDetail(innerW int) string {
	t := theme.Active
	if len(a.data.Runs) == 0 {
		return ""
	}
	r := a.data.Runs[a.runs.cursor]

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	headStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)

	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-12s", label)) + valueStyle.Render(truncStr(value, innerW-12))
	}

	lines := []string{
		row("Run", r.RunID),
		row("Name", r.Name),
		row("Type", string(r.Type)),
		row("Status", r.Status),
		row("Started", cli.FormatAge(r.StartTime)),
		row("Duration", cli.FormatDuration(r.DurationSecs())),
		"",
		headStyle.Render("Metrics"),
	}
	for _, name := range pipeline.MetricNames([]model.Run{r}) {
		lines = append(lines, row(name, pipeline.FormatMetric(name, r.Metrics[name])))
	}
	if len(r.Params) > 0 {
		lines = append(lines, "", headStyle.Render("Params"))
		for _, k := range sortedKeys(r.Params) {
			lines = append(lines, row(k, r.Params[k]))
		}
	}
	return strings.Join(lines, "\n")
}
