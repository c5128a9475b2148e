package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/tui/components"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

var errNoStore = errors.New("history store unavailable")

// reusePrediction loads the selected history entry's profile into the
// Predict form.
func (a App) reusePrediction() (tea.Model, tea.Cmd) {
	if len(a.data.History) == 0 {
		return a, nil
	}
	rec := a.data.History[a.history.cursor]
	p, err := profile.ParseJSON(a.cfg.Defaults, []byte(rec.Profile))
	if err != nil {
		a.data.HistoryErr = fmt.Errorf("entry %s: %w", rec.ID, err)
		return a, nil
	}
	a.predict.profile = p
	a.activeTab = tabPredict
	return a.openPredictForm()
}

func (a App) renderHistoryTab(cw, h int) string {
	t := theme.Active
	if a.data.HistoryErr != nil && len(a.data.History) == 0 {
		return renderError("History", a.data.HistoryErr, "", cw)
	}

	var b strings.Builder
	sum := a.data.Summary

	metrics := []components.Metric{
		{Label: "Predictions", Value: cli.FormatNumber(int64(sum.Total))},
	}
	for l := predictor.Eligible; l <= predictor.NotEligible; l++ {
		name := l.String()
		note := ""
		if sum.Total > 0 {
			note = cli.FormatPercent(float64(sum.ByLabel[name]) / float64(sum.Total) * 100)
		}
		metrics = append(metrics, components.Metric{
			Label: name,
			Value: cli.FormatNumber(int64(sum.ByLabel[name])),
			Note:  note,
			Color: t.ForLabel(name),
		})
	}
	metrics = append(metrics, components.Metric{Label: "Avg max EMI", Value: cli.FormatRupees(sum.AvgEMI)})
	b.WriteString(components.MetricCardRow(metrics, cw))
	b.WriteString("\n")

	if len(a.data.History) == 0 {
		hint := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface).
			Render("No predictions yet. Predictions made here, from the CLI, or through the server are listed here.")
		b.WriteString(components.ContentCard("Recent predictions", hint, cw))
		return b.String()
	}

	if trend := emiTrend(a.data.History); len(trend) > 1 {
		chart := components.ColumnChart(trend, t.Accent, components.CardInnerWidth(cw), 5)
		b.WriteString(components.ContentCard("Max EMI, oldest to newest", chart, cw))
		b.WriteString("\n")
	}

	listH := h - lipgloss.Height(b.String()) - 4
	if listH < 3 {
		listH = 3
	}
	title := fmt.Sprintf("Recent predictions [%d/%d]  enter: edit and re-run", a.history.cursor+1, len(a.data.History))
	b.WriteString(components.ContentCard(title, a.renderHistoryList(components.CardInnerWidth(cw), listH), cw))
	return b.String()
}

// emiTrend returns max EMI values in chronological order.
func emiTrend(recs []model.PredictionRecord) []float64 {
	var out []float64
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].MaxEMI != nil {
			out = append(out, *recs[i].MaxEMI)
		}
	}
	return out
}

func (a App) renderHistoryList(innerW, h int) string {
	t := theme.Active
	recs := a.data.History

	headerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceBright).Bold(true)

	const whenW, srcW, taskW, labelW, emiW, ratioW = 16, 7, 12, 13, 14, 8
	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %*s %*s", whenW, "When", srcW, "Source", taskW, "Task",
		labelW, "Label", emiW, "Max EMI", ratioW, "Ratio")

	lines := []string{headerStyle.Render(header), mutedStyle.Render(strings.Repeat("─", min(innerW, lipgloss.Width(header))))}

	start, end := visibleWindow(a.history.cursor, len(recs), h-2)
	for i := start; i < end; i++ {
		r := recs[i]
		emi, ratio := "-", "-"
		if r.MaxEMI != nil {
			emi = cli.FormatRupees(*r.MaxEMI)
		}
		if r.EMIRatioPct != nil {
			ratio = cli.FormatPercent(*r.EMIRatioPct)
		}
		label := r.Label
		if label == "" {
			label = "-"
		}

		if i == a.history.cursor {
			text := fmt.Sprintf("%-*s %-*s %-*s %-*s %*s %*s", whenW, truncStr(cli.FormatAge(r.CreatedAt), whenW),
				srcW, r.Source, taskW, r.Task, labelW, label, emiW, emi, ratioW, ratio)
			lines = append(lines, selStyle.Width(innerW).Render(text))
			continue
		}
		lines = append(lines,
			mutedStyle.Render(fmt.Sprintf("%-*s %-*s %-*s ", whenW, truncStr(cli.FormatAge(r.CreatedAt), whenW), srcW, r.Source, taskW, r.Task))+
				lipgloss.NewStyle().Foreground(t.ForLabel(r.Label)).Background(t.Surface).Render(fmt.Sprintf("%-*s", labelW, label))+
				valueStyle.Render(fmt.Sprintf(" %*s %*s", emiW, emi, ratioW, ratio)))
	}
	return strings.Join(lines, "\n")
}
