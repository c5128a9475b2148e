package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

// Status is what the bottom bar reports.
type Status struct {
	ArtifactsReady bool
	Experiment     string
	DataAge        string
	Refreshing     bool
	AutoRefresh    bool
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, st Status) string {
	t := theme.Active

	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	key := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)

	left := muted.Render(" ") + key.Render("?") + muted.Render(" help  ") +
		key.Render("r") + muted.Render(" refresh  ") +
		key.Render("q") + muted.Render(" quit ")

	models := lipgloss.NewStyle().Foreground(t.Green).Background(t.Surface).Render("● models")
	if !st.ArtifactsReady {
		models = lipgloss.NewStyle().Foreground(t.Red).Background(t.Surface).Render("○ no models")
	}
	right := models
	if st.Experiment != "" {
		right += muted.Render("  " + st.Experiment)
	}
	switch {
	case st.Refreshing:
		right += lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Render("  refreshing…")
	case st.DataAge != "":
		right += muted.Render("  " + st.DataAge)
	}
	if st.AutoRefresh {
		right += muted.Render("  auto")
	}
	right += muted.Render(" ")

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Background(t.Surface).Render(strings.Repeat(" ", gap))

	return lipgloss.NewStyle().MaxWidth(width).Render(left + spacer + right)
}
