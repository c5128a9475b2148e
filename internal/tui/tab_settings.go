package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/pipeline"
	"github.com/theirongolddev/emiscope/internal/tui/components"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

const (
	settingsFieldTheme = iota
	settingsFieldModelsDir
	settingsFieldMLrunsDir
	settingsFieldExperiment
	settingsFieldDataset
	settingsFieldPollInterval
	settingsFieldStrict
	settingsFieldCount // sentinel
)

// settingsState tracks the settings tab state.
type settingsState struct {
	cursor  int
	editing bool
	input   textinput.Model
	saved   bool
	saveErr error
}

func newSettingsInput() textinput.Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 50
	return ti
}

// settingsValue returns the current text of a settings field.
func settingsValue(cfg config.Config, field int) string {
	switch field {
	case settingsFieldTheme:
		return cfg.Appearance.Theme
	case settingsFieldModelsDir:
		return cfg.Artifacts.ModelsDir
	case settingsFieldMLrunsDir:
		return cfg.Experiments.MLrunsDir
	case settingsFieldExperiment:
		return cfg.Experiments.ExperimentName
	case settingsFieldDataset:
		return cfg.Dataset.Path
	case settingsFieldPollInterval:
		return strconv.Itoa(cfg.Server.PollIntervalSec)
	case settingsFieldStrict:
		return strconv.FormatBool(cfg.Server.Strict)
	}
	return ""
}

func (a App) settingsStartEdit() (tea.Model, tea.Cmd) {
	a.settings.editing = true
	a.settings.saved = false

	ti := newSettingsInput()
	switch a.settings.cursor {
	case settingsFieldTheme:
		ti.Placeholder = strings.Join(theme.Names(), ", ")
	case settingsFieldPollInterval:
		ti.Placeholder = "15 (seconds, minimum 1)"
	case settingsFieldStrict:
		ti.Placeholder = "true or false"
	}
	ti.SetValue(settingsValue(a.cfg, a.settings.cursor))
	ti.Focus()
	a.settings.input = ti
	return a, ti.Cursor.BlinkCmd()
}

func (a App) updateSettingsInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		reload, err := applySetting(&a.cfg, a.settings.cursor, a.settings.input.Value())
		a.settings.editing = false
		if err != nil {
			a.settings.saveErr = err
			a.settings.saved = false
			return a, nil
		}
		if a.settings.cursor == settingsFieldTheme {
			theme.SetActive(a.cfg.Appearance.Theme)
		}
		if a.settings.cursor == settingsFieldPollInterval {
			a.refreshInterval = max(a.cfg.PollInterval(), 10*time.Second)
		}
		a.settings.saveErr = config.Save(a.cfg)
		a.settings.saved = a.settings.saveErr == nil
		if reload && !a.refreshing {
			a.refreshing = true
			return a, refreshDataCmd(a.cfg, a.db, a.log)
		}
		return a, nil
	case "esc":
		a.settings.editing = false
		return a, nil
	}

	var cmd tea.Cmd
	a.settings.input, cmd = a.settings.input.Update(msg)
	return a, cmd
}

// applySetting validates val and stores it in cfg. It reports whether the
// change affects loaded data.
func applySetting(cfg *config.Config, field int, val string) (bool, error) {
	val = strings.TrimSpace(val)
	switch field {
	case settingsFieldTheme:
		for _, name := range theme.Names() {
			if name == val {
				cfg.Appearance.Theme = val
				return false, nil
			}
		}
		return false, fmt.Errorf("unknown theme %q", val)
	case settingsFieldPollInterval:
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return false, fmt.Errorf("poll interval must be a positive number of seconds")
		}
		cfg.Server.PollIntervalSec = n
		return false, nil
	case settingsFieldStrict:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("strict must be true or false")
		}
		cfg.Server.Strict = b
		return false, nil
	}

	if val == "" {
		return false, fmt.Errorf("value cannot be empty")
	}
	switch field {
	case settingsFieldModelsDir:
		cfg.Artifacts.ModelsDir = val
	case settingsFieldMLrunsDir:
		cfg.Experiments.MLrunsDir = val
	case settingsFieldExperiment:
		cfg.Experiments.ExperimentName = val
	case settingsFieldDataset:
		cfg.Dataset.Path = val
	default:
		return false, fmt.Errorf("unknown setting %d", field)
	}
	return true, nil
}

func (a App) renderSettingsTab(cw int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(cw)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selectedStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceBright).Bold(true)
	selectedLabelStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.SurfaceBright).Bold(true)
	accentStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface)
	markerStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceBright)

	labels := [settingsFieldCount]string{
		"Theme", "Models dir", "MLruns dir", "Experiment", "Dataset", "Poll interval", "Strict validation",
	}

	var form strings.Builder
	for i, label := range labels {
		value := settingsValue(a.cfg, i)
		if i == settingsFieldPollInterval {
			value += "s"
		}

		switch {
		case a.settings.editing && i == a.settings.cursor:
			form.WriteString(markerStyle.Render("▸ "))
			form.WriteString(accentStyle.Render(fmt.Sprintf("%-18s ", label)))
			form.WriteString(a.settings.input.View())
		case i == a.settings.cursor:
			marker := markerStyle.Render("▸ ")
			l := selectedLabelStyle.Render(fmt.Sprintf("%-18s ", label+":"))
			v := selectedStyle.Render(value)
			form.WriteString(marker + l + v)
			if pad := innerW - lipgloss.Width(marker) - lipgloss.Width(l) - lipgloss.Width(v); pad > 0 {
				form.WriteString(lipgloss.NewStyle().Background(t.SurfaceBright).Render(strings.Repeat(" ", pad)))
			}
		default:
			form.WriteString(lipgloss.NewStyle().Background(t.Surface).Render("  "))
			form.WriteString(labelStyle.Render(fmt.Sprintf("%-18s ", label+":")))
			form.WriteString(valueStyle.Render(value))
		}
		form.WriteString("\n")
	}

	if a.settings.saveErr != nil {
		form.WriteString("\n")
		form.WriteString(lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface).
			Render(fmt.Sprintf("Not saved: %s", a.settings.saveErr)))
	} else if a.settings.saved {
		form.WriteString("\n")
		form.WriteString(lipgloss.NewStyle().Foreground(t.Green).Background(t.Surface).Render("Saved."))
	}
	form.WriteString("\n")
	form.WriteString(labelStyle.Render("[j/k] navigate  [Enter] edit  [Esc] cancel"))

	fingerprint := "(models not loaded)"
	if a.data.Infer != nil {
		fingerprint = truncStr(a.data.Infer.Fingerprint, 16)
	}
	history := "unavailable"
	if a.db != nil {
		history = pipeline.CachePath()
	}

	var info strings.Builder
	info.WriteString(labelStyle.Render("Config file:  ") + valueStyle.Render(config.ConfigPath()) + "\n")
	info.WriteString(labelStyle.Render("History db:   ") + valueStyle.Render(history) + "\n")
	info.WriteString(labelStyle.Render("Runs loaded:  ") + valueStyle.Render(cli.FormatNumber(int64(len(a.data.Runs)))) + "\n")
	info.WriteString(labelStyle.Render("Load time:    ") + valueStyle.Render(fmt.Sprintf("%.1fs", a.loadTime.Seconds())) + "\n")
	info.WriteString(labelStyle.Render("Artifacts:    ") + valueStyle.Render(fingerprint))

	var b strings.Builder
	b.WriteString(components.ContentCard("Settings", form.String(), cw))
	b.WriteString("\n")
	b.WriteString(components.ContentCard("General", info.String(), cw))
	return b.String()
}
