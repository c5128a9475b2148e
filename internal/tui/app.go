// Package tui provides the interactive Bubble Tea dashboard for emiscope.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/dataset"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
	"github.com/theirongolddev/emiscope/internal/store"
	"github.com/theirongolddev/emiscope/internal/tui/components"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

// Tab indexes, matching components.Tabs.
const (
	tabPredict = iota
	tabExperiments
	tabHistory
	tabDataset
	tabSettings
)

const (
	minTerminalWidth = 80
	compactWidth     = 120
	maxContentWidth  = 180
	minContentHeight = 5

	historyLimit = 200
)

// snapshot is everything the dashboard shows besides the Predict form.
type snapshot struct {
	Experiment *model.Experiment
	Runs       []model.Run
	RunErrors  int
	RunsErr    error

	Infer    *inference.Context
	InferErr error

	History    []model.PredictionRecord
	Summary    model.HistorySummary
	HistoryErr error

	Dataset    *dataset.Summary
	DatasetErr error
}

// DataLoadedMsg is sent when the initial load finishes.
type DataLoadedMsg struct {
	Data     snapshot
	LoadTime time.Duration
}

// ProgressMsg reports run parsing progress.
type ProgressMsg struct {
	Current int
	Total   int
}

// RefreshDataMsg is sent when a background refresh completes.
type RefreshDataMsg struct {
	Data     snapshot
	LoadTime time.Duration
}

// App is the root Bubble Tea model.
type App struct {
	cfg config.Config
	db  *store.Cache
	log logger.Logger

	data     snapshot
	loaded   bool
	loadTime time.Duration

	comparison model.Comparison
	final      model.FinalModels

	autoRefresh     bool
	refreshInterval time.Duration
	lastRefresh     time.Time
	refreshing      bool

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool

	// Per-tab state
	predict  predictState
	runs     listState
	history  listState
	settings settingsState

	// First-run setup (huh form)
	setupForm *huh.Form
	setupVals *setupValues
	needSetup bool

	// Loading: progress and completion arrive on loadSub
	spinner     spinner.Model
	progress    int
	progressMax int
	loadSub     chan tea.Msg
}

// listState is a cursor over a vertical list.
type listState struct {
	cursor int
}

func (l *listState) move(delta, n int) {
	l.cursor += delta
	if l.cursor >= n {
		l.cursor = n - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
}

// NewApp creates the dashboard. db may be nil, in which case runs are parsed
// without the cache and history is unavailable.
func NewApp(cfg config.Config, db *store.Cache, log logger.Logger) App {
	if log == nil {
		log = logger.NewNop()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	refresh := cfg.PollInterval()
	if refresh < 10*time.Second {
		refresh = 30 * time.Second
	}

	return App{
		cfg:             cfg,
		db:              db,
		log:             log,
		needSetup:       !config.Exists(),
		refreshInterval: refresh,
		spinner:         sp,
		loadSub:         make(chan tea.Msg, 1),
		predict:         newPredictState(cfg.Defaults),
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnableMouseCellMotion,
		loadDataCmd(a.cfg, a.db, a.log, a.loadSub),
		a.spinner.Tick,
		tickCmd(),
	)
}

func (a *App) apply(d snapshot, took time.Duration) {
	a.data = d
	a.loadTime = took
	a.lastRefresh = time.Now()
	a.comparison = pipeline.Compare(d.Runs)
	a.final = pipeline.SelectFinal(d.Runs)
	a.runs.move(0, len(d.Runs))
	a.history.move(0, len(d.History))
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		if a.predict.form != nil {
			a.predict.form = a.predict.form.WithWidth(components.CardInnerWidth(a.contentWidth()))
		}
		return a, nil

	case tea.MouseMsg:
		if !a.loaded || a.showHelp || a.setupForm != nil || a.predict.form != nil {
			return a, nil
		}
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			a.scrollActive(-1)
		case tea.MouseButtonWheelDown:
			a.scrollActive(1)
		case tea.MouseButtonLeft:
			if msg.Y == 0 {
				if tab := a.tabAtX(msg.X); tab >= 0 {
					a.activeTab = tab
				}
			}
		}
		return a, nil

	case tea.KeyMsg:
		return a.updateKey(msg)

	case DataLoadedMsg:
		a.loaded = true
		a.apply(msg.Data, msg.LoadTime)

		if a.needSetup {
			a.setupVals = newSetupValues(a.cfg)
			a.setupForm = newSetupForm(a.setupVals)
			if a.width > 0 {
				a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
			}
			return a, a.setupForm.Init()
		}
		return a, nil

	case ProgressMsg:
		a.progress = msg.Current
		a.progressMax = msg.Total
		return a, waitForLoadMsg(a.loadSub)

	case RefreshDataMsg:
		a.refreshing = false
		a.apply(msg.Data, msg.LoadTime)
		return a, nil

	case PredictionMsg:
		return a.applyPrediction(msg)

	case HistoryMsg:
		a.data.History = msg.Records
		a.data.Summary = msg.Summary
		a.data.HistoryErr = msg.Err
		a.history.move(0, len(msg.Records))
		return a, nil

	case spinner.TickMsg:
		if !a.loaded || a.predict.running {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd()}
		if a.loaded && a.autoRefresh && !a.refreshing && time.Since(a.lastRefresh) >= a.refreshInterval {
			a.refreshing = true
			cmds = append(cmds, refreshDataCmd(a.cfg, a.db, a.log))
		}
		return a, tea.Batch(cmds...)
	}

	// Forward everything else (cursor blinks, etc.) to an open form.
	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if a.predict.form != nil {
		return a.updatePredictForm(msg)
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return a, tea.Quit
	}
	if !a.loaded {
		return a, nil
	}

	// Open forms and inputs take every key.
	if a.setupForm != nil {
		return a.updateSetupForm(msg)
	}
	if a.predict.form != nil {
		return a.updatePredictForm(msg)
	}
	if a.activeTab == tabSettings && a.settings.editing {
		return a.updateSettingsInput(msg)
	}

	if key == "?" {
		a.showHelp = !a.showHelp
		return a, nil
	}
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	switch a.activeTab {
	case tabPredict:
		switch key {
		case "enter", "n":
			return a.openPredictForm()
		case "c":
			a.predict.reset(a.cfg.Defaults)
			return a, nil
		}
	case tabExperiments, tabHistory:
		switch key {
		case "j", "down":
			a.scrollActive(1)
			return a, nil
		case "k", "up":
			a.scrollActive(-1)
			return a, nil
		case "g":
			a.scrollActive(-1 << 20)
			return a, nil
		case "G":
			a.scrollActive(1 << 20)
			return a, nil
		}
		if a.activeTab == tabHistory && key == "enter" {
			return a.reusePrediction()
		}
	case tabSettings:
		switch key {
		case "j", "down":
			if a.settings.cursor < settingsFieldCount-1 {
				a.settings.cursor++
			}
			return a, nil
		case "k", "up":
			if a.settings.cursor > 0 {
				a.settings.cursor--
			}
			return a, nil
		case "enter":
			return a.settingsStartEdit()
		}
	}

	switch key {
	case "q":
		return a, tea.Quit
	case "r":
		if !a.refreshing {
			a.refreshing = true
			return a, refreshDataCmd(a.cfg, a.db, a.log)
		}
		return a, nil
	case "R":
		a.autoRefresh = !a.autoRefresh
		return a, nil
	case "left":
		a.activeTab = (a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs)
		return a, nil
	case "right", "tab":
		a.activeTab = (a.activeTab + 1) % len(components.Tabs)
		return a, nil
	}

	if len(msg.Runes) == 1 {
		if idx := components.TabIdxByKey(msg.Runes[0]); idx >= 0 {
			a.activeTab = idx
		}
	}
	return a, nil
}

func (a *App) scrollActive(delta int) {
	switch a.activeTab {
	case tabExperiments:
		a.runs.move(delta, len(a.data.Runs))
	case tabHistory:
		a.history.move(delta, len(a.data.History))
	}
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		a.setupVals.apply(&a.cfg)
		theme.SetActive(a.cfg.Appearance.Theme)
		a.settings.saveErr = config.Save(a.cfg)
		a.needSetup = false
		a.setupForm = nil
		a.refreshing = true
		return a, refreshDataCmd(a.cfg, a.db, a.log)
	case huh.StateAborted:
		a.needSetup = false
		a.setupForm = nil
		return a, nil
	}
	return a, cmd
}

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	return cw
}

func (a App) isCompactLayout() bool {
	return a.contentWidth() < compactWidth
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if !a.loaded {
		return a.viewLoading()
	}
	if a.setupForm != nil {
		return a.setupForm.View()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}
	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  emiscope needs at least %d columns.\n",
		a.width, minTerminalWidth,
	)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)
	logoStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	subtitleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	spinnerStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface)
	countStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ emiscope"))
	b.WriteString(subtitleStyle.Render(" · EMI eligibility and affordability"))
	b.WriteString("\n\n")

	if a.progressMax > 0 {
		barW := min(40, a.width-30)
		if barW < 20 {
			barW = 20
		}
		b.WriteString(spinnerStyle.Render(a.spinner.View()))
		b.WriteString(subtitleStyle.Render(" Reading experiment runs\n\n"))
		b.WriteString(components.ProgressBar(float64(a.progress)/float64(a.progressMax), barW))
		b.WriteString("\n")
		b.WriteString(countStyle.Render(cli.FormatNumber(int64(a.progress))))
		b.WriteString(subtitleStyle.Render(" / "))
		b.WriteString(countStyle.Render(cli.FormatNumber(int64(a.progressMax))))
	} else {
		b.WriteString(spinnerStyle.Render(a.spinner.View()))
		b.WriteString(subtitleStyle.Render(" Loading models and experiments..."))
	}

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	section := func(b *strings.Builder, title string, binds [][2]string) {
		b.WriteString(sectionStyle.Render(title))
		b.WriteString("\n")
		for _, bind := range binds {
			fmt.Fprintf(b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind[0])),
				descStyle.Render(bind[1]))
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n\n")
	section(&b, "Navigation", [][2]string{
		{"p e h d x", "Jump to tab"},
		{"← → tab", "Previous / Next tab"},
		{"j k", "Navigate lists"},
		{"g G", "First / last row"},
	})
	b.WriteString("\n")
	section(&b, "Predict", [][2]string{
		{"Enter n", "Edit profile and predict"},
		{"c", "Reset profile to defaults"},
		{"Esc", "Leave the form"},
	})
	b.WriteString("\n")
	section(&b, "General", [][2]string{
		{"Enter", "Re-run a history entry"},
		{"r", "Reload models and runs"},
		{"R", "Toggle auto-refresh"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	})
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) experimentName() string {
	if a.data.Experiment != nil {
		return a.data.Experiment.Name
	}
	return ""
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	h := a.height

	header := components.RenderTabBar(a.activeTab, w)
	statusBar := components.RenderStatusBar(w, components.Status{
		ArtifactsReady: a.data.Infer != nil,
		Experiment:     a.experimentName(),
		DataAge:        fmt.Sprintf("%.1fs", a.loadTime.Seconds()),
		Refreshing:     a.refreshing,
		AutoRefresh:    a.autoRefresh,
	})

	contentH := h - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < minContentHeight {
		contentH = minContentHeight
	}

	var content string
	switch a.activeTab {
	case tabPredict:
		content = a.renderPredictTab(cw)
	case tabExperiments:
		content = a.renderExperimentsTab(cw, contentH)
	case tabHistory:
		content = a.renderHistoryTab(cw, contentH)
	case tabDataset:
		content = a.renderDatasetTab(cw)
	case tabSettings:
		content = a.renderSettingsTab(cw)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// renderError renders a muted card explaining why a tab has nothing to show.
func renderError(title string, err error, hint string, cw int) string {
	t := theme.Active
	body := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface).Render(err.Error())
	if hint != "" {
		body += "\n\n" + lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface).Render(hint)
	}
	return components.ContentCard(title, body, cw)
}

// ─── Loading ────────────────────────────────────────────────────

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// load gathers runs, artifacts, history and the dataset summary. Each part
// fails independently so one missing input never blanks the dashboard.
func load(cfg config.Config, db *store.Cache, log logger.Logger, progressFn pipeline.ProgressFunc) snapshot {
	var d snapshot

	exp := cfg.Experiments
	loaded := false
	if db != nil {
		cr, err := pipeline.LoadWithCache(exp.MLrunsDir, exp.ExperimentName, db, progressFn)
		if err == nil {
			d.Experiment, d.Runs, d.RunErrors = cr.Experiment, cr.Runs, cr.RunErrors
			loaded = true
		} else {
			log.Warn("cached run load failed, reparsing", map[string]interface{}{"error": err.Error()})
		}
	}
	if !loaded {
		res, err := pipeline.Load(exp.MLrunsDir, exp.ExperimentName, progressFn)
		if err != nil {
			d.RunsErr = err
		} else {
			d.Experiment, d.Runs, d.RunErrors = res.Experiment, res.Runs, res.RunErrors
		}
	}

	d.Infer, d.InferErr = inference.LoadContext(cfg.ArtifactPaths(), log)

	if db != nil {
		d.History, d.HistoryErr = db.RecentPredictions(historyLimit)
		if d.HistoryErr == nil {
			d.Summary, d.HistoryErr = db.SummarizeHistory()
		}
	} else {
		d.HistoryErr = errNoStore
	}

	d.Dataset, d.DatasetErr = dataset.Summarize(cfg.Dataset.Path)
	return d
}

// loadDataCmd runs load in a goroutine, streaming ProgressMsg updates and a
// final DataLoadedMsg through sub.
func loadDataCmd(cfg config.Config, db *store.Cache, log logger.Logger, sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			start := time.Now()
			progressFn := func(current, total int) {
				select {
				case sub <- ProgressMsg{Current: current, Total: total}:
				default:
				}
			}
			d := load(cfg, db, log, progressFn)
			sub <- DataLoadedMsg{Data: d, LoadTime: time.Since(start)}
		}()
		return <-sub
	}
}

// waitForLoadMsg blocks until the next message arrives from the loader goroutine.
func waitForLoadMsg(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// refreshDataCmd reloads everything in the background without progress UI.
func refreshDataCmd(cfg config.Config, db *store.Cache, log logger.Logger) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		d := load(cfg, db, log, nil)
		return RefreshDataMsg{Data: d, LoadTime: time.Since(start)}
	}
}

// ─── Helpers ────────────────────────────────────────────────────

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg))
	}
	return strings.Join(lines, "\n")
}

// visibleWindow returns the [start, end) range of n rows that keeps cursor
// on screen in a window of size rows.
func visibleWindow(cursor, n, size int) (int, int) {
	if size < 1 {
		size = 1
	}
	start := 0
	if cursor >= size {
		start = cursor - size + 1
	}
	return start, min(n, start+size)
}

// ─── Mouse Support ──────────────────────────────────────────────

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)
		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW
		if i < len(components.Tabs)-1 {
			pos++ // separator
		}
	}
	return -1
}
