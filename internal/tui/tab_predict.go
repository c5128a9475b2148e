package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/store"
	"github.com/theirongolddev/emiscope/internal/tui/components"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

// PredictionMsg carries the outcome of one prediction.
type PredictionMsg struct {
	Profile  profile.RawProfile
	Decision inference.Decision
	Err      error
}

// HistoryMsg carries reloaded prediction history.
type HistoryMsg struct {
	Records []model.PredictionRecord
	Summary model.HistorySummary
	Err     error
}

// formSections groups the profile fields into form pages.
var formSections = []struct {
	title  string
	fields []string
}{
	{"Applicant", []string{"age", "gender", "marital_status", "education", "family_size", "dependents"}},
	{"Employment", []string{"monthly_salary", "years_of_employment", "employment_type", "company_type"}},
	{"Housing and expenses", []string{
		"house_type", "monthly_rent", "school_fees", "college_fees",
		"travel_expenses", "groceries_utilities", "other_monthly_expenses",
	}},
	{"Credit", []string{"existing_loans", "current_emi_amount", "credit_score", "bank_balance", "emergency_fund"}},
	{"Request", []string{"emi_scenario", "requested_amount", "requested_tenure"}},
}

var fieldTitles = map[string]string{
	"age":                    "Age",
	"monthly_salary":         "Monthly salary (₹)",
	"years_of_employment":    "Years of employment",
	"monthly_rent":           "Monthly rent (₹)",
	"family_size":            "Family size",
	"dependents":             "Dependents",
	"school_fees":            "School fees (₹/month)",
	"college_fees":           "College fees (₹/month)",
	"travel_expenses":        "Travel (₹/month)",
	"groceries_utilities":    "Groceries and utilities (₹/month)",
	"other_monthly_expenses": "Other expenses (₹/month)",
	"current_emi_amount":     "Current EMI (₹/month)",
	"credit_score":           "Credit score",
	"bank_balance":           "Bank balance (₹)",
	"emergency_fund":         "Emergency fund (₹)",
	"requested_amount":       "Requested amount (₹)",
	"requested_tenure":       "Requested tenure (months)",
	"gender":                 "Gender",
	"marital_status":         "Marital status",
	"education":              "Education",
	"employment_type":        "Employment type",
	"company_type":           "Company type",
	"house_type":             "House type",
	"existing_loans":         "Existing loans",
	"emi_scenario":           "EMI scenario",
}

func fieldTitle(name string) string {
	if t, ok := fieldTitles[name]; ok {
		return t
	}
	return name
}

func isCategorical(name string) bool {
	_, ok := profile.Options[name]
	return ok
}

// predictState tracks the Predict tab.
type predictState struct {
	profile  profile.RawProfile
	form     *huh.Form
	vals     *formValues
	running  bool
	decision *inference.Decision
	err      error
}

func newPredictState(base profile.RawProfile) predictState {
	return predictState{profile: base}
}

func (s *predictState) reset(base profile.RawProfile) {
	*s = newPredictState(base)
}

// formValues holds the string form of every field; huh binds to the pointers.
type formValues struct {
	fields map[string]*string
}

func newFormValues(p profile.RawProfile) *formValues {
	v := &formValues{fields: make(map[string]*string)}
	for name, x := range p.Numeric() {
		s := strconv.FormatFloat(x, 'f', -1, 64)
		v.fields[name] = &s
	}
	for name, x := range p.Categorical() {
		s := x
		v.fields[name] = &s
	}
	return v
}

// profile overlays the entered values onto base.
func (v *formValues) profile(base profile.RawProfile) (profile.RawProfile, error) {
	p := base
	for _, sec := range formSections {
		for _, name := range sec.fields {
			ptr, ok := v.fields[name]
			if !ok {
				continue
			}
			if err := p.Set(name, *ptr); err != nil {
				return base, err
			}
		}
	}
	return p, nil
}

func validateNumber(name string) func(string) error {
	return func(s string) error {
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return errors.New("enter a number")
		}
		if x < 0 {
			return errors.New("must not be negative")
		}
		if r, ok := profile.Ranges[name]; ok && (x < r.Min || x > r.Max) {
			return fmt.Errorf("must be between %s and %s", cli.FormatValue(r.Min), cli.FormatValue(r.Max))
		}
		return nil
	}
}

func newPredictForm(v *formValues) *huh.Form {
	groups := make([]*huh.Group, 0, len(formSections))
	for _, sec := range formSections {
		fields := make([]huh.Field, 0, len(sec.fields))
		for _, name := range sec.fields {
			if isCategorical(name) {
				opts := profile.Options[name]
				if cur := *v.fields[name]; !profile.IsKnownLevel(name, cur) && cur != "" {
					opts = append(append([]string{}, opts...), cur)
				}
				fields = append(fields, huh.NewSelect[string]().
					Title(fieldTitle(name)).
					Options(huh.NewOptions(opts...)...).
					Value(v.fields[name]))
				continue
			}
			fields = append(fields, huh.NewInput().
				Title(fieldTitle(name)).
				Value(v.fields[name]).
				Validate(validateNumber(name)))
		}
		groups = append(groups, huh.NewGroup(fields...).Title(sec.title))
	}
	return huh.NewForm(groups...).WithTheme(huh.ThemeCharm()).WithShowHelp(true)
}

func (a App) openPredictForm() (tea.Model, tea.Cmd) {
	if a.data.Infer == nil {
		a.predict.err = fmt.Errorf("models not loaded: %w", a.data.InferErr)
		return a, nil
	}
	a.predict.vals = newFormValues(a.predict.profile)
	a.predict.form = newPredictForm(a.predict.vals).
		WithWidth(components.CardInnerWidth(a.contentWidth()))
	a.predict.err = nil
	return a, a.predict.form.Init()
}

func (a App) updatePredictForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "esc" {
		a.predict.form = nil
		return a, nil
	}

	form, cmd := a.predict.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.predict.form = f
	}

	switch a.predict.form.State {
	case huh.StateCompleted:
		a.predict.form = nil
		p, err := a.predict.vals.profile(a.predict.profile)
		if err == nil {
			err = profile.ValidateProfile(p, a.cfg.Server.Strict)
		}
		if err != nil {
			a.predict.err = err
			return a, nil
		}
		a.predict.profile = p
		a.predict.running = true
		return a, tea.Batch(predictCmd(a.data.Infer, p), a.spinner.Tick)
	case huh.StateAborted:
		a.predict.form = nil
		return a, nil
	}
	return a, cmd
}

func (a App) applyPrediction(msg PredictionMsg) (tea.Model, tea.Cmd) {
	a.predict.running = false
	if msg.Err != nil {
		a.predict.err = msg.Err
		a.predict.decision = nil
		return a, nil
	}
	d := msg.Decision
	a.predict.err = nil
	a.predict.decision = &d
	a.predict.profile = msg.Profile

	if a.db == nil {
		return a, nil
	}
	return a, recordCmd(a.db, inference.Record("tui", inference.TaskBoth, msg.Profile, d))
}

func predictCmd(c *inference.Context, p profile.RawProfile) tea.Cmd {
	return func() tea.Msg {
		d, err := inference.Predict(c, p)
		return PredictionMsg{Profile: p, Decision: d, Err: err}
	}
}

// recordCmd stores rec and reloads history.
func recordCmd(db *store.Cache, rec model.PredictionRecord) tea.Cmd {
	return func() tea.Msg {
		if err := db.SavePrediction(rec); err != nil {
			return HistoryMsg{Err: fmt.Errorf("saving prediction: %w", err)}
		}
		return loadHistory(db)
	}
}

func loadHistory(db *store.Cache) HistoryMsg {
	recs, err := db.RecentPredictions(historyLimit)
	if err != nil {
		return HistoryMsg{Err: err}
	}
	sum, err := db.SummarizeHistory()
	return HistoryMsg{Records: recs, Summary: sum, Err: err}
}

func (a App) renderPredictTab(cw int) string {
	t := theme.Active
	ps := a.predict
	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)

	if ps.form != nil {
		return components.ContentCard("Applicant profile", ps.form.View(), cw)
	}
	if ps.running {
		spin := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Render(a.spinner.View())
		return components.ContentCard("Predict", spin+muted.Render(" Scoring profile..."), cw)
	}
	if a.data.Infer == nil {
		return renderError("Models unavailable", a.data.InferErr,
			"Point models_dir at the exported artifacts in Settings, then press r.", cw)
	}

	var b strings.Builder
	if ps.err != nil {
		b.WriteString(renderError("Prediction failed", ps.err, "Press Enter to edit the profile.", cw))
		b.WriteString("\n")
	}

	if ps.decision == nil {
		hint := muted.Render("Press ") +
			lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true).Render("Enter") +
			muted.Render(" to fill in an applicant profile and predict eligibility and the maximum EMI.")
		b.WriteString(components.ContentCard("Predict", hint, cw))
		b.WriteString("\n")
		b.WriteString(renderProfileCard(ps.profile, cw, a.isCompactLayout()))
		return b.String()
	}

	b.WriteString(a.renderDecision(*ps.decision, cw))
	b.WriteString("\n")
	b.WriteString(renderProfileCard(ps.profile, cw, a.isCompactLayout()))
	return b.String()
}

func (a App) renderDecision(d inference.Decision, cw int) string {
	t := theme.Active
	var b strings.Builder

	var metrics []components.Metric
	if e := d.Eligibility; e != nil {
		metrics = append(metrics, components.Metric{
			Label: "Eligibility",
			Value: e.Name,
			Color: t.ForLabel(e.Name),
		})
	}
	if m := d.MaxEMI; m != nil {
		metrics = append(metrics,
			components.Metric{Label: "Max monthly EMI", Value: cli.FormatAmount(m.Amount)},
			components.Metric{
				Label: "EMI to salary",
				Value: cli.FormatPercent(m.SalaryRatioPct),
				Color: t.ForRatio(m.SalaryRatioPct),
			},
			components.Metric{Label: "Requested", Value: cli.FormatRupees(m.RequestedAmount)},
		)
	}
	b.WriteString(components.MetricCardRow(metrics, cw))
	b.WriteString("\n")

	var cards []string
	widths := components.LayoutRow(cw, 2)
	if a.isCompactLayout() {
		widths = []int{cw, cw}
	}
	if e := d.Eligibility; e != nil {
		inner := components.CardInnerWidth(widths[0])
		barW := max(inner-12-8, 10)
		var body strings.Builder
		for i, p := range e.Probabilities {
			name := predictor.Label(i).String()
			body.WriteString(components.ProbabilityBar(name, p, t.ForLabel(name), 12, barW))
			body.WriteString("\n")
		}
		body.WriteString("\n")
		body.WriteString(lipgloss.NewStyle().Foreground(t.ForLabel(e.Name)).Background(t.Surface).
			Width(inner).Render(e.Advice))
		cards = append(cards, components.ContentCard("Class probabilities", body.String(), widths[0]))
	}
	cards = append(cards, components.ContentCard("Engineered features",
		renderDerived(d, components.CardInnerWidth(widths[1])), widths[1]))

	if a.isCompactLayout() {
		b.WriteString(strings.Join(cards, "\n"))
	} else {
		b.WriteString(components.CardRow(cards))
	}

	if !d.Diagnostics.Clean() {
		b.WriteString("\n")
		b.WriteString(components.ContentCard("Schema diagnostics", renderDiagnostics(d.Diagnostics), cw))
	}
	return b.String()
}

func renderDerived(d inference.Decision, inner int) string {
	t := theme.Active
	f := d.Diagnostics.Derived
	rows := []struct{ label, value string }{
		{"Total expenses", cli.FormatRupees(f.TotalExpenses)},
		{"Disposable income", cli.FormatRupees(f.DisposableIncome)},
		{"Expense ratio", cli.FormatValue(f.ExpenseRatio)},
		{"Debt to income", cli.FormatValue(f.DTIRatio)},
		{"Affordability index", cli.FormatValue(f.AffordabilityIndex)},
		{"Credit risk score", cli.FormatValue(f.CreditRiskScore)},
		{"Financial risk index", cli.FormatValue(f.FinancialRiskIndex)},
		{"Savings buffer", cli.FormatValue(f.SavingsBufferRatio)},
	}
	if m := d.MaxEMI; m != nil {
		rows = append(rows, struct{ label, value string }{"", ""})
		rows = append(rows, struct{ label, value string }{"EMI load", components.RatioGauge(m.SalaryRatioPct, max(inner-40, 8))})
	}

	label := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	value := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	lines := make([]string, len(rows))
	for i, r := range rows {
		if r.label == "" {
			continue
		}
		lines[i] = label.Render(fmt.Sprintf("%-22s", r.label)) + value.Render(r.value)
	}
	return strings.Join(lines, "\n")
}

func renderDiagnostics(d inference.Diagnostics) string {
	t := theme.Active
	warn := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)

	var lines []string
	for _, r := range d.Unseen() {
		lines = append(lines, warn.Render("unseen level ")+muted.Render(fmt.Sprintf("%s = %q (encoded as zeros)", r.Field, r.Level)))
	}
	if n := len(d.Mismatch.Missing); n > 0 {
		lines = append(lines, warn.Render("missing columns ")+muted.Render(fmt.Sprintf("%d zero-filled: %s", n, truncStr(strings.Join(d.Mismatch.Missing, ", "), 80))))
	}
	if n := len(d.Mismatch.Extra); n > 0 {
		lines = append(lines, warn.Render("extra columns ")+muted.Render(fmt.Sprintf("%d dropped: %s", n, truncStr(strings.Join(d.Mismatch.Extra, ", "), 80))))
	}
	return strings.Join(lines, "\n")
}

// renderProfileCard shows the current profile grouped like the form.
func renderProfileCard(p profile.RawProfile, cw int, compact bool) string {
	t := theme.Active
	head := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	label := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	value := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)

	numeric := p.Numeric()
	categorical := p.Categorical()

	blocks := make([]string, len(formSections))
	for i, sec := range formSections {
		var b strings.Builder
		b.WriteString(head.Render(sec.title))
		for _, name := range sec.fields {
			v := categorical[name]
			if !isCategorical(name) {
				v = cli.FormatValue(numeric[name])
			}
			b.WriteString("\n")
			b.WriteString(label.Render(fmt.Sprintf("%-20s ", truncStr(strings.TrimSuffix(fieldTitle(name), " (₹/month)"), 20))))
			b.WriteString(value.Render(v))
		}
		blocks[i] = b.String()
	}

	if compact {
		return components.ContentCard("Profile", strings.Join(blocks, "\n\n"), cw)
	}

	inner := components.CardInnerWidth(cw)
	colW := components.LayoutRow(inner, 3)
	cols := []string{
		blocks[0] + "\n\n" + blocks[1],
		blocks[2],
		blocks[3] + "\n\n" + blocks[4],
	}
	fill := lipgloss.NewStyle().Background(t.Surface)
	for i := range cols {
		cols[i] = fill.Width(colW[i]).Render(cols[i])
	}
	return components.ContentCard("Profile", lipgloss.JoinHorizontal(lipgloss.Top, cols...), cw)
}
