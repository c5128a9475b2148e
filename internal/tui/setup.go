package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/tui/theme"
)

// setupValues holds the first-run form answers. huh binds to its fields by
// pointer, so it must not be copied while the form is open.
type setupValues struct {
	modelsDir  string
	mlrunsDir  string
	experiment string
	dataset    string
	theme      string
}

func newSetupValues(cfg config.Config) *setupValues {
	return &setupValues{
		modelsDir:  cfg.Artifacts.ModelsDir,
		mlrunsDir:  cfg.Experiments.MLrunsDir,
		experiment: cfg.Experiments.ExperimentName,
		dataset:    cfg.Dataset.Path,
		theme:      cfg.Appearance.Theme,
	}
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func newSetupForm(v *setupValues) *huh.Form {
	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themes = append(themes, huh.NewOption(name, name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to emiscope").
				Description("Point emiscope at your trained models, experiment runs and dataset.\nEverything can be changed later in Settings or with `emiscope config`."),
			huh.NewInput().
				Title("Models directory").
				Description("Holds the feature schema and the classifier and regressor exports.").
				Value(&v.modelsDir).
				Validate(notBlank("models directory")),
			huh.NewInput().
				Title("MLruns directory").
				Description("Experiment tracking store with one folder per experiment.").
				Value(&v.mlrunsDir).
				Validate(notBlank("mlruns directory")),
			huh.NewInput().
				Title("Experiment name").
				Value(&v.experiment).
				Validate(notBlank("experiment name")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Training dataset").
				Description("CSV used by the Dataset tab and `emiscope explore`.").
				Value(&v.dataset),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themes...).
				Value(&v.theme),
		),
	).WithTheme(huh.ThemeCharm()).WithShowHelp(true)
}

func (v *setupValues) apply(cfg *config.Config) {
	cfg.Artifacts.ModelsDir = strings.TrimSpace(v.modelsDir)
	cfg.Experiments.MLrunsDir = strings.TrimSpace(v.mlrunsDir)
	cfg.Experiments.ExperimentName = strings.TrimSpace(v.experiment)
	if ds := strings.TrimSpace(v.dataset); ds != "" {
		cfg.Dataset.Path = ds
	}
	cfg.Appearance.Theme = v.theme
}

// ErrSetupAborted is returned by RunSetup when the user cancels the form.
var ErrSetupAborted = errors.New("setup aborted")

// RunSetup runs the setup form outside the dashboard and returns the updated
// configuration. The caller decides where to save it.
func RunSetup(cfg config.Config) (config.Config, error) {
	v := newSetupValues(cfg)
	if err := newSetupForm(v).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return cfg, ErrSetupAborted
		}
		return cfg, err
	}
	v.apply(&cfg)
	return cfg, nil
}
