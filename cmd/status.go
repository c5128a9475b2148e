package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/client"
	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check model artifacts, experiment store, history and server",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type artifactStatus struct {
	Ready         bool            `json:"ready"`
	Error         string          `json:"error,omitempty"`
	SchemaColumns int             `json:"schema_columns,omitempty"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	Classifier    *predictor.Info `json:"classifier,omitempty"`
	Regressor     *predictor.Info `json:"regressor,omitempty"`
}

type statusOutput struct {
	ConfigPath string                `json:"config_path"`
	ModelsDir  string                `json:"models_dir"`
	MLrunsDir  string                `json:"mlruns_dir"`
	Artifacts  artifactStatus        `json:"artifacts"`
	CachedRuns int                   `json:"cached_runs"`
	History    *model.HistorySummary `json:"history,omitempty"`
	Server     *server.Status        `json:"server,omitempty"`
	ServerErr  string                `json:"server_error,omitempty"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := statusOutput{
		ConfigPath: config.ConfigPath(),
		ModelsDir:  cfg.Artifacts.ModelsDir,
		MLrunsDir:  cfg.Experiments.MLrunsDir,
		Artifacts:  checkArtifacts(cfg),
	}

	if db := openStore(); db != nil {
		if n, err := db.RunCount(); err == nil {
			out.CachedRuns = n
		}
		if sum, err := db.SummarizeHistory(); err == nil {
			out.History = &sum
		}
		_ = db.Close()
	}

	if st, err := readState(statePath(defaultPIDFile())); err == nil && processAlive(st.PID) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		out.Server, err = client.New("http://" + st.Addr).Status(ctx)
		cancel()
		if err != nil {
			out.ServerErr = err.Error()
		}
	}

	if flagJSON {
		return printJSON(out)
	}
	printStatus(out)
	return nil
}

// checkArtifacts loads the schema and both models the way predict does and
// reports what it found.
func checkArtifacts(cfg config.Config) artifactStatus {
	ic, err := inference.LoadContext(cfg.ArtifactPaths(), logger.NewNop())
	if err != nil {
		return artifactStatus{Error: err.Error()}
	}
	clf, reg := ic.ClassifierInfo, ic.RegressorInfo
	return artifactStatus{
		Ready:         true,
		SchemaColumns: ic.Schema.Len(),
		Fingerprint:   ic.Fingerprint,
		Classifier:    &clf,
		Regressor:     &reg,
	}
}

func printStatus(out statusOutput) {
	ok := lipgloss.NewStyle().Foreground(cli.ColorGreen).Render("ok")
	bad := lipgloss.NewStyle().Foreground(cli.ColorRed).Render("missing")

	fmt.Println()
	fmt.Println(cli.RenderTitle("EMISCOPE STATUS"))
	fmt.Println()

	a := out.Artifacts
	pairs := [][2]string{
		{"Config", out.ConfigPath},
		{"Models dir", out.ModelsDir},
		{"Experiment store", out.MLrunsDir},
	}
	if a.Ready {
		pairs = append(pairs,
			[2]string{"Artifacts", ok},
			[2]string{"Schema columns", cli.FormatNumber(int64(a.SchemaColumns))},
			[2]string{"Fingerprint", shortID(a.Fingerprint)},
		)
	} else {
		pairs = append(pairs, [2]string{"Artifacts", bad})
	}
	fmt.Print(cli.RenderKeyValues(pairs))
	if !a.Ready {
		fmt.Println()
		fmt.Println("  " + cli.RenderWarning(a.Error))
	}
	fmt.Println()

	if a.Ready {
		rows := [][]string{infoRow("Classifier", a.Classifier), infoRow("Regressor", a.Regressor)}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Models",
			Headers: []string{"Role", "Kind", "Objective", "Trees", "Drift", "File"},
			Rows:    rows,
		}))
		for _, info := range []*predictor.Info{a.Classifier, a.Regressor} {
			for _, d := range info.SchemaDrift {
				fmt.Println("  " + cli.RenderWarning(d))
			}
		}
	}

	hist := [][2]string{{"Cached runs", cli.FormatNumber(int64(out.CachedRuns))}}
	if out.History != nil {
		hist = append(hist, [2]string{"Predictions", cli.FormatNumber(int64(out.History.Total))})
	}
	hist = append(hist, [2]string{"Cache db", pipeline.CachePath()})
	fmt.Print(cli.RenderKeyValues(hist))
	fmt.Println()

	switch {
	case out.Server != nil:
		fmt.Print(cli.RenderKeyValues([][2]string{
			{"Server", ok + "  " + cli.RenderMuted(fmt.Sprintf("up %s", cli.FormatDuration(int64(time.Since(out.Server.StartedAt).Seconds()))))},
			{"Polls", cli.FormatNumber(out.Server.PollCount)},
			{"Subscribers", cli.FormatNumber(int64(out.Server.SubscriberCount))},
		}))
	case out.ServerErr != "":
		fmt.Println("  " + cli.RenderWarning("server: "+out.ServerErr))
	default:
		fmt.Println("  " + cli.RenderMuted("Server not running. Start it with `emiscope serve --detach`."))
	}
	fmt.Println()

	if !a.Ready {
		fmt.Fprintln(os.Stderr, "  Run `emiscope setup` to point emiscope at the models directory.")
	}
}

func infoRow(role string, info *predictor.Info) []string {
	trees, drift := "-", "none"
	if info.Trees > 0 {
		trees = cli.FormatNumber(int64(info.Trees))
	}
	if n := len(info.SchemaDrift); n > 0 {
		drift = fmt.Sprintf("%d issues", n)
	}
	objective := info.Objective
	if objective == "" {
		objective = "-"
	}
	return []string{role, info.Kind, objective, trees, drift, info.Path}
}
