package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Compare logged model runs and show the final models",
	RunE:  runExperiments,
}

func init() {
	rootCmd.AddCommand(experimentsCmd)
}

type experimentsOutput struct {
	Experiment  string                `json:"experiment"`
	Experiments []model.Experiment    `json:"experiments"`
	Counts      map[model.RunType]int `json:"counts"`
	Comparison  model.Comparison      `json:"comparison"`
	Final       model.FinalModels     `json:"final"`
}

func runExperiments(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	result, err := loadRuns(cfg)
	if err != nil {
		return err
	}
	if result.Experiment == nil {
		fmt.Printf("\n  No experiments found under %s.\n", cfg.Experiments.MLrunsDir)
		return nil
	}

	out := experimentsOutput{
		Experiment:  result.Experiment.Name,
		Experiments: result.Experiments,
		Counts:      pipeline.CountByType(result.Runs),
		Comparison:  pipeline.Compare(result.Runs),
		Final:       pipeline.SelectFinal(result.Runs),
	}
	if flagJSON {
		return printJSON(out)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("EXPERIMENT  " + out.Experiment))
	fmt.Println()

	fmt.Print(renderComparison("Classification models", out.Comparison.Classification,
		[]string{"accuracy", "precision", "recall", "f1_score"}, out.Final.Classifier))
	fmt.Print(renderComparison("Regression models", out.Comparison.Regression,
		[]string{"rmse", "mae", "r2"}, out.Final.Regressor))

	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Final classifier", finalName(out.Final.Classifier)},
		{"Final regressor", finalName(out.Final.Regressor)},
	}))
	if result.ParseErrors > 0 || result.RunErrors > 0 {
		fmt.Println()
		fmt.Println("  " + cli.RenderWarning(fmt.Sprintf("%d malformed metric lines, %d unreadable runs",
			result.ParseErrors, result.RunErrors)))
	}
	fmt.Println()
	return nil
}

func renderComparison(title string, entries []model.ModelEntry, cols []string, final *model.Run) string {
	if len(entries) == 0 {
		return fmt.Sprintf("  %s: no runs logged\n\n", title)
	}
	headers := append([]string{"Model"}, cols...)
	headers = append(headers, "Params")

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if final != nil && final.RunID == e.RunID {
			name = "★ " + name
		}
		row := []string{name}
		for _, c := range cols {
			cell := "-"
			if v, ok := e.Metrics[c]; ok {
				cell = pipeline.FormatMetric(c, v)
			}
			row = append(row, cell)
		}
		row = append(row, pipeline.FormatParams(e.Params))
		rows = append(rows, row)
	}
	return cli.RenderTable(cli.Table{Title: title, Headers: headers, Rows: rows})
}

func finalName(r *model.Run) string {
	if r == nil {
		return "none"
	}
	metric := model.PrimaryMetric(r.Type)
	if v, ok := r.Metric(metric); ok {
		return fmt.Sprintf("%s (%s %s)", r.Name, metric, pipeline.FormatMetric(metric, v))
	}
	return r.Name
}
