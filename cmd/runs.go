package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
)

var flagRunsType string

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List experiment runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVarP(&flagRunsType, "type", "t", "", "Only classification or regression runs")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	result, err := loadRuns(cfg)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		r, err := lookupRun(result.Runs, args[0])
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(r)
		}
		printRunDetail(r)
		return nil
	}

	runs := result.Runs
	if flagRunsType != "" {
		runs = pipeline.FilterByType(runs, model.RunType(flagRunsType))
	}
	if flagJSON {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("\n  No runs found.")
		return nil
	}

	fmt.Println()
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		metric := model.PrimaryMetric(r.Type)
		cell := "-"
		if v, ok := r.Metric(metric); ok {
			cell = metric + " " + pipeline.FormatMetric(metric, v)
		}
		rows = append(rows, []string{
			shortID(r.RunID),
			r.Name,
			string(r.Type),
			r.Status,
			cell,
			cli.FormatAge(r.StartTime),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Runs (%d)", len(runs)),
		Headers: []string{"Run", "Name", "Type", "Status", "Primary", "Started"},
		Rows:    rows,
	}))
	return nil
}

func printRunDetail(r model.Run) {
	fmt.Println()
	fmt.Println(cli.RenderTitle("RUN  " + r.Name))
	fmt.Println()
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Run ID", r.RunID},
		{"Type", string(r.Type)},
		{"Status", r.Status},
		{"Started", cli.FormatAge(r.StartTime)},
		{"Duration", cli.FormatDuration(r.DurationSecs())},
	}))
	fmt.Println()

	mrows := make([][]string, 0, len(r.Metrics))
	for _, name := range pipeline.MetricNames([]model.Run{r}) {
		mrows = append(mrows, []string{name, pipeline.FormatMetric(name, r.Metrics[name])})
	}
	fmt.Print(cli.RenderTable(cli.Table{Title: "Metrics", Headers: []string{"Metric", "Value"}, Rows: mrows}))

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	prows := make([][]string, 0, len(keys))
	for _, k := range keys {
		prows = append(prows, []string{k, r.Params[k]})
	}
	fmt.Print(cli.RenderTable(cli.Table{Title: "Params", Headers: []string{"Param", "Value"}, Rows: prows}))
}

// lookupRun accepts a full run id or a unique prefix of one, as listed by
// `emiscope runs`.
func lookupRun(runs []model.Run, id string) (model.Run, error) {
	if r, ok := pipeline.FindRun(runs, id); ok {
		return r, nil
	}
	var match []model.Run
	for _, r := range runs {
		if strings.HasPrefix(r.RunID, id) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return model.Run{}, fmt.Errorf("run %s not found", id)
	case 1:
		return match[0], nil
	}
	return model.Run{}, fmt.Errorf("run prefix %s is ambiguous (%d runs)", id, len(match))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
