package cmd

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/dataset"
)

var flagExploreCorr []string

var exploreCmd = &cobra.Command{
	Use:   "explore [dataset.csv]",
	Short: "Summarize the training dataset",
	Long: "Prints record counts, missing values, per-column statistics and the " +
		"eligibility distribution of the training CSV (default: [dataset] path).",
	Args: cobra.MaximumNArgs(1),
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().StringArrayVar(&flagExploreCorr, "corr", nil, "Pearson correlation of two numeric columns, a,b (repeatable)")
	rootCmd.AddCommand(exploreCmd)
}

type exploreOutput struct {
	*dataset.Summary
	Correlations map[string]*float64 `json:"correlations,omitempty"` // nil when undefined
}

func runExplore(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Dataset.Path
	if len(args) == 1 {
		path = args[0]
	}

	df, err := dataset.Load(path)
	if err != nil {
		return err
	}
	out := exploreOutput{Summary: dataset.Describe(df)}
	out.Path = path

	for _, pair := range flagExploreCorr {
		a, b, ok := strings.Cut(pair, ",")
		if !ok {
			return fmt.Errorf("--corr %q: want two columns separated by a comma", pair)
		}
		a, b = strings.TrimSpace(a), strings.TrimSpace(b)
		r, err := dataset.Correlation(df, a, b)
		if err != nil {
			return err
		}
		if out.Correlations == nil {
			out.Correlations = make(map[string]*float64)
		}
		if math.IsNaN(r) {
			out.Correlations[a+","+b] = nil
		} else {
			out.Correlations[a+","+b] = &r
		}
	}

	if flagJSON {
		return printJSON(out)
	}

	s := out.Summary
	fmt.Println()
	fmt.Println(cli.RenderTitle("DATASET OVERVIEW"))
	fmt.Println()
	fmt.Print(cli.RenderKeyValues([][2]string{
		{"File", s.Path},
		{"Records", cli.FormatNumber(int64(s.Records))},
		{"Features", cli.FormatNumber(int64(s.Features))},
		{"Missing values", cli.FormatNumber(int64(s.MissingValues))},
		{"Duplicate rows", cli.FormatNumber(int64(s.DuplicateRows))},
	}))
	fmt.Println()

	if len(s.Eligibility) > 0 {
		rows := make([][]string, 0, len(s.Eligibility))
		for _, label := range dataset.SortedKeys(s.Eligibility) {
			n := s.Eligibility[label]
			rows = append(rows, []string{
				cli.RenderLabel(label),
				cli.FormatNumber(int64(n)),
				cli.FormatPercent(float64(n) / float64(s.Records) * 100),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Eligibility distribution",
			Headers: []string{"Label", "Rows", "Share"},
			Rows:    rows,
		}))
	}

	if len(s.Crosstab) > 0 {
		labels := dataset.SortedKeys(s.Eligibility)
		scenarios := make([]string, 0, len(s.Crosstab))
		for sc := range s.Crosstab {
			scenarios = append(scenarios, sc)
		}
		sort.Strings(scenarios)

		rows := make([][]string, 0, len(scenarios))
		for _, sc := range scenarios {
			row := []string{sc}
			for _, l := range labels {
				row = append(row, cli.FormatNumber(int64(s.Crosstab[sc][l])))
			}
			rows = append(rows, row)
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Scenario by eligibility",
			Headers: append([]string{"Scenario"}, labels...),
			Rows:    rows,
		}))
	}

	rows := make([][]string, 0, len(s.Numeric))
	for _, c := range s.Numeric {
		rows = append(rows, []string{
			c.Name,
			cli.FormatNumber(int64(c.Count)),
			cli.FormatValue(c.Mean),
			cli.FormatValue(c.Std),
			cli.FormatValue(c.Min),
			cli.FormatValue(c.P25),
			cli.FormatValue(c.P50),
			cli.FormatValue(c.P75),
			cli.FormatValue(c.Max),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Numeric columns",
		Headers: []string{"Column", "Count", "Mean", "Std", "Min", "25%", "50%", "75%", "Max"},
		Rows:    rows,
	}))

	if len(out.Correlations) > 0 {
		keys := make([]string, 0, len(out.Correlations))
		for k := range out.Correlations {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		crow := make([][]string, 0, len(keys))
		for _, k := range keys {
			v := "n/a"
			if r := out.Correlations[k]; r != nil {
				v = fmt.Sprintf("%+.4f", *r)
			}
			crow = append(crow, []string{k, v})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Correlation",
			Headers: []string{"Columns", "Pearson r"},
			Rows:    crow,
		}))
	}
	return nil
}
