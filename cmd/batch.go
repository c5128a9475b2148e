package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/dataset"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/store"
)

var (
	flagBatchOutput string
	flagBatchTask   string
	flagBatchRecord bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <profiles.csv>",
	Short: "Score every row of a CSV of profiles",
	Long: "Reads a CSV whose header names profile attributes, fills absent or empty cells " +
		"from the configured defaults, and writes one decision per row as CSV.",
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&flagBatchOutput, "output", "o", "", "Output CSV file (default stdout)")
	batchCmd.Flags().StringVar(&flagBatchTask, "task", inference.TaskBoth, "both, eligibility or max_emi")
	batchCmd.Flags().BoolVar(&flagBatchRecord, "record", false, "Also save each decision to prediction history")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(_ *cobra.Command, args []string) error {
	switch flagBatchTask {
	case inference.TaskBoth, inference.TaskEligibility, inference.TaskMaxEMI:
	default:
		return fmt.Errorf("unknown task %q", flagBatchTask)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	ic, err := inference.LoadContext(cfg.ArtifactPaths(), log)
	if err != nil {
		return err
	}
	rows, err := dataset.ReadProfiles(args[0], cfg.Defaults)
	if err != nil {
		return err
	}

	var db *store.Cache
	if flagBatchRecord {
		if db = openStore(); db != nil {
			defer func() { _ = db.Close() }()
		}
	}

	out := io.Writer(os.Stdout)
	if flagBatchOutput != "" {
		f, err := os.Create(flagBatchOutput) //nolint:gosec // output path is supplied by the local user
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	table, failed := scoreRows(ic, rows, flagBatchTask, db, log)
	if err := table.WriteCSV(out); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scored %d rows, %d failed\n", len(rows)-failed, failed)
	}
	return nil
}

// scoreRows predicts every row and returns the result table and the number of
// rows that could not be scored. Failed rows keep their line and error.
func scoreRows(ic *inference.Context, rows []dataset.Row, task string, db *store.Cache, log logger.Logger) (*dataset.Table, int) {
	header := []string{"line", "request_id"}
	if task != inference.TaskMaxEMI {
		header = append(header, "label")
		for l := predictor.Eligible; l <= predictor.NotEligible; l++ {
			header = append(header, "p_"+strings.ReplaceAll(strings.ToLower(l.String()), " ", "_"))
		}
	}
	if task != inference.TaskEligibility {
		header = append(header, "max_monthly_emi", "emi_to_salary_pct")
	}
	header = append(header, "error")
	t := dataset.NewTable(header...)

	failed := 0
	for _, r := range rows {
		line := fmt.Sprintf("%d", r.Line)
		if r.Err != nil {
			failed++
			t.Append(padRow(len(header), line, r.Err.Error())...)
			continue
		}
		d, err := predictLocal(ic, task, r.Profile)
		if err != nil {
			failed++
			t.Append(padRow(len(header), line, err.Error())...)
			continue
		}

		rec := []string{line, d.RequestID}
		if e := d.Eligibility; e != nil {
			rec = append(rec, e.Name)
			for _, pr := range e.Probabilities {
				rec = append(rec, dataset.FormatFloat(pr, 4))
			}
		}
		if m := d.MaxEMI; m != nil {
			rec = append(rec, m.Amount.StringFixed(2), dataset.FormatFloat(m.SalaryRatioPct, 2))
		}
		rec = append(rec, "")
		t.Append(rec...)

		if db != nil {
			if err := db.SavePrediction(inference.Record("batch", task, r.Profile, d)); err != nil {
				log.WithError(err).Warn("prediction not saved to history", map[string]interface{}{"line": r.Line})
			}
		}
	}
	return t, failed
}

// padRow builds a record with the line first, the error last and empty cells
// between.
func padRow(width int, line, errText string) []string {
	row := make([]string, width)
	row[0] = line
	row[width-1] = errText
	return row
}
