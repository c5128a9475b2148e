package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/client"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/server"
)

var (
	flagHistoryLimit  int
	flagHistoryRemote string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent predictions from the CLI, dashboard, batch runs and server",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Number of predictions to list")
	historyCmd.Flags().StringVar(&flagHistoryRemote, "remote", "", "Read history from a running server instead")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	var hr server.HistoryResponse
	if flagHistoryRemote != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		resp, err := client.New(flagHistoryRemote).History(ctx, flagHistoryLimit)
		if err != nil {
			return err
		}
		hr = *resp
	} else {
		db := openStore()
		if db == nil {
			return errors.New("prediction history is unavailable")
		}
		defer func() { _ = db.Close() }()

		var err error
		if hr.Records, err = db.RecentPredictions(flagHistoryLimit); err != nil {
			return err
		}
		if hr.Summary, err = db.SummarizeHistory(); err != nil {
			return err
		}
	}

	if flagJSON {
		return printJSON(hr)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("PREDICTION HISTORY"))
	fmt.Println()

	sum := hr.Summary
	pairs := [][2]string{{"Predictions", cli.FormatNumber(int64(sum.Total))}}
	for l := predictor.Eligible; l <= predictor.NotEligible; l++ {
		pairs = append(pairs, [2]string{l.String(), cli.FormatNumber(int64(sum.ByLabel[l.String()]))})
	}
	pairs = append(pairs, [2]string{"Avg max EMI", cli.FormatRupees(sum.AvgEMI)})
	fmt.Print(cli.RenderKeyValues(pairs))
	fmt.Println()

	if len(hr.Records) == 0 {
		fmt.Println("  No predictions yet.")
		return nil
	}

	rows := make([][]string, 0, len(hr.Records))
	for _, r := range hr.Records {
		label, emi, ratio := "-", "-", "-"
		if r.Label != "" {
			label = cli.RenderLabel(r.Label)
		}
		if r.MaxEMI != nil {
			emi = cli.FormatRupees(*r.MaxEMI)
		}
		if r.EMIRatioPct != nil {
			ratio = cli.FormatPercent(*r.EMIRatioPct)
		}
		rows = append(rows, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Source,
			r.Task,
			label,
			emi,
			ratio,
			shortID(r.ID),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"When", "Source", "Task", "Label", "Max EMI", "Ratio", "ID"},
		Rows:    rows,
	}))
	return nil
}
