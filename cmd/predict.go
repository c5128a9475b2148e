package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/client"
	"github.com/theirongolddev/emiscope/internal/encoding"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
)

var predictFlags profileFlags

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict eligibility and the maximum affordable monthly EMI",
	Example: `  emiscope predict --set monthly_salary=85000 --set credit_score=720
  emiscope predict --profile applicant.json --json`,
	RunE: runPredictTask(inference.TaskBoth),
}

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility",
	Short: "Predict the EMI eligibility class only",
	RunE:  runPredictTask(inference.TaskEligibility),
}

var maxEMICmd = &cobra.Command{
	Use:   "max-emi",
	Short: "Predict the maximum affordable monthly EMI only",
	RunE:  runPredictTask(inference.TaskMaxEMI),
}

func init() {
	for _, c := range []*cobra.Command{predictCmd, eligibilityCmd, maxEMICmd} {
		predictFlags.register(c)
		rootCmd.AddCommand(c)
	}
}

func runPredictTask(task string) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := predictFlags.read(cfg.Defaults, c.InOrStdin())
		if err != nil {
			return err
		}

		var d inference.Decision
		if predictFlags.remote != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			d, err = client.New(predictFlags.remote).Predict(ctx, task, p, predictFlags.strict)
			if err != nil {
				return err
			}
		} else {
			log := newLogger(cfg)
			defer func() { _ = log.Sync() }()

			ic, err := inference.LoadContext(cfg.ArtifactPaths(), log)
			if err != nil {
				return err
			}
			if d, err = predictLocal(ic, task, p); err != nil {
				return err
			}
			if db := openStore(); db != nil {
				if err := db.SavePrediction(inference.Record("cli", task, p, d)); err != nil {
					log.WithError(err).Warn("prediction not saved to history", nil)
				}
				_ = db.Close()
			}
		}

		if flagJSON {
			return printJSON(d)
		}
		fmt.Print(renderDecision(d))
		return nil
	}
}

func predictLocal(ic *inference.Context, task string, p profile.RawProfile) (inference.Decision, error) {
	switch task {
	case inference.TaskEligibility:
		return inference.PredictEligibility(ic, p)
	case inference.TaskMaxEMI:
		return inference.PredictMaxEMI(ic, p)
	}
	return inference.Predict(ic, p)
}

func renderDecision(d inference.Decision) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(cli.RenderTitle("EMI DECISION"))
	b.WriteString("\n\n")

	if e := d.Eligibility; e != nil {
		fmt.Fprintf(&b, "  Eligibility  %s\n\n", cli.RenderLabel(e.Name))
		for i, pr := range e.Probabilities {
			b.WriteString(cli.RenderBar(predictor.Label(i).String(), pr, 30))
			b.WriteString("\n")
		}
		b.WriteString("\n  ")
		b.WriteString(cli.RenderMuted(e.Advice))
		b.WriteString("\n\n")
	}

	if m := d.MaxEMI; m != nil {
		b.WriteString(cli.RenderKeyValues([][2]string{
			{"Max monthly EMI", cli.RenderAmount(cli.FormatAmount(m.Amount))},
			{"Share of salary", cli.FormatPercent(m.SalaryRatioPct)},
			{"Monthly salary", cli.FormatRupees(m.MonthlySalary)},
			{"Requested amount", cli.FormatRupees(m.RequestedAmount)},
		}))
		b.WriteString("\n")
	}

	b.WriteString(renderDiagnostics(d.Diagnostics))

	meta := "  request " + d.RequestID
	if d.Cached {
		meta += " (cached)"
	}
	b.WriteString(cli.RenderMuted(meta))
	b.WriteString("\n\n")
	return b.String()
}

// renderDiagnostics lists the schema substitutions made for the profile, or
// nothing when the row matched cleanly.
func renderDiagnostics(diag inference.Diagnostics) string {
	if diag.Clean() {
		return ""
	}
	var b strings.Builder
	for _, c := range diag.Mismatch.Missing {
		b.WriteString("  " + cli.RenderWarning("missing column zero-filled: "+c) + "\n")
	}
	for _, c := range diag.Mismatch.Extra {
		b.WriteString("  " + cli.RenderWarning("extra column dropped: "+c) + "\n")
	}
	for _, r := range diag.Categories {
		switch r.Outcome {
		case encoding.Unseen:
			b.WriteString("  " + cli.RenderWarning(fmt.Sprintf("%s=%q has no column, encoded as all zeros", r.Field, r.Level)) + "\n")
		case encoding.Unmapped:
			b.WriteString("  " + cli.RenderWarning(fmt.Sprintf("%s has no indicator columns in the schema", r.Field)) + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}
