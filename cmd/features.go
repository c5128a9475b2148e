package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/client"
	"github.com/theirongolddev/emiscope/internal/features"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/server"
)

var (
	featuresFlags profileFlags
	flagFeatAll   bool
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the engineered features and the model-ready vector for a profile",
	RunE:  runFeatures,
}

func init() {
	featuresFlags.register(featuresCmd)
	featuresCmd.Flags().BoolVar(&flagFeatAll, "all", false, "List every schema column, including zeros")
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(c *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := featuresFlags.read(cfg.Defaults, c.InOrStdin())
	if err != nil {
		return err
	}

	var fr server.FeaturesResponse
	if featuresFlags.remote != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := client.New(featuresFlags.remote).Features(ctx, p, featuresFlags.strict)
		if err != nil {
			return err
		}
		fr = *resp
	} else {
		log := newLogger(cfg)
		defer func() { _ = log.Sync() }()

		ic, err := inference.LoadContext(cfg.ArtifactPaths(), log)
		if err != nil {
			return err
		}
		fr.Vector, fr.Diagnostics = inference.Transform(ic, p)
	}

	if flagJSON {
		return printJSON(fr)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("ENGINEERED FEATURES"))
	fmt.Println()

	derived := fr.Diagnostics.Derived.Map()
	rows := make([][]string, 0, len(derived))
	for _, name := range features.Names {
		rows = append(rows, []string{name, cli.FormatValue(derived[name])})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Derived",
		Headers: []string{"Feature", "Value"},
		Rows:    rows,
	}))

	vrows := make([][]string, 0, len(fr.Vector.Columns))
	for i, col := range fr.Vector.Columns {
		v := fr.Vector.Values[i]
		if v == 0 && !flagFeatAll {
			continue
		}
		vrows = append(vrows, []string{fmt.Sprintf("%d", i), col, cli.FormatValue(v)})
	}
	title := fmt.Sprintf("Model input (%d columns", len(fr.Vector.Columns))
	if !flagFeatAll {
		title += ", zeros hidden"
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   title + ")",
		Headers: []string{"#", "Column", "Value"},
		Rows:    vrows,
	}))

	catRows := make([][]string, 0, len(fr.Diagnostics.Categories))
	for _, r := range fr.Diagnostics.Categories {
		catRows = append(catRows, []string{r.Field, r.Level, r.Status, r.Column})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Categorical encoding",
		Headers: []string{"Field", "Level", "Outcome", "Column"},
		Rows:    catRows,
	}))

	fmt.Print(renderDiagnostics(fr.Diagnostics))
	return nil
}
