// Package cmd implements the emiscope CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/profile"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cfg)
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [Artifacts]")
	fmt.Printf("    Models dir:      %s\n", cfg.Artifacts.ModelsDir)
	fmt.Printf("    Schema:          %s\n", cfg.Artifacts.SchemaFile)
	fmt.Printf("    Classifier:      %s\n", cfg.Artifacts.ClassifierFile)
	fmt.Printf("    Regressor:       %s\n", cfg.Artifacts.RegressorFile)
	fmt.Println()

	fmt.Println("  [Experiments]")
	fmt.Printf("    Tracking dir:    %s\n", cfg.Experiments.MLrunsDir)
	fmt.Printf("    Experiment:      %s\n", cfg.Experiments.ExperimentName)
	fmt.Println()

	fmt.Println("  [Dataset]")
	fmt.Printf("    Path:            %s\n", cfg.Dataset.Path)
	fmt.Println()

	fmt.Println("  [Server]")
	fmt.Printf("    Address:         %s\n", cfg.Server.Addr)
	fmt.Printf("    Poll interval:   %ds\n", cfg.Server.PollIntervalSec)
	fmt.Printf("    Events buffer:   %d\n", cfg.Server.EventsBuffer)
	fmt.Printf("    Strict levels:   %v\n", cfg.Server.Strict)
	if cfg.Server.RedisURL != "" {
		fmt.Printf("    Redis cache:     %s (ttl %ds)\n", cfg.Server.RedisURL, cfg.Server.CacheTTLSec)
	} else {
		fmt.Println("    Redis cache:     disabled")
	}
	fmt.Println()

	fmt.Println("  [Logging]")
	fmt.Printf("    Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("    Format:          %s\n", cfg.Logging.Format)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme:           %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  [Defaults]")
	num, cat := cfg.Defaults.Numeric(), cfg.Defaults.Categorical()
	for _, k := range profile.NumericFields {
		fmt.Printf("    %-24s %s\n", k+":", cli.FormatValue(num[k]))
	}
	for _, k := range profile.CategoricalFields {
		fmt.Printf("    %-24s %s\n", k+":", cat[k])
	}
	fmt.Println()

	fmt.Println("  Run `emiscope setup` to reconfigure.")
	return nil
}
