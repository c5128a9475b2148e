package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/cli"
	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/pipeline"
	"github.com/theirongolddev/emiscope/internal/store"
)

var (
	flagConfig    string
	flagModelsDir string
	flagMLrunsDir string
	flagLogLevel  string
	flagLogFormat string
	flagJSON      bool
	flagNoCache   bool
	flagQuiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "emiscope",
	Short: "EMI eligibility and affordability decision support",
	Long: "Score applicant profiles against trained eligibility and max-EMI models, " +
		"compare experiment runs, and explore the training data.",
	SilenceUsage: true,
	RunE:         runStatus,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default $XDG_CONFIG_HOME/emiscope/config.toml)")
	pf.StringVar(&flagModelsDir, "models-dir", "", "Directory holding the feature schema and model artifacts")
	pf.StringVar(&flagMLrunsDir, "mlruns-dir", "", "Experiment tracking directory")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: console or json")
	pf.BoolVar(&flagJSON, "json", false, "Print machine-readable JSON")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Skip the SQLite run cache, reparse everything")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (config.Config, error) {
	if flagConfig != "" {
		if err := os.Setenv(config.EnvConfig, flagConfig); err != nil {
			return config.DefaultConfig(), err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagModelsDir != "" {
		cfg.Artifacts.ModelsDir = flagModelsDir
	}
	if flagMLrunsDir != "" {
		cfg.Experiments.MLrunsDir = flagMLrunsDir
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Logging.Format = flagLogFormat
	}
	return cfg, nil
}

func newLogger(cfg config.Config) logger.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format)
}

// openStore opens the shared SQLite store. Callers treat a nil store as
// "history unavailable".
func openStore() *store.Cache {
	db, err := store.Open(pipeline.CachePath())
	if err != nil {
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  History unavailable: %v\n", err)
		}
		return nil
	}
	return db
}

// loadRuns is the shared run loading path used by the experiment commands.
// Uses the SQLite cache when available for fast subsequent runs.
func loadRuns(cfg config.Config) (*pipeline.LoadResult, error) {
	dir := cfg.Experiments.MLrunsDir
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scanning %s...\n", dir)
	}

	progressFn := func(current, total int) {
		if flagQuiet {
			return
		}
		if current%25 == 0 || current == total {
			fmt.Fprintf(os.Stderr, "\r  Parsing [%d/%d]", current, total)
		}
	}

	if !flagNoCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "  Cache unavailable, doing full parse\n")
			}
		} else {
			defer func() { _ = cache.Close() }()

			cr, err := pipeline.LoadWithCache(dir, cfg.Experiments.ExperimentName, cache, progressFn)
			if err != nil {
				if !flagQuiet {
					fmt.Fprintf(os.Stderr, "\n  Cache error, falling back to full parse\n")
				}
			} else {
				if !flagQuiet && cr.TotalRuns > 0 {
					if cr.Reparsed == 0 {
						fmt.Fprintf(os.Stderr, "\r  Loaded %s runs from cache    \n",
							cli.FormatNumber(int64(len(cr.Runs))))
					} else {
						fmt.Fprintf(os.Stderr, "\r  %s cached + %d reparsed    \n",
							cli.FormatNumber(int64(cr.CacheHits)), cr.Reparsed)
					}
				}
				return &cr.LoadResult, nil
			}
		}
	}

	result, err := pipeline.Load(dir, cfg.Experiments.ExperimentName, progressFn)
	if err != nil {
		return nil, err
	}
	if !flagQuiet && result.TotalRuns > 0 {
		fmt.Fprintf(os.Stderr, "\r  Parsed %s runs    \n", cli.FormatNumber(int64(result.ParsedRuns)))
	}
	return result, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
