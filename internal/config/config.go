// Package config reads and writes the emiscope TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/profile"
)

// Environment variables that override the config file.
const (
	EnvModelsDir = "EMISCOPE_MODELS_DIR"
	EnvMLrunsDir = "EMISCOPE_MLRUNS_DIR"
	EnvRedisURL  = "EMISCOPE_REDIS_URL"
	EnvLogLevel  = "EMISCOPE_LOG_LEVEL"
	EnvDataset   = "EMISCOPE_DATASET"

	// EnvConfig replaces the config file location.
	EnvConfig = "EMISCOPE_CONFIG"
)

// Config holds all emiscope configuration.
type Config struct {
	Artifacts   ArtifactsConfig    `toml:"artifacts"`
	Experiments ExperimentsConfig  `toml:"experiments"`
	Dataset     DatasetConfig      `toml:"dataset"`
	Server      ServerConfig       `toml:"server"`
	Logging     LoggingConfig      `toml:"logging"`
	Appearance  AppearanceConfig   `toml:"appearance"`
	Defaults    profile.RawProfile `toml:"defaults"`
}

// ArtifactsConfig locates the feature schema and the two models.
type ArtifactsConfig struct {
	ModelsDir      string `toml:"models_dir"`
	SchemaFile     string `toml:"schema_file"`
	ClassifierFile string `toml:"classifier_file"`
	RegressorFile  string `toml:"regressor_file"`
}

// ExperimentsConfig locates the experiment tracking store.
type ExperimentsConfig struct {
	MLrunsDir      string `toml:"mlruns_dir"`
	ExperimentName string `toml:"experiment_name"`
}

// DatasetConfig locates the training CSV used by explore and the Dataset tab.
type DatasetConfig struct {
	Path string `toml:"path"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Addr            string `toml:"addr"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	EventsBuffer    int    `toml:"events_buffer"`
	RedisURL        string `toml:"redis_url,omitempty"`
	CacheTTLSec     int    `toml:"cache_ttl_sec"`
	Strict          bool   `toml:"strict"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Artifacts: ArtifactsConfig{
			ModelsDir:      "models",
			SchemaFile:     "feature_columns.json",
			ClassifierFile: "classifier.json",
			RegressorFile:  "regressor.json",
		},
		Experiments: ExperimentsConfig{
			MLrunsDir:      "mlruns",
			ExperimentName: "EMIPredict_AI",
		},
		Dataset: DatasetConfig{
			Path: "data/emi_prediction_dataset.csv",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8790",
			PollIntervalSec: 15,
			EventsBuffer:    200,
			CacheTTLSec:     600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Defaults: profile.Defaults(),
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "emiscope")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "emiscope")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads .env from the working directory, then the config file, then
// applies environment overrides. A missing file yields defaults.
func Load() (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(ConfigPath())
}

// LoadDotEnv exports the variables in path that are not already set. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// LoadFrom reads the config at path and applies environment overrides.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's own config
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvModelsDir); v != "" {
		cfg.Artifacts.ModelsDir = v
	}
	if v := os.Getenv(EnvMLrunsDir); v != "" {
		cfg.Experiments.MLrunsDir = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.Server.RedisURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvDataset); v != "" {
		cfg.Dataset.Path = v
	}
}

// Save writes the config to the default path.
func Save(cfg Config) error {
	return SaveTo(cfg, ConfigPath())
}

// SaveTo writes the config to path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path is the user's own config
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// ArtifactPaths resolves the artifact files inside ModelsDir.
func (c Config) ArtifactPaths() inference.ArtifactPaths {
	a := c.Artifacts
	return inference.PathsIn(a.ModelsDir, a.SchemaFile, a.ClassifierFile, a.RegressorFile)
}

// PollInterval returns the watcher interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Server.PollIntervalSec) * time.Second
}

// CacheTTL returns how long cached decisions live.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Server.CacheTTLSec) * time.Second
}
