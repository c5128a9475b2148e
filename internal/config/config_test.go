package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8790" {
		t.Errorf("Server.Addr = %q, want 127.0.0.1:8790", cfg.Server.Addr)
	}
	if cfg.Experiments.ExperimentName != "EMIPredict_AI" {
		t.Errorf("ExperimentName = %q, want EMIPredict_AI", cfg.Experiments.ExperimentName)
	}
	if cfg.Defaults.CreditScore != 750 {
		t.Errorf("Defaults.CreditScore = %v, want 750", cfg.Defaults.CreditScore)
	}
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = "0.0.0.0:9000"

[defaults]
credit_score = 680.0
emi_scenario = "Vehicle EMI"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q, want 0.0.0.0:9000", cfg.Server.Addr)
	}
	if cfg.Server.PollIntervalSec != 15 {
		t.Errorf("PollIntervalSec = %d, want default 15", cfg.Server.PollIntervalSec)
	}
	if cfg.Defaults.CreditScore != 680 || cfg.Defaults.EMIScenario != "Vehicle EMI" {
		t.Errorf("Defaults = %v/%q, want 680/Vehicle EMI", cfg.Defaults.CreditScore, cfg.Defaults.EMIScenario)
	}
	if cfg.Defaults.BankBalance != 50000 {
		t.Errorf("Defaults.BankBalance = %v, want default 50000", cfg.Defaults.BankBalance)
	}
}

func TestLoadFrom_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\naddr="), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("LoadFrom accepted malformed TOML")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[artifacts]\nmodels_dir = \"/from/file\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvModelsDir, "/from/env")
	t.Setenv(EnvRedisURL, "redis://cache:6379/1")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvDataset, "/data/emi.csv")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Artifacts.ModelsDir != "/from/env" {
		t.Errorf("ModelsDir = %q, want /from/env", cfg.Artifacts.ModelsDir)
	}
	if cfg.Server.RedisURL != "redis://cache:6379/1" {
		t.Errorf("RedisURL = %q", cfg.Server.RedisURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Dataset.Path != "/data/emi.csv" {
		t.Errorf("Dataset.Path = %q, want /data/emi.csv", cfg.Dataset.Path)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "EMISCOPE_MLRUNS_DIR=/dotenv/mlruns\nEMISCOPE_LOG_LEVEL=warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvLogLevel, "error")
	_ = os.Unsetenv(EnvMLrunsDir)
	t.Cleanup(func() { _ = os.Unsetenv(EnvMLrunsDir) })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvMLrunsDir); got != "/dotenv/mlruns" {
		t.Errorf("%s = %q, want /dotenv/mlruns", EnvMLrunsDir, got)
	}
	if got := os.Getenv(EnvLogLevel); got != "error" {
		t.Errorf("%s = %q, want the pre-set error", EnvLogLevel, got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("LoadDotEnv(missing) = %v, want nil", err)
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Appearance.Theme = "catppuccin-mocha"
	cfg.Server.CacheTTLSec = 30

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %o, want 600", perm)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if got.Appearance.Theme != "catppuccin-mocha" {
		t.Errorf("Theme = %q", got.Appearance.Theme)
	}
	if got.CacheTTL() != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", got.CacheTTL())
	}
	if got.Defaults != cfg.Defaults {
		t.Errorf("Defaults did not round-trip: %+v", got.Defaults)
	}
}

func TestArtifactPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Artifacts.ModelsDir = "/srv/models"
	p := cfg.ArtifactPaths()
	if p.Schema != "/srv/models/feature_columns.json" {
		t.Errorf("Schema = %q", p.Schema)
	}
	if p.Regressor != "/srv/models/regressor.json" {
		t.Errorf("Regressor = %q", p.Regressor)
	}
}

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv(EnvConfig, "")
	if got := ConfigPath(); got != "/tmp/xdg/emiscope/config.toml" {
		t.Errorf("ConfigPath = %q", got)
	}
}

func TestConfigPath_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.toml")
	t.Setenv(EnvConfig, path)
	if got := ConfigPath(); got != path {
		t.Errorf("ConfigPath = %q, want %q", got, path)
	}
	if Exists() {
		t.Error("Exists = true before save")
	}
	if err := Save(DefaultConfig()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists() {
		t.Error("Exists = false after save")
	}
}
