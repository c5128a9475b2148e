package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/emiscope/internal/model"
)

// writeRun lays out a run directory from a map of relative path -> content.
func writeRun(t *testing.T, files map[string]string) DiscoveredRun {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "abc123")
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	return DiscoveredRun{Path: dir, RunID: "abc123", ExperimentID: "1"}
}

func TestParseRun_Classification(t *testing.T) {
	dr := writeRun(t, map[string]string{
		"metrics/accuracy":          "1700000000000 0.91 0\n1700000001000 0.94 1\n",
		"metrics/f1_score":          "1700000000000 0.9\n",
		"params/max_depth":          "6\n",
		"params/n_estimators":       " 200 ",
		"tags/mlflow.runName":       "XGBoost_Classifier\n",
		"meta.yaml":                 "run_id: abc123\nrun_name: ignored\nstart_time: 1700000000000\nend_time: 1700000090000\nstatus: 3\n",
		"artifacts/model/model.pkl": "binary",
	})

	result := ParseRun(dr)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	r := result.Run

	if r.Name != "XGBoost_Classifier" {
		t.Errorf("Name = %q, want XGBoost_Classifier", r.Name)
	}
	if r.Type != model.RunClassification {
		t.Errorf("Type = %q, want classification", r.Type)
	}
	if r.Metrics["accuracy"] != 0.94 {
		t.Errorf("accuracy = %v, want 0.94 (last line wins)", r.Metrics["accuracy"])
	}
	if r.Params["n_estimators"] != "200" {
		t.Errorf("n_estimators = %q, want trimmed 200", r.Params["n_estimators"])
	}
	if r.Status != "FINISHED" {
		t.Errorf("Status = %q, want FINISHED", r.Status)
	}
	if r.DurationSecs() != 90 {
		t.Errorf("DurationSecs = %d, want 90", r.DurationSecs())
	}
	if !r.StartTime.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("StartTime = %v", r.StartTime)
	}
}

func TestParseRun_RegressionAndNameFallbacks(t *testing.T) {
	dr := writeRun(t, map[string]string{
		"metrics/rmse": "1 4120.5\n",
		"metrics/r2":   "1 0.87\n",
		"meta.yaml":    "run_name: LinearRegression\nstatus: FAILED\n",
	})

	r := ParseRun(dr).Run
	if r.Type != model.RunRegression {
		t.Errorf("Type = %q, want regression", r.Type)
	}
	if r.Name != "LinearRegression" {
		t.Errorf("Name = %q, want meta run_name", r.Name)
	}
	if r.Status != "FAILED" {
		t.Errorf("Status = %q, want FAILED", r.Status)
	}

	bare := writeRun(t, map[string]string{"metrics/loss": "1 0.3\n"})
	r = ParseRun(bare).Run
	if r.Name != "abc123" {
		t.Errorf("Name = %q, want run id fallback", r.Name)
	}
	if r.Type != model.RunUnknown {
		t.Errorf("Type = %q, want unknown", r.Type)
	}
}

func TestParseRun_MalformedMetricLines(t *testing.T) {
	dr := writeRun(t, map[string]string{
		"metrics/accuracy": "1 0.8\ngarbage\n2 notanumber\n\n3 0.85 2\n",
		"metrics/broken":   "only-one-field\n",
	})

	result := ParseRun(dr)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.ParseErrors != 3 {
		t.Errorf("ParseErrors = %d, want 3", result.ParseErrors)
	}
	if got := result.Run.Metrics["accuracy"]; got != 0.85 {
		t.Errorf("accuracy = %v, want 0.85", got)
	}
	if _, ok := result.Run.Metrics["broken"]; ok {
		t.Error("metric with no valid line should be absent")
	}
}

func TestParseRun_MissingDir(t *testing.T) {
	result := ParseRun(DiscoveredRun{Path: filepath.Join(t.TempDir(), "gone")})
	if result.Err == nil {
		t.Fatal("expected error for missing run dir")
	}
}

func TestParseMetricLine(t *testing.T) {
	tests := []struct {
		line  string
		value float64
		step  int64
		ok    bool
	}{
		{"1700000000000 0.5", 0.5, 0, true},
		{"1700000000000 0.5 7", 0.5, 7, true},
		{"  12   -3.25e2  ", -325, 0, true},
		{"1700000000000", 0, 0, false},
		{"x 0.5", 0, 0, false},
		{"1 0.5 2 3", 0, 0, false},
		{"1 0.5 step", 0, 0, false},
	}
	for _, tt := range tests {
		_, v, step, ok := ParseMetricLine([]byte(tt.line))
		if ok != tt.ok || v != tt.value || step != tt.step {
			t.Errorf("ParseMetricLine(%q) = (%v, %d, %v), want (%v, %d, %v)",
				tt.line, v, step, ok, tt.value, tt.step, tt.ok)
		}
	}
}

func FuzzParseMetricLine(f *testing.F) {
	f.Add([]byte("1700000000000 0.91 3"))
	f.Add([]byte(""))
	f.Add([]byte("1 NaN"))
	f.Fuzz(func(t *testing.T, line []byte) {
		_, _, _, _ = ParseMetricLine(line)
	})
}
