// Package model defines domain types for experiment runs and prediction history.
package model

import "time"

// Experiment is one tracked experiment directory.
type Experiment struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LifecycleStage string `json:"lifecycle_stage,omitempty"`
	Dir            string `json:"-"`
}

// RunType is inferred from which headline metric a run logged.
type RunType string

const (
	RunClassification RunType = "classification"
	RunRegression     RunType = "regression"
	RunUnknown        RunType = "unknown"
)

// Run holds the parsed metadata of a single training run.
type Run struct {
	RunID        string    `json:"run_id"`
	ExperimentID string    `json:"experiment_id"`
	Name         string    `json:"name"`
	Type         RunType   `json:"type"`
	Status       string    `json:"status,omitempty"`
	Dir          string    `json:"-"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`

	// Metrics holds the latest logged value per metric.
	Metrics map[string]float64 `json:"metrics"`
	Params  map[string]string  `json:"params"`
}

// DurationSecs returns the wall-clock length of the run, or 0 when either
// bound is missing.
func (r Run) DurationSecs() int64 {
	if r.StartTime.IsZero() || r.EndTime.IsZero() || r.EndTime.Before(r.StartTime) {
		return 0
	}
	return int64(r.EndTime.Sub(r.StartTime).Seconds())
}

// Metric returns the named metric and whether the run logged it.
func (r Run) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// PrimaryMetric names the metric runs of type t are ranked by.
func PrimaryMetric(t RunType) string {
	switch t {
	case RunClassification:
		return "accuracy"
	case RunRegression:
		return "r2"
	}
	return ""
}

// ModelEntry is one row of a model comparison.
type ModelEntry struct {
	RunID   string             `json:"run_id"`
	Name    string             `json:"name"`
	Metrics map[string]float64 `json:"metrics"`
	Params  map[string]string  `json:"params"`
}

// Comparison groups runs by task.
type Comparison struct {
	Classification []ModelEntry `json:"classification"`
	Regression     []ModelEntry `json:"regression"`
}

// FinalModels is the pair of runs considered production models.
type FinalModels struct {
	Classifier *Run `json:"classifier,omitempty"`
	Regressor  *Run `json:"regressor,omitempty"`
}
