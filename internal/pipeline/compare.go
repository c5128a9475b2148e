// Package pipeline loads experiment runs, caches them, and ranks the models
// they produced.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theirongolddev/emiscope/internal/model"
)

// SelectExperiment returns the experiment named preferred, or the first one.
func SelectExperiment(exps []model.Experiment, preferred string) (model.Experiment, bool) {
	if len(exps) == 0 {
		return model.Experiment{}, false
	}
	if preferred == "" {
		preferred = DefaultExperiment
	}
	for _, e := range exps {
		if e.Name == preferred {
			return e, true
		}
	}
	return exps[0], true
}

// FilterByType returns the runs of type t, preserving order.
func FilterByType(runs []model.Run, t model.RunType) []model.Run {
	var out []model.Run
	for _, r := range runs {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// CountByType tallies runs per type.
func CountByType(runs []model.Run) map[model.RunType]int {
	counts := map[model.RunType]int{
		model.RunClassification: 0,
		model.RunRegression:     0,
		model.RunUnknown:        0,
	}
	for _, r := range runs {
		counts[r.Type]++
	}
	return counts
}

// Compare groups classification and regression runs, each sorted by its
// primary metric, best first. Unknown runs are left out.
func Compare(runs []model.Run) model.Comparison {
	var cmp model.Comparison
	for _, t := range []model.RunType{model.RunClassification, model.RunRegression} {
		typed := FilterByType(runs, t)
		rankRuns(typed, model.PrimaryMetric(t))

		entries := make([]model.ModelEntry, 0, len(typed))
		for _, r := range typed {
			entries = append(entries, model.ModelEntry{
				RunID:   r.RunID,
				Name:    r.Name,
				Metrics: r.Metrics,
				Params:  r.Params,
			})
		}
		if t == model.RunClassification {
			cmp.Classification = entries
		} else {
			cmp.Regression = entries
		}
	}
	return cmp
}

// SelectFinal picks the production classifier and regressor. A run named like
// the final model ("XGBoost", "Final") wins within its type; otherwise the
// run with the best primary metric does.
func SelectFinal(runs []model.Run) model.FinalModels {
	pick := func(t model.RunType) *model.Run {
		typed := FilterByType(runs, t)
		if len(typed) == 0 {
			return nil
		}
		var named []model.Run
		for _, r := range typed {
			if IsFinalName(r.Name) {
				named = append(named, r)
			}
		}
		if len(named) > 0 {
			typed = named
		}
		rankRuns(typed, model.PrimaryMetric(t))
		best := typed[0]
		return &best
	}
	return model.FinalModels{
		Classifier: pick(model.RunClassification),
		Regressor:  pick(model.RunRegression),
	}
}

// IsFinalName reports whether a run name marks a final model.
func IsFinalName(name string) bool {
	return strings.Contains(strings.ToLower(name), "xgboost") || strings.Contains(name, "Final")
}

// FindRun returns the run with the given id.
func FindRun(runs []model.Run, id string) (model.Run, bool) {
	for _, r := range runs {
		if r.RunID == id {
			return r, true
		}
	}
	return model.Run{}, false
}

// displayParams are the hyperparameters worth showing in a comparison.
var displayParams = []string{"n_estimators", "max_depth", "max_iter", "C"}

// DisplayParams keeps only the headline hyperparameters.
func DisplayParams(params map[string]string) map[string]string {
	out := make(map[string]string)
	for _, k := range displayParams {
		if v, ok := params[k]; ok {
			out[k] = v
		}
	}
	return out
}

// FormatParams renders DisplayParams as "k=v" pairs in a stable order.
func FormatParams(params map[string]string) string {
	shown := DisplayParams(params)
	parts := make([]string, 0, len(shown))
	for _, k := range displayParams {
		if v, ok := shown[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

var percentMetrics = map[string]bool{
	"accuracy":  true,
	"precision": true,
	"recall":    true,
	"f1_score":  true,
}

// IsPercentMetric reports whether a metric is a fraction shown as a percent.
func IsPercentMetric(name string) bool {
	return percentMetrics[name]
}

// DisplayMetric scales percent metrics stored as fractions to 0-100.
func DisplayMetric(name string, v float64) float64 {
	if IsPercentMetric(name) && v < 1 {
		return v * 100
	}
	return v
}

// FormatMetric renders a metric for tables.
func FormatMetric(name string, v float64) string {
	if IsPercentMetric(name) {
		return fmt.Sprintf("%.2f%%", DisplayMetric(name, v))
	}
	switch name {
	case "rmse", "mae", "mse":
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.4f", v)
}

// MetricNames returns every metric name logged by any of the runs, sorted
// with the percent metrics first.
func MetricNames(runs []model.Run) []string {
	seen := make(map[string]struct{})
	for _, r := range runs {
		for k := range r.Metrics {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := IsPercentMetric(names[i]), IsPercentMetric(names[j])
		if pi != pj {
			return pi
		}
		return names[i] < names[j]
	})
	return names
}

// rankRuns sorts by metric descending; runs without it go last, ties by name.
func rankRuns(runs []model.Run, metric string) {
	sort.SliceStable(runs, func(i, j int) bool {
		vi, oki := runs[i].Metrics[metric]
		vj, okj := runs[j].Metrics[metric]
		if oki != okj {
			return oki
		}
		if vi != vj {
			return vi > vj
		}
		return runs[i].Name < runs[j].Name
	})
}

// sortRuns gives load results a stable order: newest start first, then id.
func sortRuns(runs []model.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartTime.Equal(runs[j].StartTime) {
			return runs[i].StartTime.After(runs[j].StartTime)
		}
		return runs[i].RunID < runs[j].RunID
	})
}
