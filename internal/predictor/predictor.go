// Package predictor evaluates the exported eligibility classifier and EMI
// regressor over aligned feature vectors.
package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/schema"
)

// Classifier returns one probability per class for a feature vector.
type Classifier interface {
	PredictProba(vec []float64) ([]float64, error)
}

// Regressor returns a single value for a feature vector.
type Regressor interface {
	Predict(vec []float64) (float64, error)
}

// Label is the eligibility class index the classifier was trained with.
type Label int

const (
	Eligible    Label = 0
	HighRisk    Label = 1
	NotEligible Label = 2
)

// NumLabels is the number of eligibility classes.
const NumLabels = 3

func (l Label) String() string {
	switch l {
	case Eligible:
		return "Eligible"
	case HighRisk:
		return "High Risk"
	case NotEligible:
		return "Not Eligible"
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ParseLabel maps a display name back to its Label.
func ParseLabel(s string) (Label, bool) {
	for l := Eligible; l <= NotEligible; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// Argmax returns the index of the largest value; ties go to the lowest index.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func softmax(margins []float64) []float64 {
	out := make([]float64, len(margins))
	max := math.Inf(-1)
	for _, m := range margins {
		if m > max {
			max = m
		}
	}
	var sum float64
	for i, m := range margins {
		out[i] = math.Exp(m - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Info describes a loaded artifact.
type Info struct {
	Path         string   `json:"path"`
	Kind         string   `json:"kind"`
	Objective    string   `json:"objective,omitempty"`
	NumClass     int      `json:"num_class,omitempty"`
	Trees        int      `json:"trees,omitempty"`
	FeatureNames []string `json:"feature_names,omitempty"`

	// SchemaDrift lists disagreements between the artifact's own feature
	// names and the loaded schema.
	SchemaDrift []string `json:"schema_drift,omitempty"`
}

// envelope is the on-disk artifact shape shared by every model kind.
type envelope struct {
	Kind         string            `json:"kind"`
	Objective    string            `json:"objective"`
	NumClass     int               `json:"num_class"`
	BaseScore    *float64          `json:"base_score"`
	FeatureNames []string          `json:"feature_names"`
	Trees        []json.RawMessage `json:"trees"`

	Task       string               `json:"task"`
	Intercepts []float64            `json:"intercepts"`
	Weights    map[string][]float64 `json:"weights"`
	Intercept  float64              `json:"intercept"`
	Coef       map[string]float64   `json:"coef"`
}

func readEnvelope(kind, path string) (envelope, error) {
	var env envelope
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return env, apperr.ArtifactMissing(kind, path, err)
		}
		return env, apperr.ArtifactMissing(kind, path, fmt.Errorf("reading model: %w", err))
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, apperr.ArtifactInvalid(kind, path, fmt.Errorf("decoding model: %w", err))
	}
	return env, nil
}

// LoadClassifier reads a classifier artifact and binds it to s.
func LoadClassifier(path string, s *schema.Schema) (Classifier, Info, error) {
	const kind = "classifier"
	env, err := readEnvelope(kind, path)
	if err != nil {
		return nil, Info{}, err
	}
	info := newInfo(path, env, s)

	var clf Classifier
	switch env.Kind {
	case "xgboost":
		clf, err = compileXGBClassifier(env, s)
	case "linear":
		clf, err = compileLinearClassifier(env, s, &info)
	default:
		err = fmt.Errorf("unsupported model kind %q", env.Kind)
	}
	if err != nil {
		return nil, info, apperr.ArtifactInvalid(kind, path, err)
	}
	return clf, info, nil
}

// LoadRegressor reads a regressor artifact and binds it to s. Predictions are
// clamped at zero.
func LoadRegressor(path string, s *schema.Schema) (Regressor, Info, error) {
	const kind = "regressor"
	env, err := readEnvelope(kind, path)
	if err != nil {
		return nil, Info{}, err
	}
	info := newInfo(path, env, s)

	var reg Regressor
	switch env.Kind {
	case "xgboost":
		reg, err = compileXGBRegressor(env, s)
	case "linear":
		reg, err = compileLinearRegressor(env, s, &info)
	default:
		err = fmt.Errorf("unsupported model kind %q", env.Kind)
	}
	if err != nil {
		return nil, info, apperr.ArtifactInvalid(kind, path, err)
	}
	return NonNegative{reg}, info, nil
}

func newInfo(path string, env envelope, s *schema.Schema) Info {
	info := Info{
		Path:         path,
		Kind:         env.Kind,
		Objective:    env.Objective,
		NumClass:     env.NumClass,
		Trees:        len(env.Trees),
		FeatureNames: env.FeatureNames,
	}
	if len(env.FeatureNames) > 0 {
		info.SchemaDrift = FeatureDrift(env.FeatureNames, s)
	}
	return info
}

// FeatureDrift compares a model's feature names with the schema, position by
// position, and describes every disagreement.
func FeatureDrift(names []string, s *schema.Schema) []string {
	var drift []string
	cols := s.Columns()
	if len(names) != len(cols) {
		drift = append(drift, fmt.Sprintf("model has %d features, schema has %d", len(names), len(cols)))
	}
	n := len(names)
	if len(cols) < n {
		n = len(cols)
	}
	for i := 0; i < n; i++ {
		if names[i] != cols[i] {
			drift = append(drift, fmt.Sprintf("position %d: model %q, schema %q", i, names[i], cols[i]))
		}
	}
	return drift
}

// NonNegative clamps a regressor's output at zero.
type NonNegative struct {
	Regressor
}

// Predict implements Regressor.
func (n NonNegative) Predict(vec []float64) (float64, error) {
	v, err := n.Regressor.Predict(vec)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) {
		return 0, nil
	}
	return v, nil
}

func checkWidth(vec []float64, want int) error {
	if len(vec) != want {
		return fmt.Errorf("feature vector has %d values, model expects %d", len(vec), want)
	}
	return nil
}
