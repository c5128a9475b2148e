package predictor

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.MustNew("monthly_salary", "credit_score", "dti_ratio")
}

func writeModel(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// Two rounds of three classes. Low credit pushes class 2, high DTI pushes class 1.
const xgbClassifierJSON = `{
  "kind": "xgboost",
  "objective": "multi:softprob",
  "num_class": 3,
  "base_score": 0.5,
  "feature_names": ["monthly_salary", "credit_score", "dti_ratio"],
  "trees": [
    {"nodeid": 0, "split": "credit_score", "split_condition": 650, "yes": 1, "no": 2, "missing": 1,
     "children": [{"nodeid": 1, "leaf": -1.0}, {"nodeid": 2, "leaf": 1.0}]},
    {"nodeid": 0, "split": "dti_ratio", "split_condition": 0.4, "yes": 1, "no": 2, "missing": 1,
     "children": [{"nodeid": 1, "leaf": -0.5}, {"nodeid": 2, "leaf": 1.5}]},
    {"nodeid": 0, "split": "f1", "split_condition": 650, "yes": 1, "no": 2, "missing": 2,
     "children": [{"nodeid": 1, "leaf": 2.0}, {"nodeid": 2, "leaf": -1.0}]},
    {"nodeid": 0, "leaf": 0.1},
    {"nodeid": 0, "leaf": 0.0},
    {"nodeid": 0, "leaf": 0.0}
  ]
}`

func TestLoadClassifier_XGBoost(t *testing.T) {
	clf, info, err := LoadClassifier(writeModel(t, xgbClassifierJSON), testSchema())
	require.NoError(t, err)
	assert.Equal(t, "xgboost", info.Kind)
	assert.Equal(t, 6, info.Trees)
	assert.Empty(t, info.SchemaDrift)

	tests := []struct {
		name string
		vec  []float64
		want Label
	}{
		{"good credit low dti", []float64{60000, 780, 0.1}, Eligible},
		{"good credit high dti", []float64{60000, 780, 0.6}, HighRisk},
		{"poor credit", []float64{60000, 580, 0.1}, NotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proba, err := clf.PredictProba(tt.vec)
			require.NoError(t, err)
			require.Len(t, proba, 3)

			var sum float64
			for _, p := range proba {
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-12)
			assert.Equal(t, tt.want, Label(Argmax(proba)))
		})
	}
}

func TestXGBClassifier_MissingBranch(t *testing.T) {
	clf, _, err := LoadClassifier(writeModel(t, xgbClassifierJSON), testSchema())
	require.NoError(t, err)

	// NaN credit score follows "missing" in both credit splits, which pulls
	// classes 0 and 2 down and leaves class 1 on top.
	proba, err := clf.PredictProba([]float64{60000, math.NaN(), 0.1})
	require.NoError(t, err)
	assert.Equal(t, HighRisk, Label(Argmax(proba)))
}

func TestXGBClassifier_WidthMismatch(t *testing.T) {
	clf, _, err := LoadClassifier(writeModel(t, xgbClassifierJSON), testSchema())
	require.NoError(t, err)

	_, err = clf.PredictProba([]float64{1, 2})
	assert.Error(t, err)
}

func TestLoadRegressor_XGBoostClampsAtZero(t *testing.T) {
	body := `{
	  "kind": "xgboost",
	  "objective": "reg:squarederror",
	  "base_score": 1000,
	  "trees": [
	    {"nodeid": 0, "split": "monthly_salary", "split_condition": 20000, "yes": 1, "no": 2,
	     "children": [{"nodeid": 1, "leaf": -5000}, {"nodeid": 2, "leaf": 4000}]}
	  ]
	}`
	reg, _, err := LoadRegressor(writeModel(t, body), testSchema())
	require.NoError(t, err)

	v, err := reg.Predict([]float64{80000, 700, 0})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, v)

	v, err = reg.Predict([]float64{15000, 700, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v, "negative output clamps to zero")
}

func TestXGBRegressor_SplitsInFloat32(t *testing.T) {
	body := `{
	  "kind": "xgboost",
	  "objective": "reg:squarederror",
	  "base_score": 0,
	  "trees": [
	    {"nodeid": 0, "split": "dti_ratio", "split_condition": 0.2, "yes": 1, "no": 2,
	     "children": [{"nodeid": 1, "leaf": 100}, {"nodeid": 2, "leaf": 300}]}
	  ]
	}`
	reg, _, err := LoadRegressor(writeModel(t, body), testSchema())
	require.NoError(t, err)

	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"rounds to the threshold", 0.19999999999, 300},
		{"equal", 0.2, 300},
		{"clearly below", 0.1999, 100},
		{"above", 0.25, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := reg.Predict([]float64{50000, 700, tt.x})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestLoadClassifier_Linear(t *testing.T) {
	body := `{
	  "kind": "linear",
	  "task": "classification",
	  "intercepts": [0, 0, 0],
	  "weights": {
	    "credit_score": [0.01, 0, -0.01],
	    "dti_ratio": [0, 10, 0],
	    "retired_column": [1, 1, 1]
	  }
	}`
	clf, info, err := LoadClassifier(writeModel(t, body), testSchema())
	require.NoError(t, err)
	assert.Equal(t, 3, info.NumClass)
	assert.Len(t, info.SchemaDrift, 1)

	proba, err := clf.PredictProba([]float64{50000, 800, 0})
	require.NoError(t, err)
	assert.Equal(t, Eligible, Label(Argmax(proba)))
}

func TestLoadRegressor_Linear(t *testing.T) {
	body := `{"kind": "linear", "task": "regression", "intercept": 100, "coef": {"monthly_salary": 0.2, "dti_ratio": -1000}}`
	reg, _, err := LoadRegressor(writeModel(t, body), testSchema())
	require.NoError(t, err)

	v, err := reg.Predict([]float64{50000, 750, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 100+10000-500, v, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	s := testSchema()

	_, _, err := LoadClassifier(filepath.Join(t.TempDir(), "absent.json"), s)
	assert.True(t, apperr.Is(err, apperr.CodeArtifactMissing), "missing file: %v", err)

	tests := map[string]string{
		"not json":       `{`,
		"unknown kind":   `{"kind": "svm"}`,
		"bad objective":  `{"kind": "xgboost", "objective": "binary:logistic", "num_class": 3, "trees": [{"nodeid":0,"leaf":1}]}`,
		"unknown split":  `{"kind": "xgboost", "objective": "multi:softprob", "num_class": 2, "trees": [{"nodeid":0,"split":"age","split_condition":1,"yes":1,"no":2,"children":[{"nodeid":1,"leaf":0},{"nodeid":2,"leaf":0}]},{"nodeid":0,"leaf":0}]}`,
		"uneven forest":  `{"kind": "xgboost", "objective": "multi:softprob", "num_class": 3, "trees": [{"nodeid":0,"leaf":1}]}`,
		"dangling child": `{"kind": "xgboost", "objective": "multi:softprob", "num_class": 2, "trees": [{"nodeid":0,"split":"f0","split_condition":1,"yes":7,"no":2,"children":[{"nodeid":2,"leaf":0}]},{"nodeid":0,"leaf":0}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := LoadClassifier(writeModel(t, body), s)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.CodeArtifactInvalid), "got %v", err)
		})
	}
}

func TestFeatureDrift(t *testing.T) {
	s := testSchema()
	assert.Empty(t, FeatureDrift([]string{"monthly_salary", "credit_score", "dti_ratio"}, s))

	drift := FeatureDrift([]string{"credit_score", "monthly_salary"}, s)
	assert.Len(t, drift, 3)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "High Risk", HighRisk.String())
	l, ok := ParseLabel("Not Eligible")
	assert.True(t, ok)
	assert.Equal(t, NotEligible, l)
	_, ok = ParseLabel("Maybe")
	assert.False(t, ok)
	assert.Equal(t, 1, Argmax([]float64{0.2, 0.5, 0.3}))
	assert.Equal(t, 0, Argmax([]float64{0.4, 0.4, 0.2}))
}
