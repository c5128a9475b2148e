package predictor

import (
	"fmt"
	"sort"

	"github.com/theirongolddev/emiscope/internal/schema"
)

// LinearClassifier is a multinomial logistic model with weights bound to
// schema positions.
type LinearClassifier struct {
	intercepts []float64
	weights    [][]float64 // [feature][class]
}

func compileLinearClassifier(env envelope, s *schema.Schema, info *Info) (*LinearClassifier, error) {
	k := len(env.Intercepts)
	if k < 2 {
		return nil, fmt.Errorf("linear classifier needs at least 2 intercepts, got %d", k)
	}
	c := &LinearClassifier{
		intercepts: env.Intercepts,
		weights:    make([][]float64, s.Len()),
	}
	for _, col := range sortedKeys(env.Weights) {
		w := env.Weights[col]
		if len(w) != k {
			return nil, fmt.Errorf("weights for %q have %d classes, want %d", col, len(w), k)
		}
		i := s.Index(col)
		if i < 0 {
			info.SchemaDrift = append(info.SchemaDrift, fmt.Sprintf("weight for %q has no schema column", col))
			continue
		}
		c.weights[i] = w
	}
	info.NumClass = k
	return c, nil
}

// PredictProba implements Classifier.
func (c *LinearClassifier) PredictProba(vec []float64) ([]float64, error) {
	if err := checkWidth(vec, len(c.weights)); err != nil {
		return nil, err
	}
	margins := make([]float64, len(c.intercepts))
	copy(margins, c.intercepts)
	for i, w := range c.weights {
		if w == nil || vec[i] == 0 {
			continue
		}
		for k := range margins {
			margins[k] += w[k] * vec[i]
		}
	}
	return softmax(margins), nil
}

// LinearRegressor is an ordinary linear model over schema positions.
type LinearRegressor struct {
	intercept float64
	coef      []float64
}

func compileLinearRegressor(env envelope, s *schema.Schema, info *Info) (*LinearRegressor, error) {
	if len(env.Coef) == 0 {
		return nil, fmt.Errorf("linear regressor has no coefficients")
	}
	r := &LinearRegressor{intercept: env.Intercept, coef: make([]float64, s.Len())}
	for _, col := range sortedKeys(env.Coef) {
		i := s.Index(col)
		if i < 0 {
			info.SchemaDrift = append(info.SchemaDrift, fmt.Sprintf("coefficient for %q has no schema column", col))
			continue
		}
		r.coef[i] = env.Coef[col]
	}
	return r, nil
}

// Predict implements Regressor.
func (r *LinearRegressor) Predict(vec []float64) (float64, error) {
	if err := checkWidth(vec, len(r.coef)); err != nil {
		return 0, err
	}
	sum := r.intercept
	for i, w := range r.coef {
		sum += w * vec[i]
	}
	return sum, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
