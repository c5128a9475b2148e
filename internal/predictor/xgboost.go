package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/theirongolddev/emiscope/internal/schema"
)

// xgbNode is one node of an XGBoost JSON tree dump.
type xgbNode struct {
	NodeID         int        `json:"nodeid"`
	Split          string     `json:"split"`
	SplitCondition float64    `json:"split_condition"`
	Yes            int        `json:"yes"`
	No             int        `json:"no"`
	Missing        *int       `json:"missing"`
	Leaf           *float64   `json:"leaf"`
	Children       []*xgbNode `json:"children"`
}

// flatNode is a compiled node; children are indexes into the tree slice.
type flatNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float32
	yes       int
	no        int
	missing   int
}

type tree []flatNode

// eval walks from the root. x < threshold follows "yes"; NaN follows "missing".
// Splits compare in float32, the precision XGBoost trains and predicts with.
func (t tree) eval(vec []float64) float64 {
	i := 0
	for steps := 0; steps <= len(t); steps++ {
		n := t[i]
		if n.leaf {
			return n.value
		}
		x := vec[n.feature]
		switch {
		case math.IsNaN(x):
			i = n.missing
		case float32(x) < n.threshold:
			i = n.yes
		default:
			i = n.no
		}
	}
	return math.NaN()
}

func compileTree(raw json.RawMessage, s *schema.Schema) (tree, error) {
	var root xgbNode
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}

	var nodes []*xgbNode
	var collect func(n *xgbNode)
	collect = func(n *xgbNode) {
		nodes = append(nodes, n)
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(&root)

	byID := make(map[int]int, len(nodes))
	for i, n := range nodes {
		if _, dup := byID[n.NodeID]; dup {
			return nil, fmt.Errorf("duplicate nodeid %d", n.NodeID)
		}
		byID[n.NodeID] = i
	}

	t := make(tree, len(nodes))
	for i, n := range nodes {
		if n.Leaf != nil {
			t[i] = flatNode{leaf: true, value: *n.Leaf}
			continue
		}
		feature, err := resolveFeature(n.Split, s)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", n.NodeID, err)
		}
		yes, okYes := byID[n.Yes]
		no, okNo := byID[n.No]
		if !okYes || !okNo {
			return nil, fmt.Errorf("node %d: dangling child reference", n.NodeID)
		}
		missing := yes
		if n.Missing != nil {
			m, ok := byID[*n.Missing]
			if !ok {
				return nil, fmt.Errorf("node %d: dangling missing reference", n.NodeID)
			}
			missing = m
		}
		t[i] = flatNode{
			feature:   feature,
			threshold: float32(n.SplitCondition),
			yes:       yes,
			no:        no,
			missing:   missing,
		}
	}
	return t, nil
}

// resolveFeature maps a split name to a vector position. Names are schema
// columns, or "f<index>" when the model was trained without feature names.
func resolveFeature(split string, s *schema.Schema) (int, error) {
	if i := s.Index(split); i >= 0 {
		return i, nil
	}
	if strings.HasPrefix(split, "f") {
		if i, err := strconv.Atoi(split[1:]); err == nil && i >= 0 && i < s.Len() {
			return i, nil
		}
	}
	return 0, fmt.Errorf("split feature %q is not in the schema", split)
}

func compileForest(env envelope, s *schema.Schema) ([]tree, error) {
	if len(env.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	forest := make([]tree, 0, len(env.Trees))
	for i, raw := range env.Trees {
		t, err := compileTree(raw, s)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		forest = append(forest, t)
	}
	return forest, nil
}

func baseScore(env envelope) float64 {
	if env.BaseScore != nil {
		return *env.BaseScore
	}
	return 0.5
}

// XGBClassifier is a multi-class boosted forest. Tree i contributes to class
// i mod numClass.
type XGBClassifier struct {
	trees    []tree
	numClass int
	base     float64
	width    int
}

func compileXGBClassifier(env envelope, s *schema.Schema) (*XGBClassifier, error) {
	switch env.Objective {
	case "multi:softprob", "multi:softmax":
	default:
		return nil, fmt.Errorf("classifier objective %q not supported", env.Objective)
	}
	if env.NumClass < 2 {
		return nil, fmt.Errorf("num_class must be at least 2, got %d", env.NumClass)
	}
	forest, err := compileForest(env, s)
	if err != nil {
		return nil, err
	}
	if len(forest)%env.NumClass != 0 {
		return nil, fmt.Errorf("%d trees is not a multiple of num_class %d", len(forest), env.NumClass)
	}
	return &XGBClassifier{trees: forest, numClass: env.NumClass, base: baseScore(env), width: s.Len()}, nil
}

// PredictProba implements Classifier.
func (c *XGBClassifier) PredictProba(vec []float64) ([]float64, error) {
	if err := checkWidth(vec, c.width); err != nil {
		return nil, err
	}
	margins := make([]float64, c.numClass)
	for k := range margins {
		margins[k] = c.base
	}
	for i, t := range c.trees {
		margins[i%c.numClass] += t.eval(vec)
	}
	return softmax(margins), nil
}

// XGBRegressor is a boosted forest with a squared-error objective.
type XGBRegressor struct {
	trees []tree
	base  float64
	width int
}

func compileXGBRegressor(env envelope, s *schema.Schema) (*XGBRegressor, error) {
	switch env.Objective {
	case "reg:squarederror", "reg:linear", "":
	default:
		return nil, fmt.Errorf("regressor objective %q not supported", env.Objective)
	}
	forest, err := compileForest(env, s)
	if err != nil {
		return nil, err
	}
	return &XGBRegressor{trees: forest, base: baseScore(env), width: s.Len()}, nil
}

// Predict implements Regressor.
func (r *XGBRegressor) Predict(vec []float64) (float64, error) {
	if err := checkWidth(vec, r.width); err != nil {
		return 0, err
	}
	sum := r.base
	for _, t := range r.trees {
		sum += t.eval(vec)
	}
	return sum, nil
}
