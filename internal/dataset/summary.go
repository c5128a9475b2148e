// Package dataset explores the training CSV and converts CSV rows into
// applicant profiles for batch scoring.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"github.com/theirongolddev/emiscope/internal/apperr"
)

// Column names with special meaning in the training data.
const (
	TargetColumn   = "emi_eligibility"
	ScenarioColumn = "emi_scenario"
)

var nanValues = []string{"", "NA", "NaN", "nan", "<nil>", "null"}

// ColumnStats describes one numeric column, ignoring missing values.
type ColumnStats struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	Max   float64 `json:"max"`
}

// Summary is the overview of a dataset file.
type Summary struct {
	Path          string        `json:"path"`
	Records       int           `json:"records"`
	Features      int           `json:"features"`
	MissingValues int           `json:"missing_values"`
	DuplicateRows int           `json:"duplicate_rows"`
	Numeric       []ColumnStats `json:"numeric"`

	// Eligibility counts rows per target class when the target column exists.
	Eligibility map[string]int `json:"eligibility,omitempty"`
	// Crosstab counts scenario x target pairs.
	Crosstab map[string]map[string]int `json:"crosstab,omitempty"`
}

// Load reads a CSV file into a dataframe with typed columns.
func Load(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataframe.DataFrame{}, apperr.Wrap(apperr.CodeNotFound, "dataset not found at "+path, err)
		}
		return dataframe.DataFrame{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer func() { _ = f.Close() }()
	return read(f)
}

func read(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	)
	if df.Err != nil {
		return df, fmt.Errorf("parsing dataset: %w", df.Err)
	}
	return df, nil
}

// Summarize loads path and describes it.
func Summarize(path string) (*Summary, error) {
	df, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := Describe(df)
	s.Path = path
	return s, nil
}

// Describe computes the summary of an already loaded dataframe.
func Describe(df dataframe.DataFrame) *Summary {
	s := &Summary{
		Records:  df.Nrow(),
		Features: df.Ncol(),
	}

	for _, name := range df.Names() {
		col := df.Col(name)
		for _, na := range col.IsNaN() {
			if na {
				s.MissingValues++
			}
		}
		if isNumeric(col) {
			s.Numeric = append(s.Numeric, describeColumn(name, col))
		}
	}

	s.DuplicateRows = countDuplicates(df)

	if has(df, TargetColumn) {
		s.Eligibility = valueCounts(df.Col(TargetColumn))
		if has(df, ScenarioColumn) {
			s.Crosstab = crosstab(df.Col(ScenarioColumn), df.Col(TargetColumn))
		}
	}
	return s
}

// NumericColumns returns the names of the numeric columns in df.
func NumericColumns(df dataframe.DataFrame) []string {
	var out []string
	for _, name := range df.Names() {
		if isNumeric(df.Col(name)) {
			out = append(out, name)
		}
	}
	return out
}

// Correlation returns the Pearson correlation of two numeric columns over the
// rows where both are present.
func Correlation(df dataframe.DataFrame, a, b string) (float64, error) {
	if !has(df, a) || !has(df, b) {
		return 0, fmt.Errorf("unknown column %q or %q", a, b)
	}
	ca, cb := df.Col(a), df.Col(b)
	if !isNumeric(ca) || !isNumeric(cb) {
		return 0, fmt.Errorf("columns %q and %q must be numeric", a, b)
	}
	xa, xb := ca.Float(), cb.Float()
	var x, y []float64
	for i := range xa {
		if math.IsNaN(xa[i]) || math.IsNaN(xb[i]) {
			continue
		}
		x = append(x, xa[i])
		y = append(y, xb[i])
	}
	if len(x) < 2 {
		return math.NaN(), nil
	}
	return stat.Correlation(x, y, nil), nil
}

func describeColumn(name string, col series.Series) ColumnStats {
	var present []float64
	for _, v := range col.Float() {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	cs := ColumnStats{Name: name, Count: len(present)}
	if len(present) == 0 {
		return cs
	}

	clean := series.New(present, series.Float, name)
	cs.Mean = clean.Mean()
	cs.Min = clean.Min()
	cs.Max = clean.Max()
	cs.P25 = clean.Quantile(0.25)
	cs.P50 = clean.Quantile(0.5)
	cs.P75 = clean.Quantile(0.75)
	if len(present) > 1 {
		cs.Std = clean.StdDev()
	}
	return cs
}

func isNumeric(col series.Series) bool {
	t := col.Type()
	return t == series.Int || t == series.Float
}

func has(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func countDuplicates(df dataframe.DataFrame) int {
	records := df.Records()
	if len(records) <= 1 {
		return 0
	}
	seen := make(map[string]struct{}, len(records)-1)
	dups := 0
	for _, row := range records[1:] {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func valueCounts(col series.Series) map[string]int {
	counts := make(map[string]int)
	nan := col.IsNaN()
	for i, v := range col.Records() {
		if nan[i] {
			continue
		}
		counts[v]++
	}
	return counts
}

func crosstab(rows, cols series.Series) map[string]map[string]int {
	out := make(map[string]map[string]int)
	rn, cn := rows.IsNaN(), cols.IsNaN()
	rv, cv := rows.Records(), cols.Records()
	for i := range rv {
		if rn[i] || cn[i] {
			continue
		}
		if out[rv[i]] == nil {
			out[rv[i]] = make(map[string]int)
		}
		out[rv[i]][cv[i]]++
	}
	return out
}

// SortedKeys returns the keys of a count map, largest count first.
func SortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
