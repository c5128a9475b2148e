// Package encoding turns categorical attributes into one-hot indicator columns.
//
// Levels are not inferred from the input row. They are recovered from the
// schema's "<field>_<level>" column names, so a single row encodes the same
// way regardless of which levels it happens to carry. A level with no column
// (the training reference level, or a value never seen in training) encodes
// as all zeros.
package encoding

import (
	"sort"
	"strings"

	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/schema"
)

// Levels maps each categorical field to its level -> column name lookup.
type Levels struct {
	fields map[string]map[string]string
}

// ParseLevels recovers the per-field level sets from schema column names. A
// column belongs to the field with the longest matching "<field>_" prefix.
func ParseLevels(s *schema.Schema, fields []string) Levels {
	ordered := make([]string, len(fields))
	copy(ordered, fields)
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	lv := Levels{fields: make(map[string]map[string]string, len(fields))}
	for _, f := range fields {
		lv.fields[f] = make(map[string]string)
	}

	for _, col := range s.Columns() {
		for _, f := range ordered {
			prefix := f + "_"
			if strings.HasPrefix(col, prefix) && len(col) > len(prefix) {
				lv.fields[f][col[len(prefix):]] = col
				break
			}
		}
	}
	return lv
}

// Fields returns the categorical fields known to the lookup, sorted.
func (lv Levels) Fields() []string {
	out := make([]string, 0, len(lv.fields))
	for f := range lv.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Of returns the encoded levels of field, sorted.
func (lv Levels) Of(field string) []string {
	m := lv.fields[field]
	out := make([]string, 0, len(m))
	for level := range m {
		out = append(out, level)
	}
	sort.Strings(out)
	return out
}

// Column returns the indicator column for field=level.
func (lv Levels) Column(field, level string) (string, bool) {
	col, ok := lv.fields[field][level]
	return col, ok
}

// Outcome describes how one categorical value was encoded.
type Outcome int

const (
	// Encoded means the level has its own indicator column.
	Encoded Outcome = iota
	// Reference means the level is a known form choice without a column: the
	// dropped reference level.
	Reference
	// Unseen means the level is neither encoded nor a known choice.
	Unseen
	// Unmapped means the schema has no indicator columns for the field at all.
	Unmapped
)

func (o Outcome) String() string {
	switch o {
	case Encoded:
		return "encoded"
	case Reference:
		return "reference"
	case Unseen:
		return "unseen"
	case Unmapped:
		return "unmapped"
	}
	return "unknown"
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, bool) {
	for o := Encoded; o <= Unmapped; o++ {
		if o.String() == s {
			return o, true
		}
	}
	return 0, false
}

// FieldResult is the encoding of one categorical field.
type FieldResult struct {
	Field   string  `json:"field"`
	Level   string  `json:"level"`
	Column  string  `json:"column,omitempty"`
	Outcome Outcome `json:"-"`
	Status  string  `json:"status"`
}

// Encode writes one indicator column per known level of every categorical
// field into row: 1 for the profile's level, 0 for the rest. It returns the
// per-field results in field order.
func (lv Levels) Encode(p profile.RawProfile, row map[string]float64) []FieldResult {
	values := p.Categorical()
	results := make([]FieldResult, 0, len(profile.CategoricalFields))

	for _, field := range profile.CategoricalFields {
		level := values[field]
		cols := lv.fields[field]
		for _, col := range cols {
			row[col] = 0
		}

		res := FieldResult{Field: field, Level: level}
		switch col, ok := cols[level]; {
		case ok:
			row[col] = 1
			res.Column = col
			res.Outcome = Encoded
		case len(cols) == 0:
			res.Outcome = Unmapped
		case profile.IsKnownLevel(field, level):
			res.Outcome = Reference
		default:
			res.Outcome = Unseen
		}
		res.Status = res.Outcome.String()
		results = append(results, res)
	}
	return results
}
