package schema

import "sort"

// Vector is a row reindexed against a schema. Values[i] belongs to Columns[i].
type Vector struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
}

// Get returns the value for column and whether the column exists.
func (v Vector) Get(column string) (float64, bool) {
	for i, c := range v.Columns {
		if c == column {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Mismatch records how a row disagreed with the schema. Both lists are sorted.
type Mismatch struct {
	Missing []string `json:"missing,omitempty"` // schema columns absent from the row, zero-filled
	Extra   []string `json:"extra,omitempty"`   // row columns absent from the schema, dropped
}

// Empty reports whether the row matched the schema exactly.
func (m Mismatch) Empty() bool {
	return len(m.Missing) == 0 && len(m.Extra) == 0
}

// Align copies row values into schema order, filling absent columns with 0
// and discarding row columns the schema does not name.
func Align(row map[string]float64, s *Schema) (Vector, Mismatch) {
	vec := Vector{
		Columns: s.Columns(),
		Values:  make([]float64, s.Len()),
	}

	var m Mismatch
	for i, col := range s.columns {
		if v, ok := row[col]; ok {
			vec.Values[i] = v
		} else {
			m.Missing = append(m.Missing, col)
		}
	}
	for col := range row {
		if !s.Has(col) {
			m.Extra = append(m.Extra, col)
		}
	}
	sort.Strings(m.Extra)

	return vec, m
}
