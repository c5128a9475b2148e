package inference

import (
	"github.com/theirongolddev/emiscope/internal/encoding"
	"github.com/theirongolddev/emiscope/internal/features"
	"github.com/theirongolddev/emiscope/internal/metrics"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/schema"
)

// Diagnostics reports everything Transform had to paper over.
type Diagnostics struct {
	Derived    features.Derived       `json:"derived"`
	Mismatch   schema.Mismatch        `json:"mismatch"`
	Categories []encoding.FieldResult `json:"categories"`
}

// Unseen returns the categorical fields whose level has no column and is not
// a known form choice.
func (d Diagnostics) Unseen() []encoding.FieldResult {
	var out []encoding.FieldResult
	for _, r := range d.Categories {
		if r.Outcome == encoding.Unseen {
			out = append(out, r)
		}
	}
	return out
}

// Clean reports whether the row matched the schema with no substitutions.
func (d Diagnostics) Clean() bool {
	if !d.Mismatch.Empty() {
		return false
	}
	for _, r := range d.Categories {
		if r.Outcome == encoding.Unseen || r.Outcome == encoding.Unmapped {
			return false
		}
	}
	return true
}

// Transform builds the model-ready vector for p. Missing schema columns are
// zero-filled and extra row columns dropped; each substitution is logged and
// counted.
func Transform(c *Context, p profile.RawProfile) (schema.Vector, Diagnostics) {
	row := features.Row(p)
	results := c.Levels.Encode(p, row)
	vec, mismatch := schema.Align(row, c.Schema)

	diag := Diagnostics{
		Derived:    features.Derive(p),
		Mismatch:   mismatch,
		Categories: results,
	}
	c.report(diag)
	return vec, diag
}

func (c *Context) report(d Diagnostics) {
	log := c.Logger
	for _, col := range d.Mismatch.Missing {
		log.Warn("schema column missing from row, zero-filled", map[string]interface{}{"column": col})
		metrics.SchemaMismatch.WithLabelValues(metrics.MismatchMissingColumn).Inc()
	}
	for _, col := range d.Mismatch.Extra {
		log.Warn("row column not in schema, dropped", map[string]interface{}{"column": col})
		metrics.SchemaMismatch.WithLabelValues(metrics.MismatchExtraColumn).Inc()
	}
	for _, r := range d.Categories {
		fields := map[string]interface{}{"field": r.Field, "level": r.Level}
		switch r.Outcome {
		case encoding.Reference:
			log.Debug("reference level encodes as all zeros", fields)
		case encoding.Unseen:
			log.Warn("unseen categorical level encodes as all zeros", fields)
			metrics.SchemaMismatch.WithLabelValues(metrics.MismatchUnseenLevel).Inc()
		case encoding.Unmapped:
			log.Warn("categorical field has no schema columns", fields)
			metrics.SchemaMismatch.WithLabelValues(metrics.MismatchUnmappedField).Inc()
		}
	}
}
