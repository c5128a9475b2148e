package profile

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every schema violation found in a profile payload.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid profile: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid profile: %d problems (first: %s)", len(e.Problems), e.Problems[0])
}

// JSONSchema builds the payload schema from Ranges and Options. With strict
// set, categorical attributes must be one of the known levels.
func JSONSchema(strict bool) map[string]interface{} {
	props := make(map[string]interface{}, len(NumericFields)+len(CategoricalFields))
	for _, name := range NumericFields {
		prop := map[string]interface{}{"type": "number", "minimum": 0}
		if r, ok := Ranges[name]; ok {
			prop["minimum"] = r.Min
			prop["maximum"] = r.Max
		}
		props[name] = prop
	}
	for _, name := range CategoricalFields {
		prop := map[string]interface{}{"type": "string", "minLength": 1}
		if strict {
			enum := make([]interface{}, 0, len(Options[name]))
			for _, o := range Options[name] {
				enum = append(enum, o)
			}
			prop["enum"] = enum
		}
		props[name] = prop
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
}

// Validate checks a decoded payload against the profile schema. It is meant
// for request boundaries; the feature pipeline itself accepts any values.
func Validate(payload map[string]interface{}, strict bool) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(JSONSchema(strict)),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("validating profile: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	sort.Strings(problems)
	return &ValidationError{Problems: problems}
}

// ValidateProfile validates a typed profile by round-tripping it through the
// same schema used for payloads.
func ValidateProfile(p RawProfile, strict bool) error {
	payload := make(map[string]interface{}, len(NumericFields)+len(CategoricalFields))
	for k, v := range p.Numeric() {
		payload[k] = v
	}
	for k, v := range p.Categorical() {
		payload[k] = v
	}
	return Validate(payload, strict)
}
