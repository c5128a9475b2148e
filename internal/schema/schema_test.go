package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/emiscope/internal/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSONArray(t *testing.T) {
	path := writeFile(t, "feature_columns.json", `["age", "monthly_salary", "gender_Male"]`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "monthly_salary", "gender_Male"}, s.Columns())
	assert.Equal(t, 2, s.Index("gender_Male"))
	assert.Equal(t, -1, s.Index("nope"))
}

func TestLoad_TextLines(t *testing.T) {
	path := writeFile(t, "feature_columns.txt", "# exported by training\nage\r\nmonthly_salary\n\nemi_scenario_Vehicle EMI\n")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "monthly_salary", "emi_scenario_Vehicle EMI"}, s.Columns())
}

func TestLoad_MissingFileIsArtifactMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "feature_columns.json")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeArtifactMissing))
	assert.Contains(t, err.Error(), path)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"duplicate": `["age", "age"]`,
		"empty":     `[]`,
		"blank":     `["age", ""]`,
		"not json":  `["age",`,
		"objects":   `[{"name": "age"}]`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "s.json", content))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.CodeArtifactInvalid), "got %v", err)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	s := MustNew("a", "b", "c")
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Columns(), loaded.Columns())
}

func TestColumns_ReturnsCopy(t *testing.T) {
	s := MustNew("a", "b")
	cols := s.Columns()
	cols[0] = "mutated"
	assert.Equal(t, "a", s.Columns()[0])
}

func TestAlign_OrderZeroFillAndDrop(t *testing.T) {
	s := MustNew("credit_score", "gender_Male", "age", "dti_ratio")
	row := map[string]float64{
		"age":          41,
		"credit_score": 700,
		"dti_ratio":    0.25,
		"shoe_size":    9,
	}

	vec, m := Align(row, s)

	assert.Equal(t, s.Columns(), vec.Columns)
	assert.Equal(t, []float64{700, 0, 41, 0.25}, vec.Values)
	assert.Equal(t, []string{"gender_Male"}, m.Missing)
	assert.Equal(t, []string{"shoe_size"}, m.Extra)
	assert.False(t, m.Empty())

	v, ok := vec.Get("age")
	assert.True(t, ok)
	assert.Equal(t, 41.0, v)
}

func TestAlign_WidthIndependentOfRow(t *testing.T) {
	s := MustNew("x", "y", "z")
	for _, row := range []map[string]float64{
		nil,
		{"x": 1},
		{"x": 1, "y": 2, "z": 3, "w": 4},
	} {
		vec, _ := Align(row, s)
		assert.Len(t, vec.Values, 3)
		assert.Equal(t, []string{"x", "y", "z"}, vec.Columns)
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`["a","b"]`))
	f.Add([]byte("a\nb\n"))
	f.Add([]byte(""))
	f.Add([]byte("[\"a\","))

	f.Fuzz(func(t *testing.T, data []byte) {
		cols, err := Decode(data)
		if err != nil {
			return
		}
		s, err := New(cols)
		if err != nil {
			return
		}
		vec, _ := Align(map[string]float64{}, s)
		if len(vec.Values) != s.Len() {
			t.Fatalf("vector width %d, schema width %d", len(vec.Values), s.Len())
		}
	})
}
