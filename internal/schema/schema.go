// Package schema loads the training-time column schema and aligns encoded
// rows against it.
package schema

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/theirongolddev/emiscope/internal/apperr"
)

// Schema is the ordered, duplicate-free list of columns a model was trained
// on. It is immutable once built.
type Schema struct {
	columns []string
	index   map[string]int
}

// New builds a Schema from column names. Empty or duplicate names are rejected.
func New(columns []string) (*Schema, error) {
	s := &Schema{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if prev, dup := s.index[c]; dup {
			return nil, fmt.Errorf("column %q repeated at positions %d and %d", c, prev, i)
		}
		s.columns[i] = c
		s.index[c] = i
	}
	return s, nil
}

// MustNew is New for fixed column lists in tests and fixtures.
func MustNew(columns ...string) *Schema {
	s, err := New(columns)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Columns returns a copy of the column names in order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Index returns the position of column, or -1.
func (s *Schema) Index(column string) int {
	if i, ok := s.index[column]; ok {
		return i
	}
	return -1
}

// Has reports whether column is part of the schema.
func (s *Schema) Has(column string) bool {
	_, ok := s.index[column]
	return ok
}

// Load reads a schema artifact. The file is either a JSON array of column
// names or plain text with one name per line. A file that cannot be found is
// an ArtifactMissing error; one that cannot be decoded is ArtifactInvalid.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ArtifactMissing("feature schema", path, err)
		}
		return nil, apperr.ArtifactMissing("feature schema", path, fmt.Errorf("reading schema: %w", err))
	}

	columns, err := Decode(data)
	if err != nil {
		return nil, apperr.ArtifactInvalid("feature schema", path, err)
	}
	s, err := New(columns)
	if err != nil {
		return nil, apperr.ArtifactInvalid("feature schema", path, err)
	}
	if s.Len() == 0 {
		return nil, apperr.ArtifactInvalid("feature schema", path, errors.New("schema has no columns"))
	}
	return s, nil
}

// Decode parses schema bytes without checking uniqueness.
func Decode(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var columns []string
		if err := json.Unmarshal(trimmed, &columns); err != nil {
			return nil, fmt.Errorf("decoding schema json: %w", err)
		}
		return columns, nil
	}

	var columns []string
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		columns = append(columns, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading schema lines: %w", err)
	}
	return columns, nil
}

// Save writes the schema as a JSON array.
func (s *Schema) Save(path string) error {
	data, err := json.MarshalIndent(s.columns, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
