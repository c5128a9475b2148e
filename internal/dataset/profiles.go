package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/profile"
)

// Row is one CSV line turned into a profile. Err is set when the line could
// not be converted; Profile is then the base profile.
type Row struct {
	Line    int
	Profile profile.RawProfile
	Err     error
}

// ReadProfiles maps each CSV row onto base. The header names profile
// attributes; unknown columns are ignored and empty cells keep the base value.
func ReadProfiles(path string, base profile.RawProfile) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.CodeNotFound, "input not found at "+path, err)
		}
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeProfiles(f, base)
}

// DecodeProfiles is ReadProfiles over an open reader.
func DecodeProfiles(r io.Reader, base profile.RawProfile) ([]Row, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("parsing input: %w", df.Err)
	}

	records := df.Maps()
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		m := make(map[string]any, len(rec))
		for k, v := range rec {
			s, ok := v.(string)
			if !ok || s == "" || s == "NaN" {
				continue
			}
			m[k] = s
		}
		p, err := profile.FromMap(base, m)
		// Line numbers count the header as line 1.
		rows = append(rows, Row{Line: i + 2, Profile: p, Err: err})
	}
	return rows, nil
}

// Table accumulates string records and writes them as CSV.
type Table struct {
	header []string
	rows   [][]string
}

// NewTable starts a table with the given header.
func NewTable(header ...string) *Table {
	return &Table{header: header}
}

// Append adds one record. Short records are padded.
func (t *Table) Append(values ...string) {
	row := make([]string, len(t.header))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Len returns the number of data records.
func (t *Table) Len() int { return len(t.rows) }

// WriteCSV writes the header and records to w.
func (t *Table) WriteCSV(w io.Writer) error {
	if len(t.rows) == 0 {
		return errors.New("no records to write")
	}
	records := make([][]string, 0, len(t.rows)+1)
	records = append(records, t.header)
	records = append(records, t.rows...)

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// FormatFloat renders a number for CSV output.
func FormatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
