// Package source reads incident records from CSV files and maps their
// columns onto incidents.
package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed CSV: a header and its data rows. Short rows are padded
// with empty cells so every row has one cell per column.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// LoadFile reads a CSV file. A missing file yields an error matching
// fs.ErrNotExist.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads all of r and parses it.
func ReadCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return Parse(data)
}

// Parse decodes data as UTF-8, falling back to ISO-8859-1 when it is not
// valid UTF-8, and splits it into header and rows.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode latin-1: %w", err)
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	t := &Table{
		Columns: records[0],
		Rows:    make([][]string, 0, len(records)-1),
		index:   make(map[string]int, len(records[0])),
	}
	for i, name := range t.Columns {
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	for _, rec := range records[1:] {
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Has reports whether column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Cell returns the value of column in row i, or "" when either is absent.
func (t *Table) Cell(i int, column string) string {
	idx, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][idx]
}

// Listing is one entry of a quick incident listing.
type Listing struct {
	IncidentID string `json:"incident_id"`
	Summary    string `json:"summary"`
}

// Head lists the first n rows using the first column as the id and the
// second as the summary. A single-column table uses that column for both.
func (t *Table) Head(n int) []Listing {
	if len(t.Columns) == 0 {
		return []Listing{}
	}
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	sumIdx := 0
	if len(t.Columns) > 1 {
		sumIdx = 1
	}
	out := make([]Listing, 0, n)
	for _, row := range t.Rows[:n] {
		out = append(out, Listing{IncidentID: row[0], Summary: row[sumIdx]})
	}
	return out
}
