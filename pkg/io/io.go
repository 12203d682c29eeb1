package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type void struct{}

var Void = void{}

type Set map[string]void

func NewSet(values ...string) Set {
	set := Set{}
	for _, val := range values {
		set[val] = Void
	}
	return set
}

func (s Set) Contains(value string) bool {
	_, ok := s[value]
	return ok
}

type DataError struct {
	Line  int
	Error string
}

// Row is a single sample of a Table. Cells are aligned with Table.Columns.
type Row struct {
	ID    string
	Cells []string
}

// Table is a tab separated, sample indexed table. The first column of the
// file holds the sample identifier, IDColumn keeps its header name.
type Table struct {
	IDColumn string
	Columns  []string
	Rows     []Row

	columnIndex map[string]int
}

func NewTable(idColumn string, columns []string) *Table {
	t := &Table{IDColumn: idColumn, Columns: columns}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.columnIndex = make(map[string]int, len(t.Columns))
	for i, col := range t.Columns {
		t.columnIndex[col] = i
	}
}

// ColumnIndex returns the position of column in every row's Cells.
func (t *Table) ColumnIndex(column string) (int, bool) {
	if t.columnIndex == nil {
		t.reindex()
	}
	index, ok := t.columnIndex[column]
	return index, ok
}

func (t *Table) SampleIDs() []string {
	ids := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		ids[i] = row.ID
	}
	return ids
}

// ReadTable loads a tab separated table with a header row from path.
func ReadTable(path string) (*Table, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()

	table, err := ParseTable(inputFile)
	if err != nil {
		return nil, fmt.Errorf("error reading table %s: %w", path, err)
	}
	return table, nil
}

// ParseTable reads a tab separated table. Sample identifiers must be unique
// and every row must have as many cells as the header.
func ParseTable(input io.Reader) (*Table, error) {
	reader := newTSVReader(input)

	//First line is expected to be a header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading data header: %w", err)
	}
	if len(header) < 1 {
		return nil, errors.New("empty header")
	}

	table := NewTable(header[0], header[1:])
	seen := NewSet()
	line := 1
	for record, err := reader.Read(); err != io.EOF; record, err = reader.Read() {
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", line, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), len(header))
		}
		id := strings.TrimSpace(record[0])
		if seen.Contains(id) {
			return nil, fmt.Errorf("line %d: duplicate sample identifier %q", line, id)
		}
		seen[id] = Void
		table.Rows = append(table.Rows, Row{ID: id, Cells: record[1:]})
	}
	return table, nil
}

func newTSVReader(input io.Reader) *csv.Reader {
	reader := csv.NewReader(input)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader
}

// WriteTable writes header and rows as tab separated values to w.
func WriteTable(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	writer.Comma = '\t'
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFileAtomic writes through a temporary file in the destination
// directory and renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("error creating temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("error setting permissions on %s: %w", tmpName, err)
	}

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("error moving %s into place: %w", path, err)
	}
	return nil
}

// WriteTableFile persists a table at path atomically.
func WriteTableFile(path string, header []string, rows [][]string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		return WriteTable(w, header, rows)
	})
}
