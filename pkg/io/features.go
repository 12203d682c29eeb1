package io

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"mbdisease/pkg/model"
)

// biomHeader is the first header cell of a BIOM table exported as TSV, where
// features are rows and samples are columns.
const biomHeader = "#OTU ID"

// LoadFeatureTable reads a sample by feature count table. BIOM TSV exports
// are transposed so rows are always samples. Rows that cannot be parsed are
// skipped and reported as DataErrors.
func LoadFeatureTable(path string) (*model.FeatureTable, []DataError, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()
	return ParseFeatureTable(inputFile)
}

func ParseFeatureTable(input io.Reader) (*model.FeatureTable, []DataError, error) {
	reader := newTSVReader(skipBiomPreamble(input))

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading data header: %w", err)
	}
	transposed := strings.TrimSpace(header[0]) == biomHeader

	var errors []DataError
	var rowIDs []string
	var values [][]float64
	currentLine := 1
	for record, err := reader.Read(); err != io.EOF; record, err = reader.Read() {
		currentLine++
		if err != nil {
			return nil, nil, fmt.Errorf("error reading line %d: %w", currentLine, err)
		}
		if len(record) != len(header) {
			errors = append(errors, DataError{
				Line:  currentLine,
				Error: fmt.Sprintf("expected %d fields, found %d", len(header), len(record)),
			})
			continue
		}
		row, err := parseCounts(header[1:], record[1:])
		if err != nil {
			errors = append(errors, DataError{Line: currentLine, Error: err.Error()})
			continue
		}
		rowIDs = append(rowIDs, strings.TrimSpace(record[0]))
		values = append(values, row)
	}

	columnIDs := header[1:]
	if len(rowIDs) == 0 || len(columnIDs) == 0 {
		return nil, errors, fmt.Errorf("feature table is empty (%d rows, %d columns)", len(rowIDs), len(columnIDs))
	}

	if transposed {
		counts := mat.NewDense(len(columnIDs), len(rowIDs), nil)
		for j, row := range values {
			for i, v := range row {
				counts.Set(i, j, v)
			}
		}
		table, err := model.NewFeatureTable(columnIDs, rowIDs, counts)
		return table, errors, err
	}

	counts := mat.NewDense(len(rowIDs), len(columnIDs), nil)
	for i, row := range values {
		counts.SetRow(i, row)
	}
	table, err := model.NewFeatureTable(rowIDs, columnIDs, counts)
	return table, errors, err
}

func parseCounts(columns, record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, cell := range record {
		value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing feature %s: %w", columns[i], err)
		}
		row[i] = value
	}
	return row, nil
}

// skipBiomPreamble drops the "# Constructed from biom file" comment line that
// precedes the header of a BIOM TSV export.
func skipBiomPreamble(input io.Reader) io.Reader {
	buffered := bufio.NewReader(input)
	peek, _ := buffered.Peek(len("# Constructed"))
	if string(peek) == "# Constructed" {
		_, _ = buffered.ReadString('\n')
	}
	return buffered
}
