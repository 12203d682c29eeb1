package metadata

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"mbdisease/pkg/config"
	"mbdisease/pkg/io"
	"mbdisease/pkg/model"
)

const (
	OrganizedFileName   = "final_metadata.tsv"
	OrganizedTFFileName = "final_metadata_tf.tsv"
)

// ErrNoAlignedSamples means none of the organized samples has a feature vector.
var ErrNoAlignedSamples = errors.New("no metadata samples have feature measurements")

// Organized is the cleaned, encoded metadata restricted to samples that have
// feature measurements. Disease columns hold numbers; the 0/1 and T/F tables
// are renderings of the same cells, so they always share rows and order.
type Organized struct {
	IDColumn    string
	Columns     []string
	DiseaseCols []string
	Types       []ColumnType
	SampleIDs   []string

	cells   [][]Value
	index   map[string]int
	disease map[string]bool
}

func newOrganized(idColumn string, columns, diseaseCols []string, types []ColumnType, sampleIDs []string, cells [][]Value) *Organized {
	o := &Organized{
		IDColumn:    idColumn,
		Columns:     columns,
		DiseaseCols: diseaseCols,
		Types:       types,
		SampleIDs:   sampleIDs,
		cells:       cells,
		index:       make(map[string]int, len(columns)),
		disease:     make(map[string]bool, len(diseaseCols)),
	}
	for i, c := range columns {
		o.index[c] = i
	}
	for _, c := range diseaseCols {
		o.disease[c] = true
	}
	return o
}

// Organize selects the disease and covariate columns of raw, unifies missing
// values, drops samples without a complete disease record, coerces numeric
// columns, encodes mapped categorical columns and keeps only the samples in
// featureSamples. Any coercion or mapping failure aborts the whole operation.
func Organize(raw *io.Table, featureSamples io.Set, params *config.FeatureParams) (*Organized, error) {
	columns, sourceIndex, err := selectColumns(raw, params)
	if err != nil {
		return nil, fmt.Errorf("organize metadata: %w", err)
	}
	numDisease := len(params.DiseaseCols)
	normalizer := NewNormalizer(params.Sentinels()...)

	var sampleIDs []string
	var cells [][]Value
	dropped := 0
	for _, row := range raw.Rows {
		values := make([]Value, len(columns))
		for j := range columns {
			values[j] = normalizer.Normalize(row.Cells[sourceIndex[j]])
		}
		if !complete(values, numDisease, params.KeepPartial()) {
			dropped++
			continue
		}
		sampleIDs = append(sampleIDs, row.ID)
		cells = append(cells, values)
	}
	log.Debug().Int("Kept", len(sampleIDs)).Int("Dropped", dropped).Msg("dropped samples with missing disease values")

	types := make([]ColumnType, len(columns))
	column := make([]Value, len(cells))
	for j, name := range columns {
		for i := range cells {
			column[i] = cells[i][j]
		}

		var encoded []Value
		if mapping, ok := params.MappingFor(name); ok {
			types[j] = Numeric
			encoded, err = Encode(name, sampleIDs, column, mapping)
		} else {
			types[j] = columnType(name, j < numDisease, column, params)
			encoded, err = Coerce(name, sampleIDs, column, types[j])
		}
		if err != nil {
			return nil, fmt.Errorf("organize metadata: %w", err)
		}
		for i := range cells {
			cells[i][j] = encoded[i]
		}
	}

	var alignedIDs []string
	var alignedCells [][]Value
	for i, id := range sampleIDs {
		if featureSamples.Contains(id) {
			alignedIDs = append(alignedIDs, id)
			alignedCells = append(alignedCells, cells[i])
		}
	}
	if len(alignedIDs) == 0 {
		return nil, fmt.Errorf("organize metadata: %d samples after cleaning, %d feature samples: %w",
			len(sampleIDs), len(featureSamples), ErrNoAlignedSamples)
	}
	log.Info().Int("Samples", len(alignedIDs)).Int("WithoutFeatures", len(sampleIDs)-len(alignedIDs)).Msg("organized metadata")

	return newOrganized(raw.IDColumn, columns, params.DiseaseCols, types, alignedIDs, alignedCells), nil
}

// selectColumns returns the disease columns followed by the covariates that
// exist in raw, and their positions in raw. Absent covariates are skipped.
func selectColumns(raw *io.Table, params *config.FeatureParams) ([]string, []int, error) {
	var columns []string
	var sourceIndex []int
	for _, c := range params.DiseaseCols {
		index, ok := raw.ColumnIndex(c)
		if !ok {
			return nil, nil, fmt.Errorf("disease column %s not found in metadata", c)
		}
		columns = append(columns, c)
		sourceIndex = append(sourceIndex, index)
	}

	var absent []string
	for _, c := range params.AdditionalInfoCols {
		if params.IsDisease(c) {
			continue
		}
		index, ok := raw.ColumnIndex(c)
		if !ok {
			absent = append(absent, c)
			continue
		}
		columns = append(columns, c)
		sourceIndex = append(sourceIndex, index)
	}
	if len(absent) > 0 {
		log.Warn().Strs("Columns", absent).Msg("additional columns not found in metadata, continuing without them")
	}
	return columns, sourceIndex, nil
}

func complete(values []Value, numDisease int, keepPartial bool) bool {
	for j, v := range values {
		if v.IsMissing() && (j < numDisease || !keepPartial) {
			return false
		}
	}
	return true
}

func columnType(name string, isDisease bool, values []Value, params *config.FeatureParams) ColumnType {
	if isDisease {
		return Numeric
	}
	for _, c := range params.NumericCols {
		if c == name {
			return Numeric
		}
	}
	if IsNumeric(values) {
		return Numeric
	}
	return Categorical
}

func (o *Organized) Len() int {
	return len(o.SampleIDs)
}

// Value returns the cell of sample row i in column.
func (o *Organized) Value(i int, column string) (Value, bool) {
	j, ok := o.index[column]
	if !ok {
		return Value{}, false
	}
	return o.cells[i][j], true
}

func (o *Organized) Header() []string {
	return append([]string{o.IDColumn}, o.Columns...)
}

// View01 renders the table with numeric disease columns.
func (o *Organized) View01() [][]string {
	return o.render(func(_ string, v Value) string { return v.Render01() })
}

// ViewTF renders the table with disease columns as 'T'/'F'.
func (o *Organized) ViewTF() [][]string {
	return o.render(func(column string, v Value) string {
		if o.disease[column] {
			return v.RenderTF()
		}
		return v.Render01()
	})
}

func (o *Organized) render(format func(column string, v Value) string) [][]string {
	rows := make([][]string, len(o.SampleIDs))
	for i, id := range o.SampleIDs {
		row := make([]string, 0, len(o.Columns)+1)
		row = append(row, id)
		for j, column := range o.Columns {
			row = append(row, format(column, o.cells[i][j]))
		}
		rows[i] = row
	}
	return rows
}

// Persist writes the 0/1 and the T/F tables into dir.
func (o *Organized) Persist(dir string) error {
	if err := io.WriteTableFile(filepath.Join(dir, OrganizedFileName), o.Header(), o.View01()); err != nil {
		return fmt.Errorf("error writing organized metadata: %w", err)
	}
	if err := io.WriteTableFile(filepath.Join(dir, OrganizedTFFileName), o.Header(), o.ViewTF()); err != nil {
		return fmt.Errorf("error writing T/F metadata: %w", err)
	}
	return nil
}

// LabelColumn returns a disease column as 'T'/'F' categories.
func (o *Organized) LabelColumn(name string) (model.LabelColumn, error) {
	j, ok := o.index[name]
	if !ok || !o.disease[name] {
		return model.LabelColumn{}, fmt.Errorf("%s is not a disease column of the organized metadata", name)
	}
	column := model.LabelColumn{
		Name:      name,
		SampleIDs: o.SampleIDs,
		Values:    make([]string, len(o.SampleIDs)),
	}
	for i := range o.SampleIDs {
		column.Values[i] = o.cells[i][j].RenderTF()
	}
	return column, nil
}

// DiseaseCounts returns the number of positive samples per disease column.
func (o *Organized) DiseaseCounts() map[string]int {
	counts := make(map[string]int, len(o.DiseaseCols))
	for _, c := range o.DiseaseCols {
		j := o.index[c]
		counts[c] = 0
		for i := range o.cells {
			if o.cells[i][j].Status() == StatusPositive {
				counts[c]++
			}
		}
	}
	return counts
}

// DiseasesPerSample returns, for every sample, how many conditions it has.
func (o *Organized) DiseasesPerSample() []int {
	result := make([]int, len(o.SampleIDs))
	for _, c := range o.DiseaseCols {
		j := o.index[c]
		for i := range o.cells {
			if o.cells[i][j].Status() == StatusPositive {
				result[i]++
			}
		}
	}
	return result
}
