package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"mbdisease/pkg/config"
	"mbdisease/pkg/io"
)

func parseTable(t *testing.T, lines ...string) *io.Table {
	t.Helper()
	table, err := io.ParseTable(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	return table
}

func featureParams(t *testing.T, additional ...string) *config.FeatureParams {
	t.Helper()
	yesNo := []config.MappingEntry{{Value: "yes", Code: 1}, {Value: "no", Code: 0}}
	p := &config.FeatureParams{
		DiseaseCols:        []string{"diabetes2_v2", "ckd_v2", "precvd_v2"},
		AdditionalInfoCols: additional,
		CategoricalMappings: map[string][]config.MappingEntry{
			"diabetes_binary": yesNo,
			"ckd_binary":      yesNo,
		},
		DiabetesBinary: "diabetes_binary",
		CKDBinary:      "ckd_binary",
	}
	require.NoError(t, p.Validate())
	return p
}

func TestOrganize_DropsMissingDiseaseAndEncodes(t *testing.T) {
	raw := parseTable(t,
		"sample_name\tdiabetes2_v2\tckd_v2\tprecvd_v2",
		"s1\tyes\tnot provided\t1",
		"s2\tyes\tno\t0",
	)

	organized, err := Organize(raw, io.NewSet("s1", "s2"), featureParams(t))
	require.NoError(t, err)
	require.Equal(t, []string{"s2"}, organized.SampleIDs)

	require.Equal(t, [][]string{{"s2", "1.0", "0.0", "0.0"}}, organized.View01())
	require.Equal(t, [][]string{{"s2", "T", "F", "F"}}, organized.ViewTF())
	require.Equal(t, []string{"sample_name", "diabetes2_v2", "ckd_v2", "precvd_v2"}, organized.Header())
}

func TestOrganize_ViewsAreAligned(t *testing.T) {
	raw := parseTable(t,
		"id\tdiabetes2_v2\tckd_v2\tprecvd_v2\tage_v2\tsex",
		"a\tyes\tno\t1\t40\tfemale",
		"b\tno\tno\tF\tnot applicable\tmale",
		"c\tno\tyes\t0\t61.5\tfemale",
		"d\tyes\tyes\tTrue\t38\tmale",
		"e\tno\tno\t0\t22\tmale",
	)
	features := io.NewSet("a", "c", "d", "e", "z")

	organized, err := Organize(raw, features, featureParams(t, "age_v2", "sex"))
	require.NoError(t, err)

	zeroOne, tf := organized.View01(), organized.ViewTF()
	require.Equal(t, len(zeroOne), len(tf))
	for i := range zeroOne {
		require.Equal(t, zeroOne[i][0], tf[i][0])
		require.True(t, features.Contains(zeroOne[i][0]))
		for j, column := range organized.Columns {
			cell := zeroOne[i][j+1]
			if !organized.disease[column] {
				require.Equal(t, cell, tf[i][j+1])
				continue
			}
			switch cell {
			case "1.0":
				require.Equal(t, "T", tf[i][j+1])
			case "0.0":
				require.Equal(t, "F", tf[i][j+1])
			default:
				require.Equal(t, cell, tf[i][j+1])
			}
		}
	}

	expected := [][]string{
		{"a", "T", "F", "T", "40.0", "female"},
		{"c", "F", "T", "F", "61.5", "female"},
		{"d", "T", "T", "T", "38.0", "male"},
		{"e", "F", "F", "F", "22.0", "male"},
	}
	if diff := cmp.Diff(expected, tf); diff != "" {
		t.Errorf("unexpected T/F view (-want +got):\n%s", diff)
	}
	require.Equal(t, []ColumnType{Numeric, Numeric, Numeric, Numeric, Categorical}, organized.Types)
}

func TestOrganize_PartialCovariates(t *testing.T) {
	lines := []string{
		"id\tdiabetes2_v2\tckd_v2\tprecvd_v2\tage_v2",
		"a\tyes\tno\t1\tnot provided",
		"b\tno\tno\t0\t50",
	}
	params := featureParams(t, "age_v2")

	organized, err := Organize(parseTable(t, lines...), io.NewSet("a", "b"), params)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, organized.SampleIDs)
	require.Equal(t, "", organized.View01()[0][4])

	keep := false
	params.KeepPartialCovariates = &keep
	organized, err = Organize(parseTable(t, lines...), io.NewSet("a", "b"), params)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, organized.SampleIDs)
}

func TestOrganize_AbsentAdditionalColumns(t *testing.T) {
	raw := parseTable(t,
		"id\tdiabetes2_v2\tckd_v2\tprecvd_v2",
		"a\tyes\tno\t1",
	)
	organized, err := Organize(raw, io.NewSet("a"), featureParams(t, "bmi_v2", "age_v2"))
	require.NoError(t, err)
	require.Equal(t, []string{"diabetes2_v2", "ckd_v2", "precvd_v2"}, organized.Columns)
}

func TestOrganize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		samples io.Set
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unmapped category",
			lines:   []string{"id\tdiabetes2_v2\tckd_v2\tprecvd_v2", "a\tyes\tmaybe\t1"},
			samples: io.NewSet("a"),
			check: func(t *testing.T, err error) {
				var unmapped *UnmappedCategoryError
				require.True(t, errors.As(err, &unmapped))
				require.Equal(t, "ckd_v2", unmapped.Column)
				require.Equal(t, "maybe", unmapped.Value)
			},
		},
		{
			name:    "uncoercible number",
			lines:   []string{"id\tdiabetes2_v2\tckd_v2\tprecvd_v2", "a\tyes\tno\tsometimes"},
			samples: io.NewSet("a"),
			check: func(t *testing.T, err error) {
				var coercion *CoercionError
				require.True(t, errors.As(err, &coercion))
				require.Equal(t, "precvd_v2", coercion.Column)
				require.Equal(t, "a", coercion.Sample)
			},
		},
		{
			name:    "no aligned samples",
			lines:   []string{"id\tdiabetes2_v2\tckd_v2\tprecvd_v2", "a\tyes\tno\t1"},
			samples: io.NewSet("b"),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrNoAlignedSamples)
			},
		},
		{
			name:    "missing disease column",
			lines:   []string{"id\tdiabetes2_v2\tckd_v2", "a\tyes\tno"},
			samples: io.NewSet("a"),
			check: func(t *testing.T, err error) {
				require.Contains(t, err.Error(), "precvd_v2")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			organized, err := Organize(parseTable(t, tt.lines...), tt.samples, featureParams(t))
			require.Error(t, err)
			require.Nil(t, organized)
			tt.check(t, err)
		})
	}
}

func TestOrganize_PersistIsIdempotent(t *testing.T) {
	lines := []string{
		"sample_name\tdiabetes2_v2\tckd_v2\tprecvd_v2\tbmi_v2",
		"a\tyes\tno\t1\t22.75",
		"b\tno\tyes\t0\tnot provided",
		"c\tno\tno\t1\t31",
	}
	read := func(dir string) (string, string) {
		zeroOne, err := os.ReadFile(filepath.Join(dir, OrganizedFileName))
		require.NoError(t, err)
		tf, err := os.ReadFile(filepath.Join(dir, OrganizedTFFileName))
		require.NoError(t, err)
		return string(zeroOne), string(tf)
	}

	var outputs [2][2]string
	for i := range outputs {
		dir := t.TempDir()
		organized, err := Organize(parseTable(t, lines...), io.NewSet("a", "b", "c"), featureParams(t, "bmi_v2"))
		require.NoError(t, err)
		require.NoError(t, organized.Persist(dir))
		outputs[i][0], outputs[i][1] = read(dir)
	}
	require.Equal(t, outputs[0], outputs[1])
	require.Equal(t, "sample_name\tdiabetes2_v2\tckd_v2\tprecvd_v2\tbmi_v2\n"+
		"a\t1.0\t0.0\t1.0\t22.75\n"+
		"b\t0.0\t1.0\t0.0\t\n"+
		"c\t0.0\t0.0\t1.0\t31.0\n", outputs[0][0])
	require.Equal(t, "sample_name\tdiabetes2_v2\tckd_v2\tprecvd_v2\tbmi_v2\n"+
		"a\tT\tF\tT\t22.75\n"+
		"b\tF\tT\tF\t\n"+
		"c\tF\tF\tT\t31.0\n", outputs[0][1])
}

func TestOrganize_LabelColumnAndCounts(t *testing.T) {
	raw := parseTable(t,
		"id\tdiabetes2_v2\tckd_v2\tprecvd_v2",
		"a\tyes\tno\t1",
		"b\tyes\tyes\t0",
		"c\tno\tno\t1",
	)
	organized, err := Organize(raw, io.NewSet("a", "b", "c"), featureParams(t))
	require.NoError(t, err)

	column, err := organized.LabelColumn("precvd_v2")
	require.NoError(t, err)
	require.Equal(t, []string{"T", "F", "T"}, column.Values)
	require.Equal(t, []string{"a", "b", "c"}, column.SampleIDs)

	_, err = organized.LabelColumn("bmi_v2")
	require.Error(t, err)

	require.Equal(t, map[string]int{"diabetes2_v2": 2, "ckd_v2": 1, "precvd_v2": 2}, organized.DiseaseCounts())
	require.Equal(t, []int{2, 2, 1}, organized.DiseasesPerSample())
}
