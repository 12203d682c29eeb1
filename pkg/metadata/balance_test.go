package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mbdisease/pkg/io"
)

// organizedWithLabel builds a one column table: the first positives rows are
// 1, the rest 0.
func organizedWithLabel(label string, positives, negatives int) *Organized {
	var ids []string
	var cells [][]Value
	for i := 0; i < positives+negatives; i++ {
		ids = append(ids, fmt.Sprintf("s%03d", i))
		code := 0.0
		if i < positives {
			code = 1
		}
		cells = append(cells, []Value{NumberValue(code)})
	}
	return newOrganized("sample_name", []string{label}, []string{label}, []ColumnType{Numeric}, ids, cells)
}

func TestBalance_UndersamplesMajority(t *testing.T) {
	organized := organizedWithLabel("precvd_v2", 10, 40)

	subset, err := Balance(organized, "precvd_v2", 2)
	require.NoError(t, err)
	require.Equal(t, 20, subset.Len())

	positives, negatives := subset.Counts()
	require.Equal(t, 10, positives)
	require.Equal(t, 10, negatives)

	for i := 0; i < 10; i++ {
		require.Equal(t, "T", subset.Values[i])
		require.Equal(t, fmt.Sprintf("s%03d", i), subset.SampleIDs[i])
	}
	seen := io.NewSet()
	for i := 10; i < 20; i++ {
		require.Equal(t, "F", subset.Values[i])
		require.False(t, seen.Contains(subset.SampleIDs[i]))
		seen[subset.SampleIDs[i]] = io.Void
		if i > 10 {
			require.Less(t, subset.SampleIDs[i-1], subset.SampleIDs[i])
		}
	}
}

func TestBalance_MajorityPositive(t *testing.T) {
	subset, err := Balance(organizedWithLabel("precvd_v2", 30, 5), "precvd_v2", 2)
	require.NoError(t, err)

	positives, negatives := subset.Counts()
	require.Equal(t, 5, positives)
	require.Equal(t, 5, negatives)
}

func TestBalance_Deterministic(t *testing.T) {
	organized := organizedWithLabel("precvd_v2", 7, 50)

	first, err := Balance(organized, "precvd_v2", 2)
	require.NoError(t, err)
	second, err := Balance(organized, "precvd_v2", 2)
	require.NoError(t, err)
	require.Equal(t, first.SampleIDs, second.SampleIDs)

	other, err := Balance(organized, "precvd_v2", 3)
	require.NoError(t, err)
	require.Equal(t, first.Len(), other.Len())
}

func TestBalance_EmptyClass(t *testing.T) {
	_, err := Balance(organizedWithLabel("precvd_v2", 0, 12), "precvd_v2", 2)
	require.ErrorIs(t, err, ErrEmptyClass)

	_, err = Balance(organizedWithLabel("precvd_v2", 12, 0), "precvd_v2", 2)
	require.ErrorIs(t, err, ErrEmptyClass)
}

func TestBalance_UnknownLabel(t *testing.T) {
	_, err := Balance(organizedWithLabel("precvd_v2", 3, 3), "ckd_v2", 2)
	require.Error(t, err)
}

func TestBalancedSubset_Persist(t *testing.T) {
	subset, err := Balance(organizedWithLabel("precvd_v2", 2, 3), "precvd_v2", 2)
	require.NoError(t, err)
	require.Equal(t, "balanced_precvd_samples.tsv", subset.FileName())

	dir := t.TempDir()
	require.NoError(t, subset.Persist(dir))

	table, err := io.ReadTable(filepath.Join(dir, subset.FileName()))
	require.NoError(t, err)
	require.Equal(t, "sample_name", table.IDColumn)
	require.Equal(t, []string{"precvd_v2"}, table.Columns)
	require.Equal(t, subset.SampleIDs, table.SampleIDs())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBalancedSet_LabelColumn(t *testing.T) {
	subset, err := Balance(organizedWithLabel("precvd_v2", 4, 9), "precvd_v2", 2)
	require.NoError(t, err)
	set := BalancedSet{"precvd_v2": subset}

	column, err := set.LabelColumn("precvd_v2")
	require.NoError(t, err)
	require.Equal(t, 8, column.Len())
	require.Equal(t, "precvd_v2", column.Name)

	_, err = set.LabelColumn("ckd_v2")
	require.Error(t, err)
}
