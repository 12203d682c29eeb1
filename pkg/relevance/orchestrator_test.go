package relevance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"

	"mbdisease/pkg/config"
	"mbdisease/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errUnresolved = errors.New("no such label")

// fakeTable serves a fixed set of label columns. Every sample id is prefixed
// with marker so a test can tell which table a label came from.
type fakeTable struct {
	marker  string
	columns map[string][]string
}

func (f fakeTable) LabelColumn(name string) (model.LabelColumn, error) {
	values, ok := f.columns[name]
	if !ok {
		return model.LabelColumn{}, errUnresolved
	}
	column := model.LabelColumn{Name: name, Values: values}
	for i := range values {
		column.SampleIDs = append(column.SampleIDs, f.marker+string(rune('a'+i)))
	}
	return column, nil
}

// echoClassifier predicts every target correctly and holds out every sample.
func echoClassifier(calls *int32) model.Classifier {
	return model.ClassifierFunc(func(ctx context.Context, _ *model.FeatureTable, label model.LabelColumn) (*model.LabelModelResult, error) {
		atomic.AddInt32(calls, 1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(label.Values) == 0 {
			return nil, model.ErrDegenerateLabel
		}
		return &model.LabelModelResult{
			SampleIDs:   label.SampleIDs,
			Predictions: label.Values,
			TestTargets: label.Values,
		}, nil
	})
}

func testFeatures(t *testing.T) *model.FeatureTable {
	features, err := model.NewFeatureTable([]string{"a"}, []string{"f1"}, mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	return features
}

func primaryTable() fakeTable {
	return fakeTable{marker: "primary-", columns: map[string][]string{
		"diabetes2_v2": {"T", "F", "F"},
		"ckd_v2":       {"F", "F", "T"},
		"precvd_v2":    {"T", "F", "F", "F", "F", "F"},
		"empty":        {},
	}}
}

func TestOrchestrator_RoutesBalancedLabels(t *testing.T) {
	var calls int32
	orchestrator := NewOrchestrator(echoClassifier(&calls), primaryTable())
	orchestrator.AddSource(config.SourceBalanced, fakeTable{marker: "balanced-", columns: map[string][]string{
		"precvd_v2": {"T", "F"},
	}})
	orchestrator.Route("precvd_v2", config.SourceBalanced)

	results, labelErrors, err := orchestrator.Run(context.Background(), testFeatures(t), []string{"diabetes2_v2", "precvd_v2"})
	require.NoError(t, err)
	require.Empty(t, labelErrors)
	require.Len(t, results, 2)

	require.Equal(t, []string{"balanced-a", "balanced-b"}, results["precvd_v2"].SampleIDs)
	require.Equal(t, "primary-a", results["diabetes2_v2"].SampleIDs[0])
	require.Equal(t, "precvd_v2", results["precvd_v2"].Label)
}

func TestOrchestrator_SkipsFailedLabels(t *testing.T) {
	var calls int32
	orchestrator := NewOrchestrator(echoClassifier(&calls), primaryTable())
	orchestrator.Route("ckd_v2", "smote")

	labels := []string{"diabetes2_v2", "ckd_v2", "empty", "unknown"}
	results, labelErrors, err := orchestrator.Run(context.Background(), testFeatures(t), labels)
	require.NoError(t, err)

	require.Len(t, results, 1)
	require.Contains(t, results, "diabetes2_v2")
	for label := range results {
		require.Contains(t, labels, label)
	}

	require.Len(t, labelErrors, 3)
	require.Equal(t, "ckd_v2", labelErrors[0].Label)
	require.Equal(t, "resolve", labelErrors[0].Stage)
	require.Equal(t, "empty", labelErrors[1].Label)
	require.Equal(t, "classify", labelErrors[1].Stage)
	require.ErrorIs(t, labelErrors[1], model.ErrDegenerateLabel)
	require.ErrorIs(t, labelErrors[2], errUnresolved)
}

func TestOrchestrator_FailFast(t *testing.T) {
	var calls int32
	orchestrator := NewOrchestrator(echoClassifier(&calls), primaryTable())
	orchestrator.FailFast = true

	results, labelErrors, err := orchestrator.Run(context.Background(), testFeatures(t), []string{"diabetes2_v2", "empty"})
	require.ErrorIs(t, err, model.ErrDegenerateLabel)
	require.Nil(t, results)
	require.Nil(t, labelErrors)

	var labelErr *LabelError
	require.True(t, errors.As(err, &labelErr))
	require.Equal(t, "empty", labelErr.Label)
}

func TestOrchestrator_ParallelMatchesSequential(t *testing.T) {
	labels := []string{"diabetes2_v2", "ckd_v2", "precvd_v2", "empty"}

	run := func(parallelism int) (Results, []*LabelError) {
		var calls int32
		orchestrator := NewOrchestrator(echoClassifier(&calls), primaryTable())
		orchestrator.Parallelism = parallelism
		results, labelErrors, err := orchestrator.Run(context.Background(), testFeatures(t), labels)
		require.NoError(t, err)
		require.Equal(t, int32(len(labels)), atomic.LoadInt32(&calls))
		return results, labelErrors
	}

	sequentialResults, sequentialErrors := run(1)
	parallelResults, parallelErrors := run(4)
	require.Equal(t, sequentialResults, parallelResults)
	require.Equal(t, sequentialErrors, parallelErrors)
}

func TestOrchestrator_Cancelled(t *testing.T) {
	var calls int32
	orchestrator := NewOrchestrator(echoClassifier(&calls), primaryTable())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := orchestrator.Run(ctx, testFeatures(t), []string{"diabetes2_v2"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_DuplicateLabels(t *testing.T) {
	var calls int32
	orchestrator := NewOrchestrator(echoClassifier(&calls), primaryTable())
	_, _, err := orchestrator.Run(context.Background(), testFeatures(t), []string{"ckd_v2", "ckd_v2"})
	require.Error(t, err)
	require.Zero(t, atomic.LoadInt32(&calls))
}
