package model

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerateLabel is returned when a label column resolves to fewer
	// than two classes among the samples that have features.
	ErrDegenerateLabel = errors.New("label has fewer than two classes")

	// ErrNotBinary is returned when a label column holds more than two classes.
	ErrNotBinary = errors.New("label has more than two classes")
)

// FeatureTable is a sample by feature abundance matrix.
type FeatureTable struct {
	SampleIDs  []string
	FeatureIDs []string
	Counts     *mat.Dense

	sampleIndex map[string]int
}

func NewFeatureTable(sampleIDs, featureIDs []string, counts *mat.Dense) (*FeatureTable, error) {
	if counts != nil {
		rows, cols := counts.Dims()
		if rows != len(sampleIDs) || cols != len(featureIDs) {
			return nil, fmt.Errorf("feature matrix is %dx%d but has %d samples and %d features",
				rows, cols, len(sampleIDs), len(featureIDs))
		}
	}
	f := &FeatureTable{SampleIDs: sampleIDs, FeatureIDs: featureIDs, Counts: counts}
	f.sampleIndex = make(map[string]int, len(sampleIDs))
	for i, id := range sampleIDs {
		if _, ok := f.sampleIndex[id]; ok {
			return nil, fmt.Errorf("duplicate sample identifier %q in feature table", id)
		}
		f.sampleIndex[id] = i
	}
	return f, nil
}

// Row returns the feature vector of a sample.
func (f *FeatureTable) Row(sampleID string) ([]float64, bool) {
	i, ok := f.sampleIndex[sampleID]
	if !ok {
		return nil, false
	}
	return mat.Row(nil, i, f.Counts), true
}

func (f *FeatureTable) HasSample(sampleID string) bool {
	_, ok := f.sampleIndex[sampleID]
	return ok
}

func (f *FeatureTable) NumFeatures() int {
	return len(f.FeatureIDs)
}

// LabelColumn is a single categorical prediction target indexed by sample.
type LabelColumn struct {
	Name      string
	SampleIDs []string
	Values    []string
}

func (c LabelColumn) Len() int {
	return len(c.SampleIDs)
}

// LabelModelResult holds the held-out evaluation of one label's classifier.
// Predictions, TestTargets and SampleIDs are parallel.
type LabelModelResult struct {
	Label       string
	Classes     []string
	SampleIDs   []string
	Predictions []string
	TestTargets []string
	TrainSize   int
	CVAccuracy  float64
	CVFolds     int
	Penalty     float64
}

// Classifier trains and evaluates a model predicting a single label column.
type Classifier interface {
	Classify(ctx context.Context, features *FeatureTable, label LabelColumn) (*LabelModelResult, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, features *FeatureTable, label LabelColumn) (*LabelModelResult, error)

func (f ClassifierFunc) Classify(ctx context.Context, features *FeatureTable, label LabelColumn) (*LabelModelResult, error) {
	return f(ctx, features, label)
}
