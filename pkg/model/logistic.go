package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var _ Classifier = &LogisticClassifier{}

type ClassifierParameters struct {
	TestSize      float64
	Folds         int
	RndSeed       int64
	Penalties     []float64
	MaxIterations int
}

func DefaultClassifierParameters() ClassifierParameters {
	return ClassifierParameters{
		TestSize:      0.3,
		Folds:         10,
		RndSeed:       100,
		Penalties:     []float64{0.01, 0.1, 1, 10},
		MaxIterations: 200,
	}
}

// LogisticClassifier is an L2 regularised logistic regression over relative
// abundances. The penalty is chosen by stratified k-fold CV on the training split.
type LogisticClassifier struct {
	params ClassifierParameters
}

func NewLogisticClassifier(params ClassifierParameters) *LogisticClassifier {
	defaults := DefaultClassifierParameters()
	if params.TestSize <= 0 || params.TestSize >= 1 {
		params.TestSize = defaults.TestSize
	}
	if params.Folds <= 0 {
		params.Folds = defaults.Folds
	}
	if len(params.Penalties) == 0 {
		params.Penalties = defaults.Penalties
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = defaults.MaxIterations
	}
	return &LogisticClassifier{params: params}
}

// Classify ignores samples that are missing from either the feature table or
// the label column, then trains on a stratified split and predicts the held-out rows.
func (c *LogisticClassifier) Classify(ctx context.Context, features *FeatureTable, label LabelColumn) (*LabelModelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, classes, err := c.buildDataSet(features, label)
	if err != nil {
		return nil, err
	}

	split := data.StratifiedSplit(c.params.TestSize)
	train, test := data.Subset(split.Train), data.Subset(split.Test)
	if len(train.ClassCounts()) < 2 || test.Size() == 0 {
		return nil, fmt.Errorf("label %s: not enough samples to split (%d rows): %w", label.Name, data.Size(), ErrDegenerateLabel)
	}

	penalty, cvAccuracy, folds, err := c.selectPenalty(ctx, train)
	if err != nil {
		return nil, err
	}

	scaler := fitScaler(train.Features)
	weights, err := fitLogistic(scaler.transformAll(train.Features), train.Targets, penalty, c.params.MaxIterations)
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", label.Name, err)
	}

	result := &LabelModelResult{
		Label:       label.Name,
		Classes:     classes.Names(),
		SampleIDs:   test.SampleIDs,
		Predictions: make([]string, test.Size()),
		TestTargets: make([]string, test.Size()),
		TrainSize:   train.Size(),
		CVAccuracy:  cvAccuracy,
		CVFolds:     folds,
		Penalty:     penalty,
	}
	for i, x := range test.Features {
		result.Predictions[i] = classes.IndexToName[predict(weights, scaler.transform(x))]
		result.TestTargets[i] = classes.IndexToName[test.Targets[i]]
	}

	log.Debug().Str("Label", label.Name).
		Int("Train", train.Size()).
		Int("Test", test.Size()).
		Float64("Penalty", penalty).
		Float64("CVAccuracy", cvAccuracy).
		Msg("trained classifier")
	return result, nil
}

func (c *LogisticClassifier) buildDataSet(features *FeatureTable, label LabelColumn) (*DataSet, NameMap, error) {
	var ids, values []string
	for i, id := range label.SampleIDs {
		if label.Values[i] == "" || !features.HasSample(id) {
			continue
		}
		ids = append(ids, id)
		values = append(values, label.Values[i])
	}

	classes := NewClassMap(values)
	switch {
	case classes.Size() < 2:
		return nil, classes, fmt.Errorf("label %s: %d class(es) across %d samples: %w", label.Name, classes.Size(), len(ids), ErrDegenerateLabel)
	case classes.Size() > 2:
		return nil, classes, fmt.Errorf("label %s: classes %v: %w", label.Name, classes.Names(), ErrNotBinary)
	}

	data := &DataSet{
		SampleIDs: ids,
		Features:  make([][]float64, len(ids)),
		Targets:   make([]int, len(ids)),
		Rand:      rand.New(rand.NewSource(c.params.RndSeed)),
	}
	for i, id := range ids {
		row, _ := features.Row(id)
		data.Features[i] = relativeAbundance(row)
		data.Targets[i], _ = classes.ContainsName(values[i])
	}
	return data, classes, nil
}

func (c *LogisticClassifier) selectPenalty(ctx context.Context, train *DataSet) (float64, float64, int, error) {
	folds := train.StratifiedFolds(c.params.Folds)
	if len(folds) == 0 {
		return c.params.Penalties[0], 0, 0, nil
	}

	bestPenalty, bestAccuracy := c.params.Penalties[0], -1.0
	for _, penalty := range c.params.Penalties {
		total := 0.0
		for _, fold := range folds {
			if err := ctx.Err(); err != nil {
				return 0, 0, 0, err
			}
			foldTrain, foldTest := train.Subset(fold.Train), train.Subset(fold.Test)
			scaler := fitScaler(foldTrain.Features)
			weights, err := fitLogistic(scaler.transformAll(foldTrain.Features), foldTrain.Targets, penalty, c.params.MaxIterations)
			if err != nil {
				return 0, 0, 0, err
			}
			correct := 0
			for i, x := range foldTest.Features {
				if predict(weights, scaler.transform(x)) == foldTest.Targets[i] {
					correct++
				}
			}
			total += float64(correct) / float64(foldTest.Size())
		}
		accuracy := total / float64(len(folds))
		if accuracy > bestAccuracy {
			bestPenalty, bestAccuracy = penalty, accuracy
		}
	}
	return bestPenalty, bestAccuracy, len(folds), nil
}

func relativeAbundance(counts []float64) []float64 {
	result := make([]float64, len(counts))
	copy(result, counts)
	if total := floats.Sum(result); total > 0 {
		floats.Scale(1/total, result)
	}
	return result
}

type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(rows [][]float64) scaler {
	if len(rows) == 0 {
		return scaler{}
	}
	numFeatures := len(rows[0])
	s := scaler{mean: make([]float64, numFeatures), std: make([]float64, numFeatures)}
	column := make([]float64, len(rows))
	for j := 0; j < numFeatures; j++ {
		for i := range rows {
			column[i] = rows[i][j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.mean[j], s.std[j] = mean, std
	}
	return s
}

func (s scaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.mean[j]) / s.std[j]
	}
	return out
}

func (s scaler) transformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = s.transform(rows[i])
	}
	return out
}

// fitLogistic returns the feature weights followed by the bias.
func fitLogistic(x [][]float64, y []int, penalty float64, maxIterations int) ([]float64, error) {
	n := float64(len(x))
	numFeatures := 0
	if len(x) > 0 {
		numFeatures = len(x[0])
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			loss := 0.0
			for i := range x {
				z := floats.Dot(w[:numFeatures], x[i]) + w[numFeatures]
				loss += softplus(z) - float64(y[i])*z
			}
			reg := floats.Dot(w[:numFeatures], w[:numFeatures])
			return loss/n + 0.5*penalty*reg
		},
		Grad: func(grad, w []float64) {
			for j := range grad {
				grad[j] = 0
			}
			for i := range x {
				residual := sigmoid(floats.Dot(w[:numFeatures], x[i])+w[numFeatures]) - float64(y[i])
				floats.AddScaled(grad[:numFeatures], residual, x[i])
				grad[numFeatures] += residual
			}
			floats.Scale(1/n, grad)
			floats.AddScaled(grad[:numFeatures], penalty, w[:numFeatures])
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   maxIterations,
	}
	result, err := optimize.Minimize(problem, make([]float64, numFeatures+1), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("error fitting logistic regression: %w", err)
	}
	if err != nil {
		// line search failures near the optimum still leave a usable location
		log.Debug().Err(err).Str("Status", result.Status.String()).Msg("optimizer stopped early")
	}
	return result.X, nil
}

func predict(weights, x []float64) int {
	numFeatures := len(weights) - 1
	if sigmoid(floats.Dot(weights[:numFeatures], x)+weights[numFeatures]) >= 0.5 {
		return 1
	}
	return 0
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
