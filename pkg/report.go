package pkg

import (
	"encoding/json"
	"fmt"
	gio "io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"mbdisease/pkg/io"
	"mbdisease/pkg/model"
	"mbdisease/pkg/relevance"
)

const accuracyFileName = "accuracy.tsv"

type modelSummary struct {
	Label      string   `json:"label"`
	Classes    []string `json:"classes"`
	TrainSize  int      `json:"train_size"`
	TestSize   int      `json:"test_size"`
	Accuracy   float64  `json:"accuracy"`
	CVAccuracy float64  `json:"cv_accuracy"`
	CVFolds    int      `json:"cv_folds"`
	Penalty    float64  `json:"penalty"`
}

// writeLabelResults saves the held-out predictions and a model summary of
// every label. A label whose files cannot be written keeps its result and
// gets a warning.
func writeLabelResults(outDir, idColumn string, results relevance.Results) []*relevance.LabelError {
	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var warnings []*relevance.LabelError
	for _, label := range labels {
		if err := writeLabelResult(outDir, idColumn, results[label]); err != nil {
			log.Warn().Str("Label", label).Err(err).Msg("could not save label results")
			warnings = append(warnings, &relevance.LabelError{Label: label, Stage: "persist", Err: err})
		}
	}
	return warnings
}

func writeLabelResult(outDir, idColumn string, result *model.LabelModelResult) error {
	rows := make([][]string, len(result.SampleIDs))
	for i, id := range result.SampleIDs {
		rows[i] = []string{id, result.TestTargets[i], result.Predictions[i]}
	}
	path := filepath.Join(outDir, "accuracy_results_"+result.Label+".tsv")
	if err := io.WriteTableFile(path, []string{idColumn, "true", "predicted"}, rows); err != nil {
		return err
	}

	accuracy, _ := relevance.Accuracy(result)
	summary := modelSummary{
		Label:      result.Label,
		Classes:    result.Classes,
		TrainSize:  result.TrainSize,
		TestSize:   len(result.TestTargets),
		Accuracy:   accuracy,
		CVAccuracy: result.CVAccuracy,
		CVFolds:    result.CVFolds,
		Penalty:    result.Penalty,
	}
	path = filepath.Join(outDir, "model_summary_"+result.Label+".json")
	return io.WriteFileAtomic(path, func(w gio.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(summary); err != nil {
			return fmt.Errorf("error encoding model summary: %w", err)
		}
		return nil
	})
}

func writeAccuracyTable(path string, summaries []relevance.LabelSummary) error {
	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{
			s.Label,
			formatScore(s.Accuracy),
			strconv.Itoa(s.Support),
			formatScore(s.Precision),
			formatScore(s.Recall),
			formatScore(s.F1),
		}
	}
	return io.WriteTableFile(path, []string{"label", "accuracy", "support", "precision", "recall", "f1"}, rows)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
