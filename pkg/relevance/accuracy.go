package relevance

import (
	"math"
	"sort"

	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/rs/zerolog/log"

	"mbdisease/pkg/model"
)

// PositiveClass is the category counted as a positive prediction.
const PositiveClass = "T"

// Accuracy is the fraction of held-out predictions equal to the held-out
// targets. It reports false when there are no held-out samples or the
// predictions do not line up with them.
func Accuracy(result *model.LabelModelResult) (float64, bool) {
	if result == nil || len(result.TestTargets) == 0 || len(result.Predictions) != len(result.TestTargets) {
		return 0, false
	}
	correct := 0
	for i := range result.TestTargets {
		if result.Predictions[i] == result.TestTargets[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(result.TestTargets)), true
}

// Aggregate returns the accuracy of every label in results. Labels without
// held-out samples are left out rather than scored as zero.
func Aggregate(results Results) map[string]float64 {
	scores := make(map[string]float64, len(results))
	for label, result := range results {
		if score, ok := Accuracy(result); ok {
			scores[label] = score
		}
	}
	return scores
}

type LabelSummary struct {
	Label      string
	Accuracy   float64
	Support    int
	TruePos    int
	FalsePos   int
	TrueNeg    int
	FalseNeg   int
	Precision  float64
	Recall     float64
	F1         float64
	CVAccuracy float64
}

// Summarize scores every label with held-out samples, sorted by label name.
func Summarize(results Results) []LabelSummary {
	scores := Aggregate(results)
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	summaries := make([]LabelSummary, 0, len(labels))
	for _, label := range labels {
		result := results[label]
		metrics := stats.NewMetricCounter()
		for i, target := range result.TestTargets {
			predicted := result.Predictions[i]
			switch {
			case target == PositiveClass && predicted == PositiveClass:
				metrics.IncTruePos()
			case target == PositiveClass:
				metrics.IncFalseNeg()
			case predicted == PositiveClass:
				metrics.IncFalsePos()
			default:
				metrics.TrueNeg++
			}
		}
		summaries = append(summaries, LabelSummary{
			Label:      label,
			Accuracy:   scores[label],
			Support:    len(result.TestTargets),
			TruePos:    metrics.TruePos,
			FalsePos:   metrics.FalsePos,
			TrueNeg:    metrics.TrueNeg,
			FalseNeg:   metrics.FalseNeg,
			Precision:  finite(metrics.Precision()),
			Recall:     finite(metrics.Recall()),
			F1:         finite(metrics.F1Score()),
			CVAccuracy: result.CVAccuracy,
		})
	}
	return summaries
}

// MacroAccuracy is the unweighted mean accuracy over labels.
func MacroAccuracy(summaries []LabelSummary) float64 {
	if len(summaries) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range summaries {
		total += s.Accuracy
	}
	return total / float64(len(summaries))
}

func LogSummaries(summaries []LabelSummary) {
	for _, s := range summaries {
		log.Info().Str("Label", s.Label).
			Int("TP", s.TruePos).
			Int("FP", s.FalsePos).
			Int("TN", s.TrueNeg).
			Int("FN", s.FalseNeg).
			Float64("Accuracy", s.Accuracy).
			Float64("Precision", s.Precision).
			Float64("Recall", s.Recall).
			Float64("F1", s.F1).
			Msg("")
	}
	log.Info().Float64("MacroAccuracy", MacroAccuracy(summaries)).Int("Labels", len(summaries)).Msg("")
}

// finite maps the NaN of an empty ratio to zero.
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
