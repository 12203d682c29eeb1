// Package relevance trains one independent classifier per disease label
// (binary relevance) and aggregates their held-out accuracy.
package relevance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mbdisease/pkg/config"
	"mbdisease/pkg/model"
)

// LabelTable resolves a label name to a categorical column.
type LabelTable interface {
	LabelColumn(name string) (model.LabelColumn, error)
}

// LabelError is a recoverable failure of a single label.
type LabelError struct {
	Label string
	Stage string
	Err   error
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("label %s: %s: %v", e.Label, e.Stage, e.Err)
}

func (e *LabelError) Unwrap() error {
	return e.Err
}

type Results map[string]*model.LabelModelResult

// Orchestrator dispatches the classifier once per label. The table a label
// is resolved from is chosen by Selector, falling back to DefaultSource.
type Orchestrator struct {
	Classifier    model.Classifier
	Sources       map[string]LabelTable
	Selector      map[string]string
	DefaultSource string
	Parallelism   int
	FailFast      bool
}

func NewOrchestrator(classifier model.Classifier, primary LabelTable) *Orchestrator {
	return &Orchestrator{
		Classifier:    classifier,
		Sources:       map[string]LabelTable{config.SourcePrimary: primary},
		Selector:      map[string]string{},
		DefaultSource: config.SourcePrimary,
		Parallelism:   1,
	}
}

// AddSource registers the table labels routed to source are resolved from.
func (o *Orchestrator) AddSource(source string, table LabelTable) {
	o.Sources[source] = table
}

// Route resolves label from the table registered under source.
func (o *Orchestrator) Route(label, source string) {
	o.Selector[label] = source
}

func (o *Orchestrator) sourceFor(label string) string {
	if source, ok := o.Selector[label]; ok {
		return source
	}
	return o.DefaultSource
}

type outcome struct {
	result *model.LabelModelResult
	err    *LabelError
}

// Run trains every label independently. Labels that fail are reported as
// LabelErrors and left out of the results, unless FailFast is set in which
// case the first failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, features *model.FeatureTable, labels []string) (Results, []*LabelError, error) {
	seen := map[string]bool{}
	for _, label := range labels {
		if seen[label] {
			return nil, nil, fmt.Errorf("label %s requested more than once", label)
		}
		seen[label] = true
	}

	parallelism := o.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	outcomes := make([]outcome, len(labels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, label := range labels {
		i, label := i, label
		g.Go(func() error {
			result, err := o.runLabel(gctx, features, label)
			outcomes[i] = outcome{result: result, err: err}
			if err != nil && o.FailFast {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	results := Results{}
	var labelErrors []*LabelError
	for i, label := range labels {
		if outcomes[i].err != nil {
			log.Warn().Str("Label", label).Str("Stage", outcomes[i].err.Stage).Err(outcomes[i].err.Err).Msg("skipping label")
			labelErrors = append(labelErrors, outcomes[i].err)
			continue
		}
		results[label] = outcomes[i].result
	}
	return results, labelErrors, nil
}

func (o *Orchestrator) runLabel(ctx context.Context, features *model.FeatureTable, label string) (*model.LabelModelResult, *LabelError) {
	source := o.sourceFor(label)
	table, ok := o.Sources[source]
	if !ok {
		return nil, &LabelError{Label: label, Stage: "resolve", Err: fmt.Errorf("no table registered for source %q", source)}
	}
	column, err := table.LabelColumn(label)
	if err != nil {
		return nil, &LabelError{Label: label, Stage: "resolve", Err: err}
	}

	log.Info().Str("Label", label).Str("Source", source).Int("Samples", column.Len()).Msg("training classifier")
	result, err := o.Classifier.Classify(ctx, features, column)
	if err != nil {
		return nil, &LabelError{Label: label, Stage: "classify", Err: err}
	}
	if result == nil {
		return nil, &LabelError{Label: label, Stage: "classify", Err: errors.New("classifier returned no result")}
	}
	if len(result.Predictions) != len(result.TestTargets) {
		return nil, &LabelError{Label: label, Stage: "classify",
			Err: fmt.Errorf("%d predictions for %d held-out targets", len(result.Predictions), len(result.TestTargets))}
	}
	result.Label = label
	return result, nil
}
