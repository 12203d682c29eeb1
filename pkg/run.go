package pkg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"mbdisease/pkg/charts"
	"mbdisease/pkg/config"
	"mbdisease/pkg/io"
	"mbdisease/pkg/metadata"
	"mbdisease/pkg/model"
	"mbdisease/pkg/relevance"
	"mbdisease/pkg/store"
)

const (
	ModeTest = "test"
	ModeAll  = "all"

	testMetadataFile     = "test_metadata.tsv"
	testFeatureTableFile = "test_feature_table.tsv"
	resultsDBFile        = "results.db"
)

type RunParameters struct {
	Mode        string
	ConfigDir   string
	DataDir     string
	TestDataDir string
}

func (p RunParameters) TempDir() string {
	return filepath.Join(p.DataDir, "temp")
}

func (p RunParameters) OutDir() string {
	return filepath.Join(p.DataDir, "out")
}

// Report is everything a run produced.
type Report struct {
	RunID       string
	Organized   *metadata.Organized
	Balanced    metadata.BalancedSet
	Results     relevance.Results
	Scores      map[string]float64
	Summaries   []relevance.LabelSummary
	LabelErrors []*relevance.LabelError
}

type inputs struct {
	featureTablePath string
	metadataPath     string
	tempDir          string
	outDir           string
	resultsDB        string
}

// Run organizes the metadata, balances the labels that need it, trains one
// classifier per target label and reports their accuracy. Configuration,
// coercion, mapping and alignment errors abort before any training.
func Run(ctx context.Context, p RunParameters) (*Report, error) {
	startedAt := time.Now()

	featureParams, err := config.LoadFeatureParams(p.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	modelParams, err := config.LoadModelParams(p.ConfigDir, featureParams)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	in, err := resolveInputs(p)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	if err := EnsureDirs(in.tempDir, in.outDir); err != nil {
		return nil, err
	}

	features, dataErrors, err := io.LoadFeatureTable(in.featureTablePath)
	if err != nil {
		return nil, fmt.Errorf("error loading feature table from %s: %w", in.featureTablePath, err)
	}
	printDataErrors(dataErrors)
	log.Info().Int("Samples", len(features.SampleIDs)).Int("Features", features.NumFeatures()).Msg("loaded feature table")

	raw, err := io.ReadTable(in.metadataPath)
	if err != nil {
		return nil, fmt.Errorf("error loading metadata from %s: %w", in.metadataPath, err)
	}

	organized, err := metadata.Organize(raw, io.NewSet(features.SampleIDs...), featureParams)
	if err != nil {
		return nil, err
	}
	if err := organized.Persist(in.tempDir); err != nil {
		log.Error().Err(err).Msg("could not persist organized metadata")
	}
	drawCharts(organized, in.outDir)

	targets := modelParams.DiseaseTargets
	if p.Mode == ModeTest {
		targets = featureParams.DiseaseCols
	}

	report := &Report{Organized: organized, Balanced: metadata.BalancedSet{}}
	orchestrator := relevance.NewOrchestrator(model.NewLogisticClassifier(model.ClassifierParameters{
		TestSize:      modelParams.TestSize,
		Folds:         modelParams.CV,
		RndSeed:       modelParams.State(),
		Penalties:     modelParams.Regularization,
		MaxIterations: modelParams.MaxIterations,
	}), organized)
	orchestrator.Parallelism = modelParams.Parallelism
	orchestrator.FailFast = modelParams.FailFast
	orchestrator.AddSource(config.SourceBalanced, report.Balanced)

	if balanced := modelParams.BalancedLabels(targets); len(balanced) > 0 {
		log.Info().Strs("Labels", balanced).Msg("labels resolved from balanced subsets")
	}

	var trainable []string
	for _, label := range targets {
		source := modelParams.SourceFor(label)
		orchestrator.Route(label, source)
		if source == config.SourceBalanced {
			subset, err := metadata.Balance(organized, label, modelParams.Seed())
			if err != nil {
				if modelParams.FailFast {
					return nil, err
				}
				log.Warn().Str("Label", label).Err(err).Msg("skipping label")
				report.LabelErrors = append(report.LabelErrors, &relevance.LabelError{Label: label, Stage: "balance", Err: err})
				continue
			}
			positives, negatives := subset.Counts()
			log.Info().Str("Label", label).Int("Positive", positives).Int("Negative", negatives).Msg("balanced label")
			if err := subset.Persist(in.outDir); err != nil {
				log.Error().Err(err).Msg("could not persist balanced subset")
			}
			report.Balanced[label] = subset
		}
		trainable = append(trainable, label)
	}

	results, labelErrors, err := orchestrator.Run(ctx, features, trainable)
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	report.Results = results
	report.LabelErrors = append(report.LabelErrors, labelErrors...)
	report.LabelErrors = append(report.LabelErrors, writeLabelResults(in.outDir, organized.IDColumn, results)...)

	report.Scores = relevance.Aggregate(results)
	report.Summaries = relevance.Summarize(results)
	relevance.LogSummaries(report.Summaries)
	if err := writeAccuracyTable(filepath.Join(in.outDir, accuracyFileName), report.Summaries); err != nil {
		log.Error().Err(err).Msg("could not write accuracy table")
	}

	report.RunID = record(in.resultsDB, p.Mode, organized.Len(), startedAt, report)
	return report, nil
}

func resolveInputs(p RunParameters) (inputs, error) {
	in := inputs{tempDir: p.TempDir(), outDir: p.OutDir()}
	if p.Mode == ModeTest {
		in.metadataPath = filepath.Join(p.TestDataDir, testMetadataFile)
		in.featureTablePath = filepath.Join(p.TestDataDir, testFeatureTableFile)
		in.resultsDB = filepath.Join(in.outDir, resultsDBFile)
		return in, nil
	}

	dataParams, err := config.LoadDataParams(p.ConfigDir)
	if err != nil {
		return in, err
	}
	in.metadataPath = dataParams.MetadataPath
	in.featureTablePath = dataParams.FeatureTablePath
	if dataParams.TempDir != "" {
		in.tempDir = dataParams.TempDir
	}
	if dataParams.OutDir != "" {
		in.outDir = dataParams.OutDir
	}
	in.resultsDB = dataParams.ResultsDB
	if in.resultsDB == "" {
		in.resultsDB = filepath.Join(in.outDir, resultsDBFile)
	}
	if dataParams.TreePath != "" {
		log.Debug().Str("Path", dataParams.TreePath).Msg("phylogenetic tree is not used by the classifiers")
	}
	return in, nil
}

// EnsureDirs creates every directory that does not exist yet.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// Clean removes the temp and out directories. Failures are logged and
// returned, never fatal.
func Clean(p RunParameters) []error {
	var errs []error
	for _, dir := range []string{p.TempDir(), p.OutDir()} {
		if err := os.RemoveAll(dir); err != nil {
			log.Error().Str("Path", dir).Err(err).Msg("could not remove directory")
			errs = append(errs, err)
		}
	}
	return errs
}

func drawCharts(organized *metadata.Organized, outDir string) {
	if err := charts.DiseaseCounts(organized.DiseaseCounts(), filepath.Join(outDir, charts.DiseaseCountsFileName)); err != nil {
		log.Warn().Err(err).Msg("could not draw disease counts")
	}
	if err := charts.DiseasesPerSample(organized.DiseasesPerSample(), filepath.Join(outDir, charts.DiseasesPerSampleFileName)); err != nil {
		log.Warn().Err(err).Msg("could not draw diseases per sample")
	}
}

func record(path, mode string, samples int, startedAt time.Time, report *Report) string {
	db, err := store.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("results will not be recorded")
		return ""
	}
	defer db.Close()

	runID, err := db.BeginRun(mode, samples, startedAt)
	if err != nil {
		log.Error().Err(err).Msg("results will not be recorded")
		return ""
	}
	if err := db.RecordScores(runID, report.Summaries); err != nil {
		log.Error().Err(err).Msg("could not record scores")
	}
	if err := db.RecordLabelErrors(runID, report.LabelErrors); err != nil {
		log.Error().Err(err).Msg("could not record label errors")
	}
	log.Info().Str("RunID", runID).Str("Database", path).Msg("recorded run")
	return runID
}
