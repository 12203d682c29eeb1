// Package config loads and validates the feature, model and data parameter
// files that drive a run.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FeatureParamsName = "feature-params"
	ModelParamsName   = "model-params"
	DataParamsName    = "data-params"

	// SourcePrimary resolves a label from the organized T/F metadata.
	SourcePrimary = "primary"
	// SourceBalanced resolves a label from its class balanced subset.
	SourceBalanced = "balanced"

	diabetesColumn = "diabetes2_v2"
	ckdColumn      = "ckd_v2"
)

var ErrMissingConfig = errors.New("missing configuration")

// DefaultMissingValues are the survey's own sentinels for an absent answer.
var DefaultMissingValues = []string{"not applicable", "not provided"}

// MappingEntry is one raw value and the binary code it stands for.
type MappingEntry struct {
	Value string  `json:"value" yaml:"value"`
	Code  float64 `json:"code" yaml:"code"`
}

// CategoricalMapping is a named, ordered value to binary code table.
type CategoricalMapping struct {
	Name    string
	Entries []MappingEntry
	index   map[string]float64
}

// NewCategoricalMapping indexes entries by their trimmed value, matching the
// trimmed cells they are looked up with.
func NewCategoricalMapping(name string, entries []MappingEntry) (CategoricalMapping, error) {
	m := CategoricalMapping{Name: name, Entries: entries, index: make(map[string]float64, len(entries))}
	for _, e := range entries {
		value := strings.TrimSpace(e.Value)
		if e.Code != 0 && e.Code != 1 {
			return CategoricalMapping{}, fmt.Errorf("mapping %s: value %q has non-binary code %v", name, e.Value, e.Code)
		}
		if _, ok := m.index[value]; ok {
			return CategoricalMapping{}, fmt.Errorf("mapping %s: duplicate value %q", name, value)
		}
		m.index[value] = e.Code
	}
	return m, nil
}

func (m CategoricalMapping) Lookup(value string) (float64, bool) {
	code, ok := m.index[value]
	return code, ok
}

type FeatureParams struct {
	DiseaseCols           []string                  `json:"disease_cols" yaml:"disease_cols"`
	AdditionalInfoCols    []string                  `json:"additional_info_cols" yaml:"additional_info_cols"`
	CategoricalMappings   map[string][]MappingEntry `json:"categorical_mappings" yaml:"categorical_mappings"`
	CategoricalCols       map[string]string         `json:"categorical_cols" yaml:"categorical_cols"`
	DiabetesBinary        string                    `json:"diabetes_binary" yaml:"diabetes_binary"`
	CKDBinary             string                    `json:"ckd_binary" yaml:"ckd_binary"`
	NumericCols           []string                  `json:"numeric_cols" yaml:"numeric_cols"`
	MissingValues         []string                  `json:"missing_values" yaml:"missing_values"`
	KeepPartialCovariates *bool                     `json:"keep_partial_covariates" yaml:"keep_partial_covariates"`

	mappings map[string]CategoricalMapping
}

// Validate checks the parameters and builds the mapping lookup tables. It
// must be called before MappingFor.
func (p *FeatureParams) Validate() error {
	if len(p.DiseaseCols) == 0 {
		return fmt.Errorf("feature params: disease_cols: %w", ErrMissingConfig)
	}
	if err := checkUnique("disease_cols", p.DiseaseCols); err != nil {
		return err
	}
	if err := checkUnique("additional_info_cols", p.AdditionalInfoCols); err != nil {
		return err
	}

	p.mappings = make(map[string]CategoricalMapping, len(p.CategoricalMappings))
	for name, entries := range p.CategoricalMappings {
		m, err := NewCategoricalMapping(name, entries)
		if err != nil {
			return fmt.Errorf("feature params: %w", err)
		}
		p.mappings[name] = m
	}

	if p.CategoricalCols == nil {
		p.CategoricalCols = map[string]string{}
	}
	bindShorthand(p.CategoricalCols, diabetesColumn, p.DiabetesBinary)
	bindShorthand(p.CategoricalCols, ckdColumn, p.CKDBinary)

	for column, name := range p.CategoricalCols {
		if _, ok := p.mappings[name]; !ok {
			return fmt.Errorf("feature params: column %s refers to unknown mapping %q", column, name)
		}
	}
	return nil
}

func bindShorthand(bindings map[string]string, column, mapping string) {
	if mapping == "" {
		return
	}
	if _, ok := bindings[column]; !ok {
		bindings[column] = mapping
	}
}

// MappingFor returns the mapping bound to column, if any.
func (p *FeatureParams) MappingFor(column string) (CategoricalMapping, bool) {
	name, ok := p.CategoricalCols[column]
	if !ok {
		return CategoricalMapping{}, false
	}
	m, ok := p.mappings[name]
	return m, ok
}

func (p *FeatureParams) KeepPartial() bool {
	return p.KeepPartialCovariates == nil || *p.KeepPartialCovariates
}

func (p *FeatureParams) Sentinels() []string {
	if len(p.MissingValues) == 0 {
		return DefaultMissingValues
	}
	return p.MissingValues
}

func (p *FeatureParams) IsDisease(column string) bool {
	for _, c := range p.DiseaseCols {
		if c == column {
			return true
		}
	}
	return false
}

type ModelParams struct {
	DiseaseTargets []string          `json:"disease_targets" yaml:"disease_targets"`
	LabelSources   map[string]string `json:"label_sources" yaml:"label_sources"`
	BalanceSeed    *int64            `json:"balance_seed" yaml:"balance_seed"`
	TestSize       float64           `json:"test_size" yaml:"test_size"`
	CV             int               `json:"cv" yaml:"cv"`
	RandomState    *int64            `json:"random_state" yaml:"random_state"`
	Regularization []float64         `json:"regularization" yaml:"regularization"`
	MaxIterations  int               `json:"max_iterations" yaml:"max_iterations"`
	Parallelism    int               `json:"parallelism" yaml:"parallelism"`
	FailFast       bool              `json:"fail_fast" yaml:"fail_fast"`
}

// Validate checks the model parameters against the disease columns they target.
func (p *ModelParams) Validate(features *FeatureParams) error {
	if len(p.DiseaseTargets) == 0 {
		return fmt.Errorf("model params: disease_targets: %w", ErrMissingConfig)
	}
	if err := checkUnique("disease_targets", p.DiseaseTargets); err != nil {
		return err
	}
	for _, target := range p.DiseaseTargets {
		if !features.IsDisease(target) {
			return fmt.Errorf("model params: target %s is not one of disease_cols", target)
		}
	}
	for label, source := range p.LabelSources {
		if source != SourcePrimary && source != SourceBalanced {
			return fmt.Errorf("model params: label %s has unknown source %q", label, source)
		}
		if !features.IsDisease(label) {
			return fmt.Errorf("model params: label source for %s which is not one of disease_cols", label)
		}
	}
	if p.TestSize != 0 && (p.TestSize <= 0 || p.TestSize >= 1) {
		return fmt.Errorf("model params: test_size %v must be in (0, 1)", p.TestSize)
	}
	if p.CV < 0 || p.Parallelism < 0 {
		return fmt.Errorf("model params: cv and parallelism must not be negative")
	}
	for _, r := range p.Regularization {
		if r < 0 {
			return fmt.Errorf("model params: negative regularization %v", r)
		}
	}
	return nil
}

// SourceFor returns the data source a label is resolved from.
func (p *ModelParams) SourceFor(label string) string {
	if source, ok := p.LabelSources[label]; ok {
		return source
	}
	return SourcePrimary
}

// BalancedLabels returns, in order, the labels of disease_cols that are
// resolved from a balanced subset.
func (p *ModelParams) BalancedLabels(diseaseCols []string) []string {
	var result []string
	for _, label := range diseaseCols {
		if p.SourceFor(label) == SourceBalanced {
			result = append(result, label)
		}
	}
	return result
}

func (p *ModelParams) Seed() int64 {
	if p.BalanceSeed == nil {
		return 2
	}
	return *p.BalanceSeed
}

func (p *ModelParams) State() int64 {
	if p.RandomState == nil {
		return 100
	}
	return *p.RandomState
}

type DataParams struct {
	FeatureTablePath string `json:"feature_table_path" yaml:"feature_table_path"`
	MetadataPath     string `json:"metadata_path" yaml:"metadata_path"`
	TreePath         string `json:"tree_path" yaml:"tree_path"`
	TempDir          string `json:"temp_dir" yaml:"temp_dir"`
	OutDir           string `json:"out_dir" yaml:"out_dir"`
	ResultsDB        string `json:"results_db" yaml:"results_db"`
}

func (p *DataParams) Validate() error {
	if p.FeatureTablePath == "" {
		return fmt.Errorf("data params: feature_table_path: %w", ErrMissingConfig)
	}
	if p.MetadataPath == "" {
		return fmt.Errorf("data params: metadata_path: %w", ErrMissingConfig)
	}
	return nil
}

func checkUnique(key string, values []string) error {
	seen := map[string]bool{}
	for _, v := range values {
		if seen[v] {
			return fmt.Errorf("%s: duplicate entry %q", key, v)
		}
		seen[v] = true
	}
	return nil
}

// Find returns the path of the parameter file called name in dir, trying
// the .json, .yaml and .yml extensions in that order.
func Find(dir, name string) (string, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s in %s: %w", name, dir, ErrMissingConfig)
}

// LoadFile decodes a JSON or YAML parameter file into v.
func LoadFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("error decoding config %s: %w", path, err)
	}
	return nil
}

// Load finds and decodes the parameter file called name in dir.
func Load(dir, name string, v interface{}) error {
	path, err := Find(dir, name)
	if err != nil {
		return err
	}
	return LoadFile(path, v)
}

// LoadFeatureParams loads and validates feature-params from dir.
func LoadFeatureParams(dir string) (*FeatureParams, error) {
	params := &FeatureParams{}
	if err := Load(dir, FeatureParamsName, params); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// LoadModelParams loads model-params from dir and validates it against features.
func LoadModelParams(dir string, features *FeatureParams) (*ModelParams, error) {
	params := &ModelParams{}
	if err := Load(dir, ModelParamsName, params); err != nil {
		return nil, err
	}
	if err := params.Validate(features); err != nil {
		return nil, err
	}
	return params, nil
}

func LoadDataParams(dir string) (*DataParams, error) {
	params := &DataParams{}
	if err := Load(dir, DataParamsName, params); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}
