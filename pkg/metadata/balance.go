package metadata

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"regexp"
	"sort"

	"mbdisease/pkg/io"
	"mbdisease/pkg/model"
)

// ErrEmptyClass means a label has no positive or no negative samples to balance.
var ErrEmptyClass = errors.New("label has an empty class")

var versionSuffix = regexp.MustCompile(`_v\d+$`)

// BalancedSubset is a single label column in which the majority class has
// been undersampled to the size of the minority class.
type BalancedSubset struct {
	IDColumn  string
	Label     string
	Seed      int64
	SampleIDs []string
	Values    []string
}

// Balance keeps every sample of the minority class of label and a seeded
// sample without replacement of the majority class of the same size.
// Positives come first, then negatives, each in source order. Samples whose
// label is neither 'T' nor 'F' are left out.
func Balance(organized *Organized, label string, seed int64) (*BalancedSubset, error) {
	column, err := organized.LabelColumn(label)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", label, err)
	}

	var positives, negatives []int
	for i, v := range column.Values {
		switch v {
		case "T":
			positives = append(positives, i)
		case "F":
			negatives = append(negatives, i)
		}
	}
	if len(positives) == 0 || len(negatives) == 0 {
		return nil, fmt.Errorf("balance %s: %d positive, %d negative samples: %w", label, len(positives), len(negatives), ErrEmptyClass)
	}

	rnd := rand.New(rand.NewSource(seed))
	if len(negatives) >= len(positives) {
		negatives = undersample(rnd, negatives, len(positives))
	} else {
		positives = undersample(rnd, positives, len(negatives))
	}

	subset := &BalancedSubset{IDColumn: organized.IDColumn, Label: label, Seed: seed}
	for _, group := range []struct {
		indices []int
		value   string
	}{{positives, "T"}, {negatives, "F"}} {
		for _, i := range group.indices {
			subset.SampleIDs = append(subset.SampleIDs, column.SampleIDs[i])
			subset.Values = append(subset.Values, group.value)
		}
	}
	return subset, nil
}

func undersample(rnd *rand.Rand, indices []int, size int) []int {
	perm := rnd.Perm(len(indices))[:size]
	sort.Ints(perm)
	result := make([]int, size)
	for i, p := range perm {
		result[i] = indices[p]
	}
	return result
}

func (b *BalancedSubset) Len() int {
	return len(b.SampleIDs)
}

// Counts returns the number of positive and negative samples.
func (b *BalancedSubset) Counts() (int, int) {
	positives := 0
	for _, v := range b.Values {
		if v == "T" {
			positives++
		}
	}
	return positives, len(b.Values) - positives
}

func (b *BalancedSubset) LabelColumn(name string) (model.LabelColumn, error) {
	if name != b.Label {
		return model.LabelColumn{}, fmt.Errorf("balanced subset holds %s, not %s", b.Label, name)
	}
	return model.LabelColumn{Name: b.Label, SampleIDs: b.SampleIDs, Values: b.Values}, nil
}

// FileName is balanced_<label>_samples.tsv with any _vN suffix dropped
// from the label, e.g. balanced_precvd_samples.tsv for precvd_v2.
func (b *BalancedSubset) FileName() string {
	return "balanced_" + versionSuffix.ReplaceAllString(b.Label, "") + "_samples.tsv"
}

// Persist writes the subset into dir.
func (b *BalancedSubset) Persist(dir string) error {
	rows := make([][]string, b.Len())
	for i := range b.SampleIDs {
		rows[i] = []string{b.SampleIDs[i], b.Values[i]}
	}
	path := filepath.Join(dir, b.FileName())
	if err := io.WriteTableFile(path, []string{b.IDColumn, b.Label}, rows); err != nil {
		return fmt.Errorf("error writing balanced subset for %s: %w", b.Label, err)
	}
	return nil
}

// BalancedSet holds the balanced subsets of several labels.
type BalancedSet map[string]*BalancedSubset

func (s BalancedSet) LabelColumn(name string) (model.LabelColumn, error) {
	subset, ok := s[name]
	if !ok {
		return model.LabelColumn{}, fmt.Errorf("no balanced subset for %s", name)
	}
	return subset.LabelColumn(name)
}
