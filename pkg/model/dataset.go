package model

import (
	"math"
	"math/rand"
	"sort"
)

// DataSet is a labelled design matrix. Rows of Features are aligned with
// Targets (class indexes) and SampleIDs.
type DataSet struct {
	SampleIDs []string
	Features  [][]float64
	Targets   []int
	Rand      *rand.Rand
}

func (d *DataSet) Size() int {
	return len(d.Targets)
}

// Subset returns the rows at indices, sharing the underlying vectors.
func (d *DataSet) Subset(indices []int) *DataSet {
	s := &DataSet{
		SampleIDs: make([]string, len(indices)),
		Features:  make([][]float64, len(indices)),
		Targets:   make([]int, len(indices)),
		Rand:      d.Rand,
	}
	for i, idx := range indices {
		s.SampleIDs[i] = d.SampleIDs[idx]
		s.Features[i] = d.Features[idx]
		s.Targets[i] = d.Targets[idx]
	}
	return s
}

// ClassCounts returns the number of rows per class index.
func (d *DataSet) ClassCounts() map[int]int {
	counts := map[int]int{}
	for _, t := range d.Targets {
		counts[t]++
	}
	return counts
}

type Split struct {
	Train []int
	Test  []int
}

func (d *DataSet) classIndices() [][]int {
	byClass := map[int][]int{}
	for i, t := range d.Targets {
		byClass[t] = append(byClass[t], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	result := make([][]int, len(classes))
	for i, c := range classes {
		result[i] = byClass[c]
	}
	return result
}

func (d *DataSet) shuffle(indices []int) []int {
	shuffled := make([]int, len(indices))
	copy(shuffled, indices)
	d.Rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// StratifiedSplit holds out testSize of every class. Each class with at least
// two rows contributes at least one row to each side.
func (d *DataSet) StratifiedSplit(testSize float64) Split {
	var split Split
	for _, indices := range d.classIndices() {
		shuffled := d.shuffle(indices)
		n := len(shuffled)
		nTest := int(math.Round(testSize * float64(n)))
		if n >= 2 {
			if nTest == 0 {
				nTest = 1
			}
			if nTest == n {
				nTest = n - 1
			}
		} else {
			nTest = 0
		}
		split.Test = append(split.Test, shuffled[:nTest]...)
		split.Train = append(split.Train, shuffled[nTest:]...)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split
}

// StratifiedFolds partitions the rows into k folds with class proportions
// preserved. k is capped by the smallest class; nil means CV is not possible.
func (d *DataSet) StratifiedFolds(k int) []Split {
	classes := d.classIndices()
	for _, indices := range classes {
		if len(indices) < k {
			k = len(indices)
		}
	}
	if k < 2 {
		return nil
	}

	foldOf := make([]int, d.Size())
	for _, indices := range classes {
		for pos, idx := range d.shuffle(indices) {
			foldOf[idx] = pos % k
		}
	}

	folds := make([]Split, k)
	for idx, fold := range foldOf {
		for f := range folds {
			if f == fold {
				folds[f].Test = append(folds[f].Test, idx)
			} else {
				folds[f].Train = append(folds[f].Train, idx)
			}
		}
	}
	return folds
}
