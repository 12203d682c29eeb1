// Package charts renders disease prevalence bar charts.
package charts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	DiseaseCountsFileName     = "disease_counts.png"
	DiseasesPerSampleFileName = "disease_per_sample.png"
)

type bar struct {
	name  string
	count int
}

// DiseaseCounts draws the number of positive samples per disease, largest first.
func DiseaseCounts(counts map[string]int, path string) error {
	bars := make([]bar, 0, len(counts))
	for name, count := range counts {
		bars = append(bars, bar{name: name, count: count})
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].count != bars[j].count {
			return bars[i].count > bars[j].count
		}
		return bars[i].name < bars[j].name
	})
	return save(bars, "Disease counts", "disease", "count", path)
}

// DiseasesPerSample draws how many samples have a given number of diseases.
func DiseasesPerSample(perSample []int, path string) error {
	histogram := map[int]int{}
	for _, n := range perSample {
		histogram[n]++
	}
	keys := make([]int, 0, len(histogram))
	for k := range histogram {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	bars := make([]bar, len(keys))
	for i, k := range keys {
		bars[i] = bar{name: strconv.Itoa(k), count: histogram[k]}
	}
	return save(bars, "Disease per sample counts", "number of diseases", "number of samples", path)
}

func save(bars []bar, title, xLabel, yLabel, path string) error {
	if len(bars) == 0 {
		return fmt.Errorf("nothing to plot for %s", title)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	values := make(plotter.Values, len(bars))
	names := make([]string, len(bars))
	for i, b := range bars {
		values[i] = float64(b.count)
		names[i] = b.name
	}
	chart, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return fmt.Errorf("error creating bar chart: %w", err)
	}
	p.Add(chart)
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("error saving %s: %w", path, err)
	}
	return nil
}
