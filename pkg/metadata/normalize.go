package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"mbdisease/pkg/io"
)

type ColumnType int

const (
	Categorical ColumnType = iota
	Numeric
)

func (t ColumnType) String() string {
	if t == Numeric {
		return "numeric"
	}
	return "categorical"
}

// tabularNA are the tokens a tabular reader treats as an absent value.
var tabularNA = []string{
	"", "NA", "N/A", "n/a", "NaN", "nan", "-NaN", "-nan",
	"NULL", "null", "#N/A", "#NA", "<NA>",
}

// CoercionError reports a value that is not a number in a numeric column.
type CoercionError struct {
	Column string
	Sample string
	Value  string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %s, sample %s: cannot coerce %q to a number", e.Column, e.Sample, e.Value)
}

// Normalizer unifies the representations of a missing value.
type Normalizer struct {
	sentinels io.Set
}

func NewNormalizer(sentinels ...string) *Normalizer {
	set := io.NewSet(tabularNA...)
	for _, s := range sentinels {
		set[strings.TrimSpace(s)] = io.Void
	}
	return &Normalizer{sentinels: set}
}

// Normalize returns the canonical missing marker for sentinels and the
// trimmed text otherwise.
func (n *Normalizer) Normalize(raw string) Value {
	value := strings.TrimSpace(raw)
	if n.sentinels.Contains(value) {
		return MissingValue()
	}
	return TextValue(value)
}

func (n *Normalizer) NormalizeColumn(raw []string) []Value {
	result := make([]Value, len(raw))
	for i, r := range raw {
		result[i] = n.Normalize(r)
	}
	return result
}

// Coerce converts every non-missing value of a numeric column to float64.
// Categorical columns are returned unchanged. sampleIDs are only used to
// report the offending row.
func Coerce(column string, sampleIDs []string, values []Value, columnType ColumnType) ([]Value, error) {
	if columnType != Numeric {
		return values, nil
	}
	result := make([]Value, len(values))
	for i, v := range values {
		switch v.Kind {
		case Missing, Number:
			result[i] = v
		case Text:
			f, ok := ParseNumber(v.Text)
			if !ok {
				return nil, &CoercionError{Column: column, Sample: sampleIDs[i], Value: v.Text}
			}
			result[i] = NumberValue(f)
		}
	}
	return result, nil
}

// ParseNumber reads a float, or a boolean literal as 1 or 0.
func ParseNumber(s string) (float64, bool) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// IsNumeric reports whether every non-missing value parses as a float.
func IsNumeric(values []Value) bool {
	for _, v := range values {
		if v.Kind != Text {
			continue
		}
		if _, err := strconv.ParseFloat(v.Text, 64); err != nil {
			return false
		}
	}
	return true
}
