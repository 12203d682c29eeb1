package metadata

import (
	"fmt"

	"mbdisease/pkg/config"
)

// UnmappedCategoryError reports a categorical value missing from its mapping.
type UnmappedCategoryError struct {
	Column  string
	Mapping string
	Sample  string
	Value   string
}

func (e *UnmappedCategoryError) Error() string {
	return fmt.Sprintf("column %s, sample %s: unmapped category %q (mapping %s)", e.Column, e.Sample, e.Value, e.Mapping)
}

// Encode replaces every non-missing value with its binary code. Values that
// are already numbers are looked up by their rendered text.
func Encode(column string, sampleIDs []string, values []Value, mapping config.CategoricalMapping) ([]Value, error) {
	result := make([]Value, len(values))
	for i, v := range values {
		if v.IsMissing() {
			result[i] = v
			continue
		}
		key := v.Text
		if v.Kind == Number {
			key = v.Render01()
		}
		code, ok := mapping.Lookup(key)
		if !ok {
			return nil, &UnmappedCategoryError{Column: column, Mapping: mapping.Name, Sample: sampleIDs[i], Value: key}
		}
		result[i] = NumberValue(code)
	}
	return result, nil
}
