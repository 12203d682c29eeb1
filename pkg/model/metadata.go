package model

import "sort"

// NameMap implements a bidirectional mapping between a name and an index
type NameMap struct {
	NameToIndex map[string]int
	IndexToName map[int]string
}

func (f NameMap) Set(name string, index int) {
	f.NameToIndex[name] = index
	f.IndexToName[index] = name
}

func (f NameMap) Size() int {
	return len(f.IndexToName)
}

func (f NameMap) ContainsName(name string) (int, bool) {
	index, ok := f.NameToIndex[name]
	return index, ok
}

func NewNameMap() NameMap {
	return NameMap{
		NameToIndex: map[string]int{},
		IndexToName: map[int]string{},
	}
}

// NewClassMap indexes the distinct values in lexical order, so 'F' is 0 and
// 'T' is 1 for a T/F label.
func NewClassMap(values []string) NameMap {
	distinct := map[string]struct{}{}
	for _, v := range values {
		distinct[v] = struct{}{}
	}
	names := make([]string, 0, len(distinct))
	for v := range distinct {
		names = append(names, v)
	}
	sort.Strings(names)

	m := NewNameMap()
	for i, name := range names {
		m.Set(name, i)
	}
	return m
}

// Names returns the mapped names ordered by index.
func (f NameMap) Names() []string {
	result := make([]string, f.Size())
	for i := range result {
		result[i] = f.IndexToName[i]
	}
	return result
}
