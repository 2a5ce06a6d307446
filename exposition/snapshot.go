package exposition

import (
	"encoding/json"
	"sort"
)

// Series is one observed sample of a metric: a name, its label dimensions and
// a finite value.
type Series struct {
	// Name is the metric name, e.g. "system_cpu_usage".
	Name string `json:"name"`

	// Labels holds the label dimensions of the sample. Never nil; empty when
	// the line carried no label block.
	Labels map[string]string `json:"labels"`

	// Value is the sample value. Always finite.
	Value float64 `json:"value"`
}

// Label returns the value of the label key and whether it was present.
func (s Series) Label(key string) (string, bool) {
	v, ok := s.Labels[key]
	return v, ok
}

// Snapshot is the result of parsing one exposition document.
//
// A Snapshot is immutable once returned by [Parse]. It is safe to share the
// same pointer between any number of goroutines; accessors return copies so
// callers cannot mutate the shared data.
type Snapshot struct {
	byName       map[string][]float64
	seriesByName map[string][]Series
	order        []string
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		byName:       make(map[string][]float64),
		seriesByName: make(map[string][]Series),
	}
}

// add appends one sample to both views. Only called during Parse.
func (s *Snapshot) add(name string, labels map[string]string, value float64) {
	if _, seen := s.byName[name]; !seen {
		s.order = append(s.order, name)
	}
	s.byName[name] = append(s.byName[name], value)
	s.seriesByName[name] = append(s.seriesByName[name], Series{
		Name:   name,
		Labels: labels,
		Value:  value,
	})
}

// Values returns the numeric values recorded for name in the order they
// appeared in the document. Returns nil for an unknown name.
func (s *Snapshot) Values(name string) []float64 {
	if s == nil {
		return nil
	}
	vals, ok := s.byName[name]
	if !ok {
		return nil
	}
	return append([]float64(nil), vals...)
}

// Series returns the labelled samples recorded for name, in document order.
// The returned slice and label maps are copies.
func (s *Snapshot) Series(name string) []Series {
	if s == nil {
		return nil
	}
	src, ok := s.seriesByName[name]
	if !ok {
		return nil
	}
	out := make([]Series, len(src))
	for i, ser := range src {
		out[i] = Series{Name: ser.Name, Labels: copyLabels(ser.Labels), Value: ser.Value}
	}
	return out
}

// First returns the first value recorded for name.
func (s *Snapshot) First(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	vals := s.byName[name]
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// Each calls fn for every sample of name in document order, without copying.
// fn must not modify the labels map. Iteration stops when fn returns false.
func (s *Snapshot) Each(name string, fn func(Series) bool) {
	if s == nil {
		return
	}
	for _, ser := range s.seriesByName[name] {
		if !fn(ser) {
			return
		}
	}
}

// Has reports whether at least one sample of name was parsed.
func (s *Snapshot) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.byName[name]
	return ok
}

// Names returns all metric names in sorted order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// Len returns the total number of samples across all metrics.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, vals := range s.byName {
		n += len(vals)
	}
	return n
}

// MarshalJSON encodes the snapshot as a map of metric name to series.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.seriesByName)
}

func copyLabels(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
