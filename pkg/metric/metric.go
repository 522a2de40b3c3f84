// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metric provides primitives for collecting metrics.
//
// Metrics live in a Registry. Each kernel owns one, so that kernels running
// side by side do not mix their counts.
package metric

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates that a metric name is not of the form
	// /component/metric.
	ErrInvalidName = errors.New("metric name must start with '/'")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrTooManyFieldCombinations indicates that the number of unique
	// combinations of fields is too large to support.
	ErrTooManyFieldCombinations = errors.New("metric has too many combinations of allowed field values")
)

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues []string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// Name returns the field name.
func (f Field) Name() string {
	return f.name
}

// fieldMapper provides multi-dimensional fields to a single unique integer key
type fieldMapper struct {
	// fields is a list of Field objects, which importantly include individual
	// Field names which are used to perform the keyToMultiField function; and
	// allowedValues for each field type which are used to perform the lookup
	// function.
	fields []Field

	// numFieldCombinations is the number of unique keys for all possible field
	// combinations.
	numFieldCombinations int
}

// newFieldMapper returns a new fieldMapper for the given set of fields.
func newFieldMapper(fields ...Field) (fieldMapper, error) {
	numFieldCombinations := 1
	for _, f := range fields {
		// Disallow fields with no possible values. We could also ignore them
		// instead, but passing in a no-allowed-values field is probably a mistake.
		if len(f.allowedValues) == 0 {
			return fieldMapper{nil, 0}, ErrFieldHasNoAllowedValues
		}
		numFieldCombinations *= len(f.allowedValues)
		if numFieldCombinations > math.MaxUint32 {
			return fieldMapper{nil, 0}, ErrTooManyFieldCombinations
		}
	}
	return fieldMapper{
		fields:               fields,
		numFieldCombinations: numFieldCombinations,
	}, nil
}

// lookup returns the key of the given combination of field values.
// This *must* be called with the correct number of fields, or it will panic.
func (m fieldMapper) lookup(fields ...string) int {
	if len(fields) != len(m.fields) {
		panic("invalid field lookup depth")
	}
	idx := 0
	remainingCombinationBucket := m.numFieldCombinations

IdxLookup:
	for i, val := range fields {
		for valIdx, allowedVal := range m.fields[i].allowedValues {
			if val == allowedVal {
				remainingCombinationBucket /= len(m.fields[i].allowedValues)
				idx += remainingCombinationBucket * valIdx
				continue IdxLookup
			}
		}
		panic(fmt.Sprintf("disallowed value %q for field %q", val, m.fields[i].name))
	}
	return idx
}

// numKeys returns the total number of key-to-field-combinations mappings
// defined by the fieldMapper.
func (m fieldMapper) numKeys() int {
	return m.numFieldCombinations
}

// keyToMultiField is the reverse of lookup. The returned list of field values
// corresponds to the same order of fields that were passed in to
// newFieldMapper.
func (m fieldMapper) keyToMultiField(key int) []string {
	if len(m.fields) == 0 && key == 0 {
		return nil
	}
	depth := len(m.fields)
	fields := make([]string, depth)
	remainingCombinationBucket := m.numFieldCombinations
	for i := 0; i < depth; i++ {
		remainingCombinationBucket /= len(m.fields[i].allowedValues)
		fields[i] = m.fields[i].allowedValues[key/remainingCombinationBucket]
		key = key % remainingCombinationBucket
	}
	return fields
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored.
type Uint64Metric struct {
	// fields is the map of field-value combination index keys to counters.
	fields []atomic.Uint64

	// fieldMapper is used to generate index keys for the fields array (above)
	// based on field value combinations, and vice-versa.
	fieldMapper fieldMapper
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.fields[m.fieldMapper.lookup(fieldValues...)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.fields[m.fieldMapper.lookup(fieldValues...)].Add(v)
}

// customUint64Metric is a registered metric whose value is computed on
// demand.
type customUint64Metric struct {
	name        string
	description string

	// cumulative is true for counters and false for gauges.
	cumulative bool

	fields fieldMapper

	// value returns the current value of the metric for the given set of
	// fields. It takes a variadic number of field values as argument.
	value func(fieldValues ...string) uint64
}

// Registry is a set of metrics with unique names.
type Registry struct {
	mu sync.Mutex

	// metrics is protected by mu.
	metrics map[string]*customUint64Metric
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]*customUint64Metric)}
}

// RegisterCustomUint64Metric registers a metric with the given name.
//
// Preconditions:
//   - value is expected to accept exactly len(fields) arguments.
func (r *Registry) RegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) error {
	if !strings.HasPrefix(name, "/") {
		return ErrInvalidName
	}
	f, err := newFieldMapper(fields...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[name]; ok {
		return ErrNameInUse
	}
	r.metrics[name] = &customUint64Metric{
		name:        name,
		description: description,
		cumulative:  cumulative,
		fields:      f,
		value:       value,
	}
	return nil
}

// MustRegisterCustomUint64Metric calls RegisterCustomUint64Metric and panics
// if it returns an error.
func (r *Registry) MustRegisterCustomUint64Metric(name string, cumulative bool, description string, value func(...string) uint64, fields ...Field) {
	if err := r.RegisterCustomUint64Metric(name, cumulative, description, value, fields...); err != nil {
		panic(fmt.Sprintf("Unable to register metric %q: %s", name, err))
	}
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
func (r *Registry) NewUint64Metric(name string, description string, fields ...Field) (*Uint64Metric, error) {
	f, err := newFieldMapper(fields...)
	if err != nil {
		return nil, err
	}
	m := &Uint64Metric{
		fieldMapper: f,
		fields:      make([]atomic.Uint64, f.numKeys()),
	}
	if err := r.RegisterCustomUint64Metric(name, true /* cumulative */, description, m.Value, fields...); err != nil {
		return nil, err
	}
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns an
// error.
func (r *Registry) MustCreateNewUint64Metric(name string, description string, fields ...Field) *Uint64Metric {
	m, err := r.NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Sample is the value of one metric for one combination of field values.
type Sample struct {
	Name   string
	Fields map[string]string
	Value  uint64
}

// Values returns a sample for every registered metric and field
// combination, sorted by name.
func (r *Registry) Values() []Sample {
	var samples []Sample
	for _, m := range r.sorted() {
		for key := 0; key < m.fields.numKeys(); key++ {
			vals := m.fields.keyToMultiField(key)
			s := Sample{
				Name:  m.name,
				Value: m.value(vals...),
			}
			if len(vals) > 0 {
				s.Fields = make(map[string]string, len(vals))
				for i, v := range vals {
					s.Fields[m.fields.fields[i].name] = v
				}
			}
			samples = append(samples, s)
		}
	}
	return samples
}

// sorted returns a snapshot of the registered metrics ordered by name.
func (r *Registry) sorted() []*customUint64Metric {
	r.mu.Lock()
	ms := make([]*customUint64Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		ms = append(ms, m)
	}
	r.mu.Unlock()
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })
	return ms
}
