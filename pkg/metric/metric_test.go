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

package metric

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"
)

const (
	fooDescription     = "Foo!"
	counterDescription = "Counter"
)

func TestRegister(t *testing.T) {
	r := NewRegistry()
	if _, err := r.NewUint64Metric("/foo", fooDescription); err != nil {
		t.Fatalf("NewUint64Metric got err %v want nil", err)
	}
	if _, err := r.NewUint64Metric("/foo", fooDescription); err != ErrNameInUse {
		t.Errorf("NewUint64Metric duplicate got err %v want %v", err, ErrNameInUse)
	}
	if _, err := r.NewUint64Metric("foo", fooDescription); err != ErrInvalidName {
		t.Errorf("NewUint64Metric without slash got err %v want %v", err, ErrInvalidName)
	}
	if _, err := r.NewUint64Metric("/bar", fooDescription, NewField("empty", nil)); err != ErrFieldHasNoAllowedValues {
		t.Errorf("NewUint64Metric empty field got err %v want %v", err, ErrFieldHasNoAllowedValues)
	}
}

func TestCounterFields(t *testing.T) {
	r := NewRegistry()
	m := r.MustCreateNewUint64Metric("/counter", counterDescription,
		NewField("name", []string{"mmap", "munmap"}),
		NewField("result", []string{"ok", "error"}))

	m.Increment("mmap", "ok")
	m.Increment("mmap", "ok")
	m.IncrementBy(5, "munmap", "error")

	for _, tc := range []struct {
		fields []string
		want   uint64
	}{
		{[]string{"mmap", "ok"}, 2},
		{[]string{"mmap", "error"}, 0},
		{[]string{"munmap", "ok"}, 0},
		{[]string{"munmap", "error"}, 5},
	} {
		if got := m.Value(tc.fields...); got != tc.want {
			t.Errorf("Value(%v) = %d, want %d", tc.fields, got, tc.want)
		}
	}
}

func TestDisallowedFieldValuePanics(t *testing.T) {
	r := NewRegistry()
	m := r.MustCreateNewUint64Metric("/counter", counterDescription, NewField("name", []string{"a"}))
	defer func() {
		if recover() == nil {
			t.Errorf("Increment with a disallowed value did not panic")
		}
	}()
	m.Increment("b")
}

func TestValues(t *testing.T) {
	r := NewRegistry()
	m := r.MustCreateNewUint64Metric("/b", counterDescription, NewField("name", []string{"x", "y"}))
	m.Increment("y")
	r.MustRegisterCustomUint64Metric("/a", false, fooDescription, func(...string) uint64 { return 42 })

	want := []Sample{
		{Name: "/a", Value: 42},
		{Name: "/b", Fields: map[string]string{"name": "x"}, Value: 0},
		{Name: "/b", Fields: map[string]string{"name": "y"}, Value: 1},
	}
	if diff := cmp.Diff(want, r.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry()
	m := r.MustCreateNewUint64Metric("/syscalls/count", counterDescription, NewField("name", []string{"mmap", "munmap"}))
	m.IncrementBy(3, "mmap")
	r.MustRegisterCustomUint64Metric("/memory/frames_free", false, fooDescription, func(...string) uint64 { return 7 })

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	families, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("parsing exposition: %v\n%s", err, buf.String())
	}

	counter, ok := families["tkernel_syscalls_count"]
	if !ok {
		t.Fatalf("tkernel_syscalls_count missing from %v", families)
	}
	got := map[string]float64{}
	for _, pm := range counter.GetMetric() {
		got[pm.GetLabel()[0].GetValue()] = pm.GetCounter().GetValue()
	}
	if diff := cmp.Diff(map[string]float64{"mmap": 3, "munmap": 0}, got); diff != "" {
		t.Errorf("counter mismatch (-want +got):\n%s", diff)
	}

	gauge, ok := families["tkernel_memory_frames_free"]
	if !ok {
		t.Fatalf("tkernel_memory_frames_free missing from %v", families)
	}
	if v := gauge.GetMetric()[0].GetGauge().GetValue(); v != 7 {
		t.Errorf("gauge = %v, want 7", v)
	}
}
