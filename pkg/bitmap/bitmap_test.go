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

package bitmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetClear(t *testing.T) {
	b := New(130)
	for _, i := range []uint64{0, 5, 63, 64, 129} {
		if !b.Set(i) {
			t.Errorf("Set(%d) = false on a clear bit", i)
		}
	}
	if b.Set(5) {
		t.Errorf("Set(5) = true on a set bit")
	}
	if got := b.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
	if diff := cmp.Diff([]uint64{0, 5, 63, 64, 129}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice mismatch (-want +got):\n%s", diff)
	}
	if !b.Clear(63) || b.Clear(63) {
		t.Errorf("Clear(63) did not report the previous state")
	}
	if b.Test(63) || !b.Test(64) {
		t.Errorf("Test after Clear(63) is wrong")
	}
	if b.Test(1000) {
		t.Errorf("Test beyond Size reported a set bit")
	}
}

func TestFirstOne(t *testing.T) {
	b := New(200)
	if _, ok := b.FirstOne(0); ok {
		t.Fatalf("FirstOne found a bit in an empty bitmap")
	}
	b.Set(70)
	b.Set(150)
	for _, tc := range []struct {
		start  uint64
		want   uint64
		wantOK bool
	}{
		{0, 70, true},
		{70, 70, true},
		{71, 150, true},
		{151, 0, false},
		{1000, 0, false},
	} {
		got, ok := b.FirstOne(tc.start)
		if ok != tc.wantOK || (ok && got != tc.want) {
			t.Errorf("FirstOne(%d) = %d, %t, want %d, %t", tc.start, got, ok, tc.want, tc.wantOK)
		}
	}
}
