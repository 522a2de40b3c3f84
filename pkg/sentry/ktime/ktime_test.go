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

package ktime

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(1500000)
	if got := c.NowMicroseconds(); got != 1500000 {
		t.Errorf("NowMicroseconds() = %d, want 1500000", got)
	}
	c.Advance(2500 * time.Microsecond)
	if got := NowMilliseconds(c); got != 1502 {
		t.Errorf("NowMilliseconds() = %d, want 1502", got)
	}
	c.Set(7)
	if got := c.NowMicroseconds(); got != 7 {
		t.Errorf("NowMicroseconds() after Set = %d, want 7", got)
	}
}

func TestMonotonicClock(t *testing.T) {
	c := NewMonotonicClock()
	a := c.NowMicroseconds()
	time.Sleep(2 * time.Millisecond)
	b := c.NowMicroseconds()
	if b < a+2000 {
		t.Errorf("clock advanced %dus over a 2ms sleep", b-a)
	}
}
