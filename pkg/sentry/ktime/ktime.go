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

// Package ktime provides the clocks the kernel reads time from.
package ktime

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic microsecond counter, the equivalent of reading the
// timer CSR and scaling it by the timer frequency.
type Clock interface {
	// NowMicroseconds returns the microseconds elapsed since the clock's
	// epoch (boot).
	NowMicroseconds() uint64
}

// NowMilliseconds returns c's reading in milliseconds.
func NowMilliseconds(c Clock) uint64 {
	return c.NowMicroseconds() / 1000
}

// MonotonicClock counts from the moment it was created, using the Go
// runtime's monotonic clock.
type MonotonicClock struct {
	boot time.Time
}

// NewMonotonicClock returns a clock whose epoch is now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{boot: time.Now()}
}

// NowMicroseconds implements Clock.NowMicroseconds.
func (c *MonotonicClock) NowMicroseconds() uint64 {
	return uint64(time.Since(c.boot).Microseconds())
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	us atomic.Uint64
}

// NewManualClock returns a clock reading us microseconds.
func NewManualClock(us uint64) *ManualClock {
	c := &ManualClock{}
	c.us.Store(us)
	return c
}

// NowMicroseconds implements Clock.NowMicroseconds.
func (c *ManualClock) NowMicroseconds() uint64 {
	return c.us.Load()
}

// Set sets the clock to us microseconds.
func (c *ManualClock) Set(us uint64) {
	c.us.Store(us)
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.us.Add(uint64(d.Microseconds()))
}
