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

// Package linux contains the constants and types of the kernel's user ABI.
//
// Layouts match the riscv64 LP64 ABI: usize and isize are eight bytes wide
// and everything is little endian.
package linux

import (
	"fmt"
)

// MicrosecondsPerSecond is the ratio between the fields of a Timeval.
const MicrosecondsPerSecond = 1000000

// Timeval is struct TimeVal, the result of get_time.
type Timeval struct {
	Sec  uint64
	Usec uint64
}

// TimevalFromMicroseconds splits a microsecond count into a Timeval.
func TimevalFromMicroseconds(us uint64) Timeval {
	return Timeval{
		Sec:  us / MicrosecondsPerSecond,
		Usec: us % MicrosecondsPerSecond,
	}
}

// Microseconds returns the total number of microseconds in tv.
func (tv Timeval) Microseconds() uint64 {
	return tv.Sec*MicrosecondsPerSecond + tv.Usec
}

// String implements fmt.Stringer.String.
func (tv Timeval) String() string {
	return fmt.Sprintf("%d.%06ds", tv.Sec, tv.Usec)
}
