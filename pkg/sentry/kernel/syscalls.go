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

package kernel

import (
	"fmt"
	"sort"
	"sync"

	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/sentry/arch"
)

// SyscallFn is a syscall implementation.
type SyscallFn func(t *Task, args arch.SyscallArguments) (uintptr, *SyscallControl, error)

// MissingFn is a syscall to be called when an implementation is missing.
type MissingFn func(t *Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error)

// SyscallSupportLevel is a syscall support levels.
type SyscallSupportLevel int

// String returns a human readable representation of the support level.
func (l SyscallSupportLevel) String() string {
	switch l {
	case SupportUnimplemented:
		return "Unimplemented"
	case SupportPartial:
		return "Partial Support"
	case SupportFull:
		return "Full Support"
	default:
		return "Undocumented"
	}
}

const (
	// SupportUndocumented indicates the syscall is not documented yet.
	SupportUndocumented = iota

	// SupportUnimplemented indicates the syscall is unimplemented.
	SupportUnimplemented

	// SupportPartial indicates the syscall is partially supported.
	SupportPartial

	// SupportFull indicates the syscall is fully supported.
	SupportFull
)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn

	// SupportLevel is the level of support implemented in gVisor.
	SupportLevel SyscallSupportLevel

	// Note describes the compatibility of the syscall.
	Note string
}

// SyscallControl is returned by syscalls to control the behavior of
// Task.doSyscall.
type SyscallControl struct {
	// yield is true if the task gives up the processor before returning to
	// user code.
	yield bool

	// exit is true if the task exits with code and never returns to user
	// code.
	exit bool
	code int32
}

// CtrlYield indicates that the task goroutine should requeue itself behind
// every other ready task before returning to user code.
var CtrlYield = &SyscallControl{yield: true}

// CtrlDoExit returns a SyscallControl that terminates the calling task with
// the given exit code.
func CtrlDoExit(code int32) *SyscallControl {
	return &SyscallControl{exit: true, code: code}
}

// unknownSyscall is the metric field value of syscall numbers without an
// entry in the table.
const unknownSyscall = "unknown"

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// Missing is the function to call when a syscall is not defined. If nil,
	// ENOSYS is returned.
	Missing MissingFn

	initOnce sync.Once
	initErr  error

	// lookup is a fixed-size array that holds the syscalls below
	// MaxSyscallNum; larger numbers are served from Table.
	lookup [linux.MaxSyscallNum]SyscallFn
}

// Init initializes the system call table. It is safe to call Init more than
// once and from several goroutines; the table must not be modified
// afterwards.
func (s *SyscallTable) Init() error {
	s.initOnce.Do(func() {
		s.initErr = s.init()
	})
	return s.initErr
}

func (s *SyscallTable) init() error {
	if s.Table == nil {
		s.Table = make(map[uintptr]Syscall)
	}
	names := make(map[string]uintptr)
	for num, sc := range s.Table {
		if sc.Fn == nil {
			return fmt.Errorf("syscall %d has no implementation", num)
		}
		if sc.Name == "" {
			sc.Name = fmt.Sprintf("sys_%d", num)
			s.Table[num] = sc
		}
		if other, ok := names[sc.Name]; ok {
			return fmt.Errorf("syscalls %d and %d are both named %q", other, num, sc.Name)
		}
		if sc.Name == unknownSyscall {
			return fmt.Errorf("syscall %d uses the reserved name %q", num, sc.Name)
		}
		names[sc.Name] = num
		if num < uintptr(len(s.lookup)) {
			s.lookup[num] = sc.Fn
		}
	}
	return nil
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	if sysno < uintptr(len(s.lookup)) {
		return s.lookup[sysno]
	}
	return s.mapLookup(sysno)
}

// mapLookup returns the syscall implementation directly from the map.
func (s *SyscallTable) mapLookup(sysno uintptr) SyscallFn {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Fn
	}
	return nil
}

// LookupName looks up a syscall name.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return fmt.Sprintf("sys_%d", sysno)
}

// LookupNo looks up a syscall number by name.
func (s *SyscallTable) LookupNo(name string) (uintptr, error) {
	for i, sc := range s.Table {
		if sc.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("syscall %q not found", name)
}

// Numbers returns the syscall numbers in the table in increasing order.
func (s *SyscallTable) Numbers() []uintptr {
	nums := make([]uintptr, 0, len(s.Table))
	for num := range s.Table {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// metricName returns the value of the syscall metric field for sysno.
func (s *SyscallTable) metricName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return unknownSyscall
}

// metricNames returns every value of the syscall metric field.
func (s *SyscallTable) metricNames() []string {
	var names []string
	for _, num := range s.Numbers() {
		names = append(names, s.Table[num].Name)
	}
	return append(names, unknownSyscall)
}

// missing handles a syscall without an implementation.
func (s *SyscallTable) missing(t *Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	if s.Missing != nil {
		return s.Missing(t, sysno, args)
	}
	return 0, linuxerr.ENOSYS
}
