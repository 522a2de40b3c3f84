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
	"errors"

	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/mm"
)

// PageFaultExitCode is the exit code of a task killed by a page fault.
const PageFaultExitCode = -2

// UserContext is the view of the machine that a Program runs on: it issues
// syscalls and performs memory accesses the way user mode would, subject to
// the page permissions of the task's address space.
//
// A UserContext is only valid on the task goroutine that received it.
type UserContext struct {
	t *Task
}

// Task returns the task running the program.
func (u *UserContext) Task() *Task {
	return u.t
}

// Syscall traps into the kernel with the given syscall number and arguments
// and returns the value left in a0. It does not return if the syscall exits
// the task.
func (u *UserContext) Syscall(sysno uintptr, args ...uintptr) int64 {
	a := arch.Args(args...)
	regs := &u.t.regs
	regs.A7 = uint64(sysno)
	regs.A0, regs.A1, regs.A2 = uint64(a[0].Value), uint64(a[1].Value), uint64(a[2].Value)
	regs.A3, regs.A4, regs.A5 = uint64(a[3].Value), uint64(a[4].Value), uint64(a[5].Value)
	u.t.doSyscall()
	return int64(regs.Return())
}

// Load reads len(dst) bytes at addr. A fault kills the task.
func (u *UserContext) Load(addr hostarch.Addr, dst []byte) {
	if err := u.t.mm.UserLoad(addr, dst); err != nil {
		u.t.fault(err)
	}
}

// Store writes src at addr. A fault kills the task.
func (u *UserContext) Store(addr hostarch.Addr, src []byte) {
	if err := u.t.mm.UserStore(addr, src); err != nil {
		u.t.fault(err)
	}
}

// LoadUint64 reads a little endian uint64 at addr.
func (u *UserContext) LoadUint64(addr hostarch.Addr) uint64 {
	var buf [8]byte
	u.Load(addr, buf[:])
	return hostarch.ByteOrder.Uint64(buf[:])
}

// StoreUint64 writes v at addr in little endian order.
func (u *UserContext) StoreUint64(addr hostarch.Addr, v uint64) {
	var buf [8]byte
	hostarch.ByteOrder.PutUint64(buf[:], v)
	u.Store(addr, buf[:])
}

// CheckAccess faults, killing the task, if user mode could not perform at on
// every byte of [addr, addr+length). Programs use it to model instruction
// fetches and other accesses that move no data.
func (u *UserContext) CheckAccess(addr hostarch.Addr, length int, at hostarch.AccessType) {
	if err := u.t.mm.CheckAccess(addr, length, at); err != nil {
		u.t.fault(err)
	}
}

// fault kills t in response to a failed user access.
func (t *Task) fault(err error) {
	var f *mm.Fault
	if errors.As(err, &f) {
		log.Warningf("%v: page fault, bad addr = %v (%v), kernel killed it", t, f.Addr, f.Access)
	} else {
		log.Warningf("%v: memory access failed, kernel killed it: %v", t, err)
	}
	t.k.pageFaults.Increment()
	t.exitAndStop(PageFaultExitCode)
}
