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
	"time"

	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/sentry/arch"
)

// syscallFailure is the value every failed syscall returns.
const syscallFailure = ^uintptr(0)

// missingLogger reports syscalls without an implementation. User programs
// tend to retry them in loops, so it is rate limited.
var missingLogger = log.BasicRateLimitedLogger(time.Second)

// doSyscall dispatches the syscall described by t.regs and stores the result
// in a0. It does not return if the syscall exits the task.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) doSyscall() {
	sysno := t.regs.SyscallNo()
	args := t.regs.SyscallArgs()

	rval, ctrl, err := t.executeSyscall(sysno, args)
	if ctrl != nil && ctrl.exit {
		t.exitAndStop(ctrl.code)
	}
	if err != nil {
		rval = syscallFailure
	}
	t.regs.SetReturn(rval)
	if ctrl != nil && ctrl.yield {
		t.yield()
	}
}

// executeSyscall counts and runs one syscall.
func (t *Task) executeSyscall(sysno uintptr, args arch.SyscallArguments) (rval uintptr, ctrl *SyscallControl, err error) {
	s := t.k.table
	// The counter includes the syscall being made, so task_info sees itself.
	if sysno < linux.MaxSyscallNum {
		t.syscallTimes[sysno]++
	}
	t.k.syscallCount.Increment(s.metricName(sysno))

	if fn := s.Lookup(sysno); fn != nil {
		rval, ctrl, err = fn(t, args)
	} else {
		missingLogger.Warningf("%v: unsupported syscall %d, args %v", t, sysno, args)
		rval, err = s.missing(t, sysno, args)
	}

	if t.k.strace {
		t.straceExit(sysno, args, rval, ctrl, err)
	}
	return rval, ctrl, err
}

// straceExit logs a completed syscall.
func (t *Task) straceExit(sysno uintptr, args arch.SyscallArguments, rval uintptr, ctrl *SyscallControl, err error) {
	name := t.k.table.LookupName(sysno)
	switch {
	case ctrl != nil && ctrl.exit:
		log.Infof("[%3d] %s(%v, %v, %v) = ? (exit %d)", t.id, name, args[0], args[1], args[2], ctrl.code)
	case err != nil:
		var errno uint32
		if e, ok := linuxerr.Find(err); ok {
			errno = uint32(e.Errno())
		}
		log.Infof("[%3d] %s(%v, %v, %v) = -1 (errno %d: %v)", t.id, name, args[0], args[1], args[2], errno, err)
	default:
		log.Infof("[%3d] %s(%v, %v, %v) = %#x", t.id, name, args[0], args[1], args[2], rval)
	}
}
