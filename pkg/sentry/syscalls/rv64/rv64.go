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

// Package rv64 provides syscall implementations for the riscv64 user ABI of
// the kernel.
package rv64

import (
	"time"

	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
	"gvisor.dev/tkernel/pkg/sentry/syscalls"
)

// Syscall numbers.
const (
	SYS_WRITE        = 64
	SYS_EXIT         = 93
	SYS_SCHED_YIELD  = 124
	SYS_SET_PRIORITY = 140
	SYS_GET_TIME     = 169
	SYS_MUNMAP       = 215
	SYS_MMAP         = 222
	SYS_TASK_INFO    = 410
)

// rejected reports arguments that fail validation. Programs probing the
// address space can fail thousands of times, so it is rate limited.
var rejected = log.BasicRateLimitedLogger(time.Second)

// Table is the syscall table of the kernel.
var Table = &kernel.SyscallTable{
	Table: map[uintptr]kernel.Syscall{
		SYS_WRITE:        syscalls.PartiallySupported("write", Write, "Only fd 1 (stdout) is supported."),
		SYS_EXIT:         syscalls.Supported("exit", Exit),
		SYS_SCHED_YIELD:  syscalls.Supported("sched_yield", SchedYield),
		SYS_SET_PRIORITY: syscalls.Error("set_priority", linuxerr.EINVAL, "Priority scheduling is not implemented."),
		SYS_GET_TIME:     syscalls.Supported("get_time", GetTime),
		SYS_MUNMAP:       syscalls.Supported("munmap", Munmap),
		SYS_MMAP:         syscalls.Supported("mmap", Mmap),
		SYS_TASK_INFO:    syscalls.Supported("task_info", TaskInfo),
	},
}
