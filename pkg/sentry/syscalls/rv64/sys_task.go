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

package rv64

import (
	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/marshal"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
)

// TaskInfo implements task_info(ti).
func TaskInfo(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	addr := args[0].Pointer()

	// The caller is the running task.
	info := linux.TaskInfo{
		Status:       linux.TaskRunning,
		SyscallTimes: t.SyscallCounts(),
		Time:         t.ElapsedMillis(),
	}
	if _, err := marshal.CopyOut(t, addr, &info); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}

// SchedYield implements sched_yield().
func SchedYield(*kernel.Task, arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, kernel.CtrlYield, nil
}

// Exit implements exit(code).
func Exit(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	return 0, kernel.CtrlDoExit(args[0].Int()), nil
}
