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

package linux

import (
	"fmt"
)

// MaxSyscallNum bounds the syscall numbers that have an invocation counter.
const MaxSyscallNum = 500

// TaskStatus is the scheduling state of a task.
type TaskStatus uint32

// Task states.
const (
	TaskUnInit TaskStatus = iota
	TaskReady
	TaskRunning
	TaskExited
)

// String implements fmt.Stringer.String.
func (s TaskStatus) String() string {
	switch s {
	case TaskUnInit:
		return "UnInit"
	case TaskReady:
		return "Ready"
	case TaskRunning:
		return "Running"
	case TaskExited:
		return "Exited"
	default:
		return fmt.Sprintf("TaskStatus(%d)", uint32(s))
	}
}

// TaskInfo is struct TaskInfo, the result of task_info. Its C layout has
// four bytes of padding between SyscallTimes and Time.
type TaskInfo struct {
	// Status is the state of the task.
	Status TaskStatus

	// SyscallTimes[n] is the number of times syscall n has been invoked.
	SyscallTimes [MaxSyscallNum]uint32

	// Time is the number of milliseconds since the task was first
	// scheduled.
	Time uint64
}
