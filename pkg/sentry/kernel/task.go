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
	"sync/atomic"

	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/cleanup"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/ktime"
	"gvisor.dev/tkernel/pkg/sentry/mm"
)

// Program is the user code of a task. Returning from a Program exits the
// task with the returned code.
type Program func(u *UserContext) int32

// AreaSpec describes an area mapped into a task's address space before it
// first runs, the way a loader maps program segments and the user stack.
type AreaSpec struct {
	Start hostarch.Addr
	End   hostarch.Addr
	Opts  pagetables.MapOpts

	// Identity maps every page to the frame with the same number instead of
	// allocating frames.
	Identity bool
}

// TaskConfig defines the configuration of a new Task (see below).
type TaskConfig struct {
	// Name is a human-readable task name used in logs.
	Name string

	// Program is the task's user code.
	Program Program

	// Areas are mapped into the new address space in order.
	Areas []AreaSpec
}

// Task represents a thread of execution in the emulated user program.
//
// Each task is associated with a goroutine, called the task goroutine, that
// executes its Program and the syscalls it makes. See Task.run
// (task_sched.go).
type Task struct {
	// The following fields are immutable.
	k    *Kernel
	id   ThreadID
	name string
	prog Program
	mm   *mm.MemoryManager

	// wake is signalled by the scheduler to give the processor to the task.
	wake chan struct{}

	// status is a linux.TaskStatus. It is written by the scheduler and the
	// task goroutine and may be read by anyone.
	status atomic.Uint32

	// started is true once the task has been scheduled. started and
	// firstRunMillis are owned by the scheduler.
	started        bool
	firstRunMillis uint64

	// exitMillis is the time at which the task exited. It is written by the
	// task goroutine before its status becomes TaskExited.
	exitMillis uint64

	// regs holds the registers of the current syscall. regs is exclusive to
	// the task goroutine.
	regs arch.Registers

	// syscallTimes counts the syscalls made by the task, by number.
	// syscallTimes is owned by the task goroutine.
	syscallTimes [linux.MaxSyscallNum]uint32

	// exitCode is valid once status is TaskExited.
	exitCode int32
}

// NewTask creates a new task with its own address space and places it at the
// back of the run queue.
func (k *Kernel) NewTask(cfg TaskConfig) (*Task, error) {
	if cfg.Program == nil {
		return nil, fmt.Errorf("task %q has no program", cfg.Name)
	}
	m, err := mm.NewMemoryManager(k.mf)
	if err != nil {
		return nil, fmt.Errorf("creating address space: %w", err)
	}
	cu := cleanup.Make(m.Release)
	defer cu.Clean()

	for _, a := range cfg.Areas {
		insert := m.InsertFramedArea
		if a.Identity {
			insert = m.InsertIdentityArea
		}
		if err := insert(a.Start, a.End, a.Opts); err != nil {
			return nil, fmt.Errorf("mapping [%v, %v): %w", a.Start, a.End, err)
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	t := &Task{
		k:    k,
		id:   k.nextID,
		name: cfg.Name,
		prog: cfg.Program,
		mm:   m,
		wake: make(chan struct{}),
	}
	if t.name == "" {
		t.name = fmt.Sprintf("task-%d", t.id)
	}
	k.nextID++
	t.setStatus(linux.TaskReady)
	k.tasks = append(k.tasks, t)
	k.runQueue = append(k.runQueue, t)
	cu.Release()
	return t, nil
}

// ID returns the task's ID.
func (t *Task) ID() ThreadID {
	return t.id
}

// Name returns the task's name.
func (t *Task) Name() string {
	return t.name
}

// String implements fmt.Stringer.String.
func (t *Task) String() string {
	return fmt.Sprintf("%s[%d]", t.name, t.id)
}

// Kernel returns the Kernel containing t.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// MemoryManager returns t's address space.
func (t *Task) MemoryManager() *mm.MemoryManager {
	return t.mm
}

// UserToken returns the token of t's page table.
func (t *Task) UserToken() uint64 {
	return t.mm.Token()
}

// Status returns t's scheduling state.
func (t *Task) Status() linux.TaskStatus {
	return linux.TaskStatus(t.status.Load())
}

func (t *Task) setStatus(s linux.TaskStatus) {
	t.status.Store(uint32(s))
}

// FirstRunMillis returns the time in milliseconds at which t was first
// scheduled, or zero if it has not run yet.
func (t *Task) FirstRunMillis() uint64 {
	return t.firstRunMillis
}

// ElapsedMillis returns the number of milliseconds since t was first
// scheduled.
//
// Preconditions: t is running.
func (t *Task) ElapsedMillis() uint64 {
	return ktime.NowMilliseconds(t.k.clock) - t.firstRunMillis
}

// RunMillis returns how long t has been running: zero before it is first
// scheduled, and the time from first run to exit once it has exited.
//
// Preconditions: the scheduler is not running, or t is the current task.
func (t *Task) RunMillis() uint64 {
	if !t.started {
		return 0
	}
	if t.Status() == linux.TaskExited {
		return t.exitMillis - t.firstRunMillis
	}
	return t.ElapsedMillis()
}

// SyscallCounts returns a copy of t's per-syscall invocation counters.
//
// Preconditions: t is running or has exited.
func (t *Task) SyscallCounts() [linux.MaxSyscallNum]uint32 {
	return t.syscallTimes
}

// ExitCode returns t's exit code. ok is false if t has not exited.
func (t *Task) ExitCode() (code int32, ok bool) {
	if t.Status() != linux.TaskExited {
		return 0, false
	}
	return t.exitCode, true
}

// CopyOutBytes implements marshal.CopyContext.CopyOutBytes. It translates
// addr through t's page table token, the way the kernel reaches user memory
// from a syscall.
func (t *Task) CopyOutBytes(addr hostarch.Addr, src []byte) (int, error) {
	return mm.CopyOutBytes(t.k.mf, t.UserToken(), addr, src)
}

// CopyInBytes implements marshal.CopyContext.CopyInBytes.
func (t *Task) CopyInBytes(addr hostarch.Addr, dst []byte) (int, error) {
	return mm.CopyInBytes(t.k.mf, t.UserToken(), addr, dst)
}
