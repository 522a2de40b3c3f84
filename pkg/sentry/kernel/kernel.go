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

// Package kernel provides an emulation of a small cooperative kernel: tasks
// with private address spaces, syscall dispatch and a single-core round-robin
// scheduler.
//
// Each task is backed by a goroutine, but only one task goroutine runs at a
// time. The scheduler hands the processor to a task by waking its goroutine
// and waits until the task yields, exits or faults. Task fields documented as
// "owned by the task goroutine" therefore need no locking while the task runs.
package kernel

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/metric"
	"gvisor.dev/tkernel/pkg/sentry/ktime"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
	"gvisor.dev/tkernel/pkg/sentry/usage"
)

// ThreadID is a task identifier.
type ThreadID int32

// Config configures a Kernel.
type Config struct {
	// MemoryFile provides physical memory for every address space. It is
	// required and is not released by the kernel.
	MemoryFile *pgalloc.MemoryFile

	// SyscallTable dispatches syscalls. It is required.
	SyscallTable *SyscallTable

	// Clock is the time source. If nil, a MonotonicClock is used.
	Clock ktime.Clock

	// Stdout receives writes to file descriptor 1. If nil, output is
	// discarded.
	Stdout io.Writer

	// Strace logs every syscall with its result.
	Strace bool

	// Metrics receives the kernel metrics. If nil, a new registry is used.
	Metrics *metric.Registry
}

// Kernel represents an emulated kernel instance.
type Kernel struct {
	// The following fields are immutable.
	mf      *pgalloc.MemoryFile
	table   *SyscallTable
	clock   ktime.Clock
	stdout  io.Writer
	strace  bool
	metrics *metric.Registry

	syscallCount *metric.Uint64Metric
	pageFaults   *metric.Uint64Metric
	taskExits    *metric.Uint64Metric

	// sched is signalled by the running task goroutine when it gives the
	// processor back.
	sched chan struct{}

	mu sync.Mutex

	// tasks holds every task in creation order. tasks is protected by mu.
	tasks []*Task

	// runQueue holds ready tasks in scheduling order. runQueue is protected
	// by mu.
	runQueue []*Task

	// nextID is the ID of the next task. nextID is protected by mu.
	nextID ThreadID

	// running is true while Run executes. running is protected by mu.
	running bool
}

// New returns a Kernel without tasks.
func New(cfg Config) (*Kernel, error) {
	if cfg.MemoryFile == nil {
		return nil, errors.New("kernel: no memory file")
	}
	if cfg.SyscallTable == nil {
		return nil, errors.New("kernel: no syscall table")
	}
	if err := cfg.SyscallTable.Init(); err != nil {
		return nil, fmt.Errorf("kernel: initializing syscall table: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = ktime.NewMonotonicClock()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	k := &Kernel{
		mf:      cfg.MemoryFile,
		table:   cfg.SyscallTable,
		clock:   cfg.Clock,
		stdout:  cfg.Stdout,
		strace:  cfg.Strace,
		metrics: cfg.Metrics,
		sched:   make(chan struct{}),
		nextID:  1,
	}
	if err := k.registerMetrics(); err != nil {
		return nil, fmt.Errorf("kernel: registering metrics: %w", err)
	}
	return k, nil
}

func (k *Kernel) registerMetrics() error {
	var err error
	k.syscallCount, err = k.metrics.NewUint64Metric("/kernel/syscalls", "Number of syscalls dispatched, by syscall name.",
		metric.NewField("name", k.table.metricNames()))
	if err != nil {
		return err
	}
	k.pageFaults, err = k.metrics.NewUint64Metric("/kernel/page_faults", "Number of user page faults that killed a task.")
	if err != nil {
		return err
	}
	k.taskExits, err = k.metrics.NewUint64Metric("/kernel/task_exits", "Number of tasks that exited.")
	if err != nil {
		return err
	}
	if err := k.metrics.RegisterCustomUint64Metric("/memory/frames_free", false /* cumulative */, "Number of free physical frames.",
		func(...string) uint64 { return k.mf.Available() }); err != nil {
		return err
	}
	var kinds []string
	for _, kind := range usage.Kinds() {
		kinds = append(kinds, kind.String())
	}
	return k.metrics.RegisterCustomUint64Metric("/memory/usage", false /* cumulative */, "Bytes of physical memory in use, by kind.",
		func(fields ...string) uint64 {
			for _, kind := range usage.Kinds() {
				if kind.String() == fields[0] {
					return k.mf.Usage().Get(kind)
				}
			}
			return 0
		}, metric.NewField("kind", kinds))
}

// MemoryFile returns the kernel's physical memory.
func (k *Kernel) MemoryFile() *pgalloc.MemoryFile {
	return k.mf
}

// SyscallTable returns the kernel's syscall table.
func (k *Kernel) SyscallTable() *SyscallTable {
	return k.table
}

// Clock returns the kernel's time source.
func (k *Kernel) Clock() ktime.Clock {
	return k.clock
}

// Stdout returns the destination of writes to file descriptor 1.
func (k *Kernel) Stdout() io.Writer {
	return k.stdout
}

// Metrics returns the kernel's metric registry.
func (k *Kernel) Metrics() *metric.Registry {
	return k.metrics
}

// SyscallCount returns the number of times the named syscall has been
// dispatched by any task.
func (k *Kernel) SyscallCount(name string) uint64 {
	return k.syscallCount.Value(name)
}

// Tasks returns every task created so far, in creation order.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*Task(nil), k.tasks...)
}

// Release releases the address spaces of tasks that never ran to
// completion. It must not be called while Run executes.
func (k *Kernel) Release() {
	tasks := k.Tasks()
	for _, t := range tasks {
		t.mm.Release()
	}
	log.Debugf("kernel: released %d tasks", len(tasks))
}
