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

// Package scenario reads scripted user programs from YAML files.
//
// A scenario lists tasks. Each task has areas that are mapped before it runs
// and a list of steps, each of which makes one syscall or one user memory
// access. For example:
//
//	name: mmap
//	tasks:
//	- name: alloc
//	  exit: 0
//	  steps:
//	  - syscall: mmap
//	    args: [0x10000000, 4096, 3]
//	    want: 0
//	  - store: {addr: 0x10000000, value: 42}
//	  - load: {addr: 0x10000000, value: 42}
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
)

// Scenario is a set of tasks run together on one kernel.
type Scenario struct {
	// Name identifies the scenario in output. It defaults to the file name.
	Name string `yaml:"name"`

	Tasks []Task `yaml:"tasks"`
}

// Task is the script of one task.
type Task struct {
	Name  string `yaml:"name"`
	Areas []Area `yaml:"areas"`
	Steps []Step `yaml:"steps"`

	// Exit is the expected exit code. Nil means any code is accepted.
	Exit *int32 `yaml:"exit"`
}

// Area is mapped into the task's address space before it first runs.
type Area struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`

	// Perms holds the letters r, w and x; '-' is ignored.
	Perms string `yaml:"perms"`

	// Kernel leaves the U bit clear, so user accesses fault.
	Kernel bool `yaml:"kernel"`

	// Identity maps each page to the frame of the same number.
	Identity bool `yaml:"identity"`
}

// Step is one action of a task. Exactly one of Syscall, Load, Store and Fetch
// must be set.
type Step struct {
	// Syscall is a syscall name or number.
	Syscall string  `yaml:"syscall"`
	Args    []int64 `yaml:"args"`

	// Want is the expected syscall result. Nil means any result is accepted.
	Want *int64 `yaml:"want"`

	Load  *Access `yaml:"load"`
	Store *Access `yaml:"store"`

	// Fetch checks that user mode may execute the instruction at this
	// address.
	Fetch *uint64 `yaml:"fetch"`

	// Repeat runs the step this many times. Zero means once.
	Repeat int `yaml:"repeat"`
}

// Access is a user memory access. Stores write Bytes if set and Value
// otherwise; loads compare against whichever is set.
type Access struct {
	Addr  uint64  `yaml:"addr"`
	Value *uint64 `yaml:"value"`
	Bytes *string `yaml:"bytes"`
}

// Load reads the scenario in the file at path.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

// Parse reads a scenario from r. Unknown keys are errors.
func Parse(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty scenario")
		}
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Tasks) == 0 {
		return errors.New("scenario has no tasks")
	}
	for i := range s.Tasks {
		t := &s.Tasks[i]
		for _, a := range t.Areas {
			if _, err := ParsePerms(a.Perms); err != nil {
				return fmt.Errorf("task %d: area [%#x, %#x): %w", i, a.Start, a.End, err)
			}
			if a.End < a.Start {
				return fmt.Errorf("task %d: area [%#x, %#x) ends before it starts", i, a.Start, a.End)
			}
		}
		for j, st := range t.Steps {
			if err := st.validate(); err != nil {
				return fmt.Errorf("task %d: step %d: %w", i, j, err)
			}
		}
	}
	return nil
}

func (st *Step) validate() error {
	actions := 0
	if st.Syscall != "" {
		actions++
	}
	for _, a := range []*Access{st.Load, st.Store} {
		if a == nil {
			continue
		}
		actions++
		if a.Value != nil && a.Bytes != nil {
			return errors.New("access sets both value and bytes")
		}
	}
	if st.Fetch != nil {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("step has %d actions, want exactly one", actions)
	}
	if st.Store != nil && st.Store.Value == nil && st.Store.Bytes == nil {
		return errors.New("store has nothing to write")
	}
	if len(st.Args) > 6 {
		return fmt.Errorf("%d syscall arguments, at most 6 are passed", len(st.Args))
	}
	if st.Syscall == "" && (len(st.Args) > 0 || st.Want != nil) {
		return errors.New("args and want only apply to syscalls")
	}
	if st.Repeat < 0 {
		return fmt.Errorf("negative repeat %d", st.Repeat)
	}
	return nil
}

// ParsePerms converts a permission string such as "rw-" to an AccessType.
func ParsePerms(s string) (hostarch.AccessType, error) {
	var at hostarch.AccessType
	for _, c := range s {
		switch c {
		case 'r':
			at.Read = true
		case 'w':
			at.Write = true
		case 'x':
			at.Execute = true
		case '-':
		default:
			return at, fmt.Errorf("invalid permission %q in %q", c, s)
		}
	}
	if !at.Any() {
		return at, fmt.Errorf("permissions %q grant no access", s)
	}
	return at, nil
}

// TaskRun is a task started from a scenario.
type TaskRun struct {
	// Script is what the task runs.
	Script *Task

	// Task is the kernel task.
	Task *kernel.Task

	// failures is written by the task goroutine while the kernel runs.
	failures []string
}

// Failures returns every unmet expectation of the task. It must not be
// called before the kernel has finished running.
func (tr *TaskRun) Failures() []string {
	failures := append([]string(nil), tr.failures...)
	if tr.Script.Exit == nil {
		return failures
	}
	code, ok := tr.Task.ExitCode()
	switch {
	case !ok:
		failures = append(failures, "task did not exit")
	case code != *tr.Script.Exit:
		failures = append(failures, fmt.Sprintf("exit code %d, want %d", code, *tr.Script.Exit))
	}
	return failures
}

func (tr *TaskRun) failf(format string, v ...any) {
	tr.failures = append(tr.failures, fmt.Sprintf(format, v...))
}

// Start creates a task on k for every task of s. The tasks run when k.Run is
// called.
func (s *Scenario) Start(k *kernel.Kernel) ([]*TaskRun, error) {
	var runs []*TaskRun
	for i := range s.Tasks {
		ts := &s.Tasks[i]
		prog, err := compile(k.SyscallTable(), ts.Steps)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		tr := &TaskRun{Script: ts}
		cfg := kernel.TaskConfig{
			Name:    ts.Name,
			Program: func(u *kernel.UserContext) int32 { return prog(tr, u) },
		}
		for _, a := range ts.Areas {
			at, err := ParsePerms(a.Perms)
			if err != nil {
				return nil, err
			}
			cfg.Areas = append(cfg.Areas, kernel.AreaSpec{
				Start:    hostarch.Addr(a.Start),
				End:      hostarch.Addr(a.End),
				Opts:     pagetables.MapOpts{AccessType: at, User: !a.Kernel},
				Identity: a.Identity,
			})
		}
		if tr.Task, err = k.NewTask(cfg); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		runs = append(runs, tr)
	}
	return runs, nil
}

// action performs one step.
type action func(tr *TaskRun, u *kernel.UserContext, step int)

// compile resolves syscall names against table and returns the task's
// program.
func compile(table *kernel.SyscallTable, steps []Step) (func(*TaskRun, *kernel.UserContext) int32, error) {
	actions := make([]action, len(steps))
	for i := range steps {
		a, err := compileStep(table, &steps[i])
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		actions[i] = a
	}
	return func(tr *TaskRun, u *kernel.UserContext) int32 {
		for i, a := range actions {
			for n := max(steps[i].Repeat, 1); n > 0; n-- {
				a(tr, u, i)
			}
		}
		return 0
	}, nil
}

func compileStep(table *kernel.SyscallTable, st *Step) (action, error) {
	switch {
	case st.Syscall != "":
		sysno, err := syscallNumber(table, st.Syscall)
		if err != nil {
			return nil, err
		}
		args := make([]uintptr, len(st.Args))
		for i, a := range st.Args {
			args[i] = uintptr(a)
		}
		name, want := table.LookupName(sysno), st.Want
		return func(tr *TaskRun, u *kernel.UserContext, step int) {
			got := u.Syscall(sysno, args...)
			if want != nil && got != *want {
				tr.failf("step %d: %s%v = %d, want %d", step, name, st.Args, got, *want)
			}
		}, nil

	case st.Store != nil:
		addr := hostarch.Addr(st.Store.Addr)
		if st.Store.Bytes != nil {
			b := []byte(*st.Store.Bytes)
			return func(_ *TaskRun, u *kernel.UserContext, _ int) {
				u.Store(addr, b)
			}, nil
		}
		v := *st.Store.Value
		return func(_ *TaskRun, u *kernel.UserContext, _ int) {
			u.StoreUint64(addr, v)
		}, nil

	case st.Load != nil:
		addr := hostarch.Addr(st.Load.Addr)
		if st.Load.Bytes != nil {
			want := []byte(*st.Load.Bytes)
			return func(tr *TaskRun, u *kernel.UserContext, step int) {
				got := make([]byte, len(want))
				u.Load(addr, got)
				if !bytes.Equal(got, want) {
					tr.failf("step %d: load %v = %q, want %q", step, addr, got, want)
				}
			}, nil
		}
		want := st.Load.Value
		return func(tr *TaskRun, u *kernel.UserContext, step int) {
			got := u.LoadUint64(addr)
			if want != nil && got != *want {
				tr.failf("step %d: load %v = %#x, want %#x", step, addr, got, *want)
			}
		}, nil

	default:
		addr := hostarch.Addr(*st.Fetch)
		return func(_ *TaskRun, u *kernel.UserContext, _ int) {
			u.CheckAccess(addr, 4, hostarch.Execute)
		}, nil
	}
}

// syscallNumber resolves a syscall name, or parses a number.
func syscallNumber(table *kernel.SyscallTable, s string) (uintptr, error) {
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return uintptr(n), nil
	}
	return table.LookupNo(s)
}
