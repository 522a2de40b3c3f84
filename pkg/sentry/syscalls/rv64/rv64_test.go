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
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/marshal/primitive"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
	"gvisor.dev/tkernel/pkg/sentry/ktime"
	"gvisor.dev/tkernel/pkg/sentry/mm"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
)

const (
	// data is a two page read-write user area present in every test task.
	data = hostarch.Addr(0x20000000)

	// base is where tests map new memory.
	base = hostarch.Addr(0x10000000)

	protRW = uintptr(linux.PROT_READ | linux.PROT_WRITE)
)

var dataArea = kernel.AreaSpec{
	Start: data,
	End:   data + 2*hostarch.PageSize,
	Opts:  pagetables.MapOpts{AccessType: hostarch.ReadWrite, User: true},
}

type harness struct {
	k      *kernel.Kernel
	clock  *ktime.ManualClock
	stdout bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile(pgalloc.MemoryFileOpts{Frames: 256})
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	t.Cleanup(func() { mf.Release() })
	h := &harness{clock: ktime.NewManualClock(0)}
	h.k, err = kernel.New(kernel.Config{
		MemoryFile:   mf,
		SyscallTable: Table,
		Clock:        h.clock,
		Stdout:       &h.stdout,
	})
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	return h
}

// run runs prog as the only task and returns it once it has exited.
func (h *harness) run(t *testing.T, prog kernel.Program) *kernel.Task {
	t.Helper()
	task, err := h.k.NewTask(kernel.TaskConfig{
		Name:    t.Name(),
		Program: prog,
		Areas:   []kernel.AreaSpec{dataArea},
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := h.k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return task
}

func areasOf(u *kernel.UserContext) []mm.AreaInfo {
	return u.Task().MemoryManager().Areas()
}

func TestMmapRoundTrip(t *testing.T) {
	h := newHarness(t)
	var before, mapped, after []mm.AreaInfo
	var rets []int64
	var loaded uint64
	free := h.k.MemoryFile().Available()
	h.run(t, func(u *kernel.UserContext) int32 {
		before = areasOf(u)
		rets = append(rets, u.Syscall(SYS_MMAP, uintptr(base), 3*hostarch.PageSize, protRW))
		mapped = areasOf(u)
		u.StoreUint64(base+2*hostarch.PageSize, 0xfeed)
		loaded = u.LoadUint64(base + 2*hostarch.PageSize)
		rets = append(rets, u.Syscall(SYS_MUNMAP, uintptr(base), 3*hostarch.PageSize))
		after = areasOf(u)
		return 0
	})

	if diff := cmp.Diff([]int64{0, 0}, rets); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("areas changed by mmap+munmap (-before +after):\n%s", diff)
	}
	if len(mapped) != len(before)+1 {
		t.Errorf("mmap added %d areas, want 1", len(mapped)-len(before))
	}
	if loaded != 0xfeed {
		t.Errorf("loaded %#x, want 0xfeed", loaded)
	}
	if got := h.k.MemoryFile().Available(); got != free {
		t.Errorf("free frames after exit = %d, want %d", got, free)
	}
}

func TestMmapValidation(t *testing.T) {
	for _, tc := range []struct {
		name   string
		start  hostarch.Addr
		length uintptr
		prot   uintptr
		want   int64
	}{
		{"ok", base, hostarch.PageSize, protRW, 0},
		{"unaligned start", base + 1, hostarch.PageSize, protRW, -1},
		{"unaligned start 0x1001", 0x1001, hostarch.PageSize, protRW, -1},
		{"unaligned length rounds up", base, 1, protRW, 0},
		{"zero prot", base, hostarch.PageSize, 0, -1},
		{"prot bit 3", base, hostarch.PageSize, 8, -1},
		{"prot with extra bit", base, hostarch.PageSize, 0xf, -1},
		{"exec only", base, hostarch.PageSize, uintptr(linux.PROT_EXEC), 0},
		{"zero length", base, 0, protRW, 0},
		{"overlaps preloaded area", data, hostarch.PageSize, protRW, -1},
		{"straddles preloaded area", data - hostarch.PageSize, 2 * hostarch.PageSize, protRW, -1},
		{"beyond user space", hostarch.MaxUserAddress - hostarch.PageSize, 2 * hostarch.PageSize, protRW, -1},
		{"length overflows", base, ^uintptr(0), protRW, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			var got int64
			var before, after []mm.AreaInfo
			h.run(t, func(u *kernel.UserContext) int32 {
				before = areasOf(u)
				got = u.Syscall(SYS_MMAP, uintptr(tc.start), tc.length, tc.prot)
				after = areasOf(u)
				return 0
			})
			if got != tc.want {
				t.Errorf("mmap(%v, %#x, %#x) = %d, want %d", tc.start, tc.length, tc.prot, got, tc.want)
			}
			if got != 0 {
				if diff := cmp.Diff(before, after); diff != "" {
					t.Errorf("failed mmap changed areas (-before +after):\n%s", diff)
				}
			}
		})
	}
}

func TestMmapOverlap(t *testing.T) {
	h := newHarness(t)
	var rets []int64
	h.run(t, func(u *kernel.UserContext) int32 {
		rets = append(rets,
			u.Syscall(SYS_MMAP, uintptr(base), 2*hostarch.PageSize, protRW),
			u.Syscall(SYS_MMAP, uintptr(base+hostarch.PageSize), 2*hostarch.PageSize, protRW),
			u.Syscall(SYS_MMAP, uintptr(base), hostarch.PageSize, protRW),
			u.Syscall(SYS_MMAP, uintptr(base+2*hostarch.PageSize), hostarch.PageSize, protRW),
		)
		return 0
	})
	if diff := cmp.Diff([]int64{0, -1, -1, 0}, rets); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestMunmap(t *testing.T) {
	h := newHarness(t)
	var rets []int64
	var stillMapped uint64
	h.run(t, func(u *kernel.UserContext) int32 {
		rets = append(rets,
			// Nothing mapped yet.
			u.Syscall(SYS_MUNMAP, uintptr(base), hostarch.PageSize),
			u.Syscall(SYS_MMAP, uintptr(base), 2*hostarch.PageSize, protRW),
			// One page of the range is unmapped.
			u.Syscall(SYS_MUNMAP, uintptr(base), 3*hostarch.PageSize),
			u.Syscall(SYS_MUNMAP, uintptr(base+1), hostarch.PageSize),
			// Zero length is a no-op.
			u.Syscall(SYS_MUNMAP, uintptr(base), 0),
		)
		// The failed calls left the mapping intact.
		u.StoreUint64(base+hostarch.PageSize, 7)
		stillMapped = u.LoadUint64(base + hostarch.PageSize)
		rets = append(rets,
			u.Syscall(SYS_MUNMAP, uintptr(base), hostarch.PageSize),
			u.Syscall(SYS_MUNMAP, uintptr(base), hostarch.PageSize),
			u.Syscall(SYS_MUNMAP, uintptr(base+hostarch.PageSize), hostarch.PageSize),
		)
		return 0
	})
	if diff := cmp.Diff([]int64{-1, 0, -1, -1, 0, 0, -1, 0}, rets); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if stillMapped != 7 {
		t.Errorf("load after failed munmap = %d, want 7", stillMapped)
	}
}

func TestAccessAfterMunmapFaults(t *testing.T) {
	h := newHarness(t)
	task := h.run(t, func(u *kernel.UserContext) int32 {
		u.Syscall(SYS_MMAP, uintptr(base), hostarch.PageSize, protRW)
		u.Syscall(SYS_MUNMAP, uintptr(base), hostarch.PageSize)
		u.LoadUint64(base)
		return 0
	})
	if code, _ := task.ExitCode(); code != kernel.PageFaultExitCode {
		t.Errorf("exit code = %d, want %d", code, kernel.PageFaultExitCode)
	}
}

func TestMmapPermissions(t *testing.T) {
	h := newHarness(t)
	task := h.run(t, func(u *kernel.UserContext) int32 {
		u.Syscall(SYS_MMAP, uintptr(base), hostarch.PageSize, uintptr(linux.PROT_READ))
		if v := u.LoadUint64(base); v != 0 {
			return 1
		}
		u.StoreUint64(base, 1)
		return 0
	})
	if code, _ := task.ExitCode(); code != kernel.PageFaultExitCode {
		t.Errorf("exit code = %d, want %d (store to read-only page)", code, kernel.PageFaultExitCode)
	}
}

func TestGetTime(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(1500000)
	var ret int64
	var got linux.Timeval
	h.run(t, func(u *kernel.UserContext) int32 {
		ret = u.Syscall(SYS_GET_TIME, uintptr(data), 0)
		got.Sec = u.LoadUint64(data)
		got.Usec = u.LoadUint64(data + 8)
		return 0
	})
	if ret != 0 {
		t.Errorf("get_time = %d, want 0", ret)
	}
	if want := (linux.Timeval{Sec: 1, Usec: 500000}); got != want {
		t.Errorf("get_time wrote %+v, want %+v", got, want)
	}
}

func TestGetTimeAcrossPages(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(3000042)
	addr := data + hostarch.PageSize - 8
	var got linux.Timeval
	var err error
	h.run(t, func(u *kernel.UserContext) int32 {
		u.Syscall(SYS_GET_TIME, uintptr(addr), 0)
		// Read back through the kernel's view, which walks the two pages
		// separately.
		if got.Sec, _, err = primitive.CopyUint64In(u.Task(), addr); err != nil {
			return 1
		}
		got.Usec, _, err = primitive.CopyUint64In(u.Task(), addr+8)
		return 0
	})
	if err != nil {
		t.Fatalf("CopyUint64In: %v", err)
	}
	if want := (linux.Timeval{Sec: 3, Usec: 42}); got != want {
		t.Errorf("get_time wrote %+v, want %+v", got, want)
	}
}

func TestBadPointerDoesNotKill(t *testing.T) {
	h := newHarness(t)
	var rets []int64
	task := h.run(t, func(u *kernel.UserContext) int32 {
		rets = append(rets,
			u.Syscall(SYS_GET_TIME, 0, 0),
			u.Syscall(SYS_GET_TIME, uintptr(base), 0),
			u.Syscall(SYS_TASK_INFO, uintptr(data+2*hostarch.PageSize-8)),
		)
		return 5
	})
	if diff := cmp.Diff([]int64{-1, -1, -1}, rets); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if code, _ := task.ExitCode(); code != 5 {
		t.Errorf("exit code = %d, want 5", code)
	}
}

func TestTaskInfo(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(10000000)
	var (
		ret  int64
		info linux.TaskInfo
	)
	// The record is written to a freshly mapped page.
	infoAddr := base
	task := h.run(t, func(u *kernel.UserContext) int32 {
		u.Syscall(SYS_MMAP, uintptr(infoAddr), hostarch.PageSize, protRW)
		u.Syscall(SYS_GET_TIME, uintptr(data), 0)
		u.Syscall(SYS_GET_TIME, uintptr(data), 0)
		u.Syscall(SYS_SCHED_YIELD)
		h.clock.Advance(1234 * time.Millisecond)
		ret = u.Syscall(SYS_TASK_INFO, uintptr(infoAddr))
		buf := make([]byte, info.SizeBytes())
		u.Load(infoAddr, buf)
		info.UnmarshalBytes(buf)
		return 0
	})

	if ret != 0 {
		t.Fatalf("task_info = %d, want 0", ret)
	}
	want := linux.TaskInfo{Status: linux.TaskRunning, Time: 1234}
	want.SyscallTimes[SYS_MMAP] = 1
	want.SyscallTimes[SYS_GET_TIME] = 2
	want.SyscallTimes[SYS_SCHED_YIELD] = 1
	want.SyscallTimes[SYS_TASK_INFO] = 1
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("task_info mismatch (-want +got):\n%s", diff)
	}
	if got := task.FirstRunMillis(); got != 10000 {
		t.Errorf("FirstRunMillis() = %d, want 10000", got)
	}
}

func TestTaskInfoCountsPerTask(t *testing.T) {
	h := newHarness(t)
	infos := make([]linux.TaskInfo, 2)
	for i, calls := range []int{1, 3} {
		_, err := h.k.NewTask(kernel.TaskConfig{
			Areas: []kernel.AreaSpec{dataArea},
			Program: func(u *kernel.UserContext) int32 {
				for j := 0; j < calls; j++ {
					u.Syscall(SYS_GET_TIME, uintptr(data), 0)
					u.Syscall(SYS_SCHED_YIELD)
				}
				u.Syscall(SYS_TASK_INFO, uintptr(data))
				buf := make([]byte, infos[i].SizeBytes())
				u.Load(data, buf)
				infos[i].UnmarshalBytes(buf)
				return 0
			},
		})
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
	}
	if err := h.k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, want := range []uint32{1, 3} {
		if got := infos[i].SyscallTimes[SYS_GET_TIME]; got != want {
			t.Errorf("task %d: get_time count = %d, want %d", i, got, want)
		}
		if got := infos[i].SyscallTimes[SYS_SCHED_YIELD]; got != want {
			t.Errorf("task %d: sched_yield count = %d, want %d", i, got, want)
		}
	}
	if got := h.k.SyscallCount("get_time"); got != 4 {
		t.Errorf("SyscallCount(get_time) = %d, want 4", got)
	}
}

func TestSetPriority(t *testing.T) {
	h := newHarness(t)
	var rets []int64
	h.run(t, func(u *kernel.UserContext) int32 {
		for _, prio := range []uintptr{0, 1, 2, 16, 1 << 20, ^uintptr(0)} {
			rets = append(rets, u.Syscall(SYS_SET_PRIORITY, prio))
		}
		return 0
	})
	if diff := cmp.Diff([]int64{-1, -1, -1, -1, -1, -1}, rets); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestExit(t *testing.T) {
	h := newHarness(t)
	reached := false
	task := h.run(t, func(u *kernel.UserContext) int32 {
		u.Syscall(SYS_EXIT, ^uintptr(0))
		reached = true
		return 0
	})
	if reached {
		t.Errorf("program continued after exit")
	}
	if code, ok := task.ExitCode(); !ok || code != -1 {
		t.Errorf("ExitCode() = (%d, %t), want (-1, true)", code, ok)
	}
}

func TestYield(t *testing.T) {
	h := newHarness(t)
	var order []string
	for _, name := range []string{"a", "b"} {
		if _, err := h.k.NewTask(kernel.TaskConfig{Name: name, Program: func(u *kernel.UserContext) int32 {
			for i := 0; i < 2; i++ {
				order = append(order, name)
				if ret := u.Syscall(SYS_SCHED_YIELD); ret != 0 {
					t.Errorf("sched_yield = %d, want 0", ret)
				}
			}
			return 0
		}}); err != nil {
			t.Fatalf("NewTask: %v", err)
		}
	}
	if err := h.k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "a", "b"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite(t *testing.T) {
	h := newHarness(t)
	msg := []byte("hello, world\n")
	addr := data + hostarch.PageSize - 5
	var rets []int64
	h.run(t, func(u *kernel.UserContext) int32 {
		u.Store(addr, msg)
		rets = append(rets,
			u.Syscall(SYS_WRITE, 1, uintptr(addr), uintptr(len(msg))),
			u.Syscall(SYS_WRITE, 2, uintptr(addr), uintptr(len(msg))),
			u.Syscall(SYS_WRITE, 1, uintptr(base), 4),
			u.Syscall(SYS_WRITE, 1, uintptr(addr), 0),
			// Runs off the end of the data area after 5 bytes.
			u.Syscall(SYS_WRITE, 1, uintptr(data+2*hostarch.PageSize-5), 16),
		)
		return 0
	})
	if diff := cmp.Diff([]int64{int64(len(msg)), -1, -1, 0, 5}, rets); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if got, want := h.stdout.String(), string(msg)+"\x00\x00\x00\x00\x00"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestTable(t *testing.T) {
	if err := Table.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for sysno, name := range map[uintptr]string{
		SYS_WRITE:        "write",
		SYS_EXIT:         "exit",
		SYS_SCHED_YIELD:  "sched_yield",
		SYS_SET_PRIORITY: "set_priority",
		SYS_GET_TIME:     "get_time",
		SYS_MUNMAP:       "munmap",
		SYS_MMAP:         "mmap",
		SYS_TASK_INFO:    "task_info",
	} {
		if got := Table.LookupName(sysno); got != name {
			t.Errorf("LookupName(%d) = %q, want %q", sysno, got, name)
		}
		if Table.Lookup(sysno) == nil {
			t.Errorf("Lookup(%d) = nil", sysno)
		}
	}
}
