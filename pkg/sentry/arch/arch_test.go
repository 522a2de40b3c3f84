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

package arch

import (
	"math"
	"testing"
)

func TestArgumentConversions(t *testing.T) {
	a := SyscallArgument{Value: math.MaxUint64}
	if got := a.Int(); got != -1 {
		t.Errorf("Int() = %d, want -1", got)
	}
	if got := a.Uint(); got != math.MaxUint32 {
		t.Errorf("Uint() = %d, want %d", got, uint32(math.MaxUint32))
	}
	if got := a.Int64(); got != -1 {
		t.Errorf("Int64() = %d, want -1", got)
	}
	if got := a.Pointer(); uint64(got) != math.MaxUint64 {
		t.Errorf("Pointer() = %v, want all ones", got)
	}
}

func TestRegisters(t *testing.T) {
	regs := Registers{A0: 0x1000, A1: 4096, A2: 3, A7: 222, Sepc: 0x400}
	if got := regs.SyscallNo(); got != 222 {
		t.Errorf("SyscallNo() = %d, want 222", got)
	}
	args := regs.SyscallArgs()
	if args[0].Pointer() != 0x1000 || args[1].SizeT() != 4096 || args[2].Uint64() != 3 {
		t.Errorf("SyscallArgs() = %v, want [0x1000 0x1000 0x3 ...]", args)
	}
	regs.SetReturn(^uintptr(0))
	if regs.Return() != ^uintptr(0) || regs.Sepc != 0x404 {
		t.Errorf("after SetReturn: a0 = %#x, sepc = %#x; want all ones and 0x404", regs.A0, regs.Sepc)
	}
}

func TestArgsTooMany(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Args with 7 values did not panic")
		}
	}()
	Args(1, 2, 3, 4, 5, 6, 7)
}
