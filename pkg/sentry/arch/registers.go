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

// Registers is the subset of the riscv64 integer register file that takes
// part in the syscall convention: the number is passed in a7, arguments in
// a0 to a5, and the result is returned in a0.
type Registers struct {
	A0, A1, A2, A3, A4, A5, A6, A7 uint64

	// Sepc is the address of the ecall instruction.
	Sepc uint64
}

// SyscallNo returns the requested syscall number.
func (r *Registers) SyscallNo() uintptr {
	return uintptr(r.A7)
}

// SyscallArgs returns the syscall arguments.
func (r *Registers) SyscallArgs() SyscallArguments {
	return Args(
		uintptr(r.A0), uintptr(r.A1), uintptr(r.A2),
		uintptr(r.A3), uintptr(r.A4), uintptr(r.A5),
	)
}

// Return returns the syscall result.
func (r *Registers) Return() uintptr {
	return uintptr(r.A0)
}

// SetReturn sets the syscall result and steps over the ecall instruction.
func (r *Registers) SetReturn(value uintptr) {
	r.A0 = uint64(value)
	r.Sepc += 4
}
