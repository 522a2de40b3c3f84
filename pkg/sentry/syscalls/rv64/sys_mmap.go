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
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
)

// Mmap implements mmap(start, len, prot): it maps fresh zeroed frames at
// [start, start+len) with prot plus user access. Every page in the range must
// be unmapped.
func Mmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	start := args[0].Pointer()
	length := args[1].Uint64()
	prot := linux.Prot(args[2].Uint64())

	if !start.IsPageAligned() {
		rejected.Debugf("%v: mmap(%v, %#x, %v): unaligned start", t, start, length, prot)
		return 0, nil, linuxerr.EINVAL
	}
	if !prot.Valid() {
		rejected.Debugf("%v: mmap(%v, %#x, %v): bad prot", t, start, length, prot)
		return 0, nil, linuxerr.EINVAL
	}
	if err := t.MemoryManager().MMap(start, length, prot.AccessType()); err != nil {
		rejected.Debugf("%v: mmap(%v, %#x, %v): %v", t, start, length, prot, err)
		return 0, nil, err
	}
	return 0, nil, nil
}

// Munmap implements munmap(start, len). Every page in the range must be
// mapped.
func Munmap(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	start := args[0].Pointer()
	length := args[1].Uint64()

	if err := t.MemoryManager().MUnmap(start, length); err != nil {
		rejected.Debugf("%v: munmap(%v, %#x): %v", t, start, length, err)
		return 0, nil, err
	}
	return 0, nil, nil
}
