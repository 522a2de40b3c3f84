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

package pgalloc

import (
	"fmt"
	"unsafe"

	"gvisor.dev/tkernel/pkg/hostarch"
)

// PhysicalOf returns the physical address of p, which must point into the
// arena.
func (f *MemoryFile) PhysicalOf(p unsafe.Pointer) hostarch.Addr {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(f.mapping)))
	ptr := uintptr(p)
	if ptr < base || ptr-base >= uintptr(len(f.mapping)) {
		panic(fmt.Sprintf("pgalloc: pointer %#x is outside the arena", ptr))
	}
	return hostarch.Addr(ptr - base)
}
